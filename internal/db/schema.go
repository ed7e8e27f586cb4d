package db

// SchemaSQL defines the tables used by the run store.
const SchemaSQL = `
    -- ==========================================================================
    -- PIPELINE_RUN TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS pipeline_run SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS input ON pipeline_run TYPE object FLEXIBLE;
    -- latest job snapshot, absent until the run created its job
    DEFINE FIELD IF NOT EXISTS job ON pipeline_run TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS stage ON pipeline_run TYPE string;
    DEFINE FIELD IF NOT EXISTS cancelled ON pipeline_run TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS outcome ON pipeline_run TYPE string;
    DEFINE FIELD IF NOT EXISTS error ON pipeline_run TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS started_at ON pipeline_run TYPE datetime;
    DEFINE FIELD IF NOT EXISTS updated_at ON pipeline_run TYPE datetime;
    DEFINE FIELD IF NOT EXISTS finished_at ON pipeline_run TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS pipeline_run_outcome ON pipeline_run FIELDS outcome;
    DEFINE INDEX IF NOT EXISTS pipeline_run_started ON pipeline_run FIELDS started_at;
`
