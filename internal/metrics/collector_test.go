package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpConvert, 100*time.Millisecond)
	c.RecordTiming(OpConvert, 300*time.Millisecond)

	snap := c.Snapshot()
	conv := snap.Steps[OpConvert]
	require.NotNil(t, conv)
	assert.Equal(t, int64(2), conv.Count)
	assert.Equal(t, int64(400), conv.TotalTimeMs)
	assert.Equal(t, 200.0, conv.AvgTimeMs)
	assert.Equal(t, int64(100), conv.MinTimeMs)
	assert.Equal(t, int64(300), conv.MaxTimeMs)
	assert.Nil(t, conv.TotalInputTokens)

	assert.NotContains(t, snap.Steps, OpDownload)
}

func TestRecordFailure(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpDownload, time.Second)
	c.RecordFailure(OpDownload, 2*time.Second)

	dl := c.Snapshot().Steps[OpDownload]
	require.NotNil(t, dl)
	assert.Equal(t, int64(2), dl.Count)
	assert.Equal(t, int64(1), dl.Failures)
}

func TestProviderOperations(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(ProviderOp("yandex"), time.Second)
	c.RecordFailure(ProviderOp("salute"), time.Second)

	snap := c.Snapshot()
	require.Contains(t, snap.Providers, "yandex")
	require.Contains(t, snap.Providers, "salute")
	assert.Equal(t, int64(1), snap.Providers["salute"].Failures)
	assert.Equal(t, []string{"stt_salute", "stt_yandex"}, c.Operations())
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()

	c.RecordLLMUsage(OpLLMGenerate, time.Second, 100, 20)
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 300, 40)

	llm := c.Snapshot().LLMGenerate
	require.NotNil(t, llm)
	assert.Equal(t, int64(400), *llm.TotalInputTokens)
	assert.Equal(t, int64(60), *llm.TotalOutputTokens)
	assert.Equal(t, int64(100), *llm.MinInputTokens)
	assert.Equal(t, int64(300), *llm.MaxInputTokens)
	assert.Equal(t, 30.0, *llm.AvgOutputTokens)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTiming(OpMerge, time.Second)
		c.RecordFailure(OpMerge, time.Second)
		c.RecordLLMUsage(OpLLMGenerate, time.Second, 1, 1)
	})
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(OpTranscribe, time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), c.Snapshot().Steps[OpTranscribe].Count)
}
