package service

import (
	"context"
	"errors"
	"testing"

	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/notify"
	"github.com/raphaelgruber/speechkit-go/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverStep(t *testing.T) {
	store := newStore(t)
	job := newJob(models.JobStatusPendingConfirmation)
	save(t, store, job.Paths.FinalTranscript, "Итог.")

	n := &fakeNotifier{}
	require.NoError(t, NewDeliverStep(store, n, nil).Run(context.Background(), job))

	require.Len(t, n.documents, 1)
	assert.Equal(t, sentDocument{userID: 42, data: "Итог.", filename: "session.txt", caption: notify.CaptionCompleted}, n.documents[0])
}

func TestDeliverStepErrors(t *testing.T) {
	store := newStore(t)
	job := newJob(models.JobStatusPendingConfirmation)

	err := NewDeliverStep(store, &fakeNotifier{}, nil).Run(context.Background(), job)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	save(t, store, job.Paths.FinalTranscript, "Итог.")
	err = NewDeliverStep(store, &fakeNotifier{err: errors.New("telegram: 429")}, nil).Run(context.Background(), job)
	assert.ErrorContains(t, err, "send result")
}
