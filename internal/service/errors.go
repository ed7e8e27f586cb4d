// Package service implements the transcription pipeline steps.
//
// Every step takes a job snapshot, does one unit of work against storage and
// returns the advanced snapshot. Steps write to fixed paths, so running one
// twice overwrites the same artifacts.
package service

import (
	"errors"

	"github.com/raphaelgruber/speechkit-go/internal/audio"
	"github.com/raphaelgruber/speechkit-go/internal/llm"
	"github.com/raphaelgruber/speechkit-go/internal/loader"
	"github.com/raphaelgruber/speechkit-go/internal/models"
)

var (
	ErrNoProviders     = errors.New("no transcription providers configured")
	ErrEmptyTranscript = errors.New("transcript is empty")
	ErrPromptTooLarge  = errors.New("prompt exceeds the model token budget")
)

var permanentErrors = []error{
	loader.ErrNoLoader,
	loader.ErrInvalidReference,
	audio.ErrFormatVerification,
	models.ErrInvalidTransition,
	models.ErrIllegalOperation,
	ErrNoProviders,
	ErrEmptyTranscript,
	ErrPromptTooLarge,
	llm.ErrFatalAPI,
}

// IsPermanent reports whether retrying the failed step cannot succeed.
func IsPermanent(err error) bool {
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
