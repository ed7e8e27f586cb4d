// Package stt implements the speech-to-text providers used by the transcription step.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/raphaelgruber/speechkit-go/internal/models"
)

var (
	// ErrTranscriptionTimeout indicates a provider job that did not finish within the polling budget.
	ErrTranscriptionTimeout = errors.New("transcription timed out")

	// ErrRecognitionFailed indicates the provider reported a failed recognition job.
	ErrRecognitionFailed = errors.New("recognition failed")
)

// Provider turns an audio file into timestamped segments.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string) (models.Transcript, error)
}

// APIError is returned for non-2xx responses from a provider API.
type APIError struct {
	Provider string
	Op       string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Op, e.Status, e.Body)
}

const maxErrorBody = 512

// doJSON sends req and decodes a JSON response into out.
func doJSON(client *http.Client, req *http.Request, provider, op string, out any) error {
	body, err := doRaw(client, req, provider, op)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", provider, op, err)
	}
	return nil
}

func doRaw(client *http.Client, req *http.Request, provider, op string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", provider, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", provider, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &APIError{Provider: provider, Op: op, Status: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

func newJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
