// Package client provides an HTTP client for the speechkit server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/workflow"
)

// ErrNotFound is returned when the server does not know the run.
var ErrNotFound = errors.New("run not found")

// Client talks to the speechkit HTTP API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a new client.
// If endpoint is empty, uses SPEECHKIT_SERVER_URL env var or defaults to localhost:8000.
// Timeout can be configured via SPEECHKIT_CLIENT_TIMEOUT env var (default 30s).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("SPEECHKIT_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8000"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("SPEECHKIT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// do sends a request and decodes the JSON answer into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// SubmitResult is the server's acknowledgement of a new run.
type SubmitResult struct {
	RunID  string       `json:"run_id"`
	Status models.Stage `json:"status"`
}

type submitRequest struct {
	UserID           int64             `json:"user_id"`
	Source           models.FileSource `json:"source"`
	OriginalFilename string            `json:"original_filename,omitempty"`
}

// Submit starts a pipeline run.
func (c *Client) Submit(ctx context.Context, input models.JobInput) (*SubmitResult, error) {
	var result SubmitResult
	err := c.do(ctx, http.MethodPost, "/jobs", submitRequest(input), &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Status returns the current stage of a run.
func (c *Client) Status(ctx context.Context, runID string) (models.Stage, error) {
	var result struct {
		Status models.Stage `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(runID)+"/status", nil, &result); err != nil {
		return "", err
	}
	return result.Status, nil
}

// Get describes a run.
func (c *Client) Get(ctx context.Context, runID string) (*models.PipelineRun, error) {
	var run models.PipelineRun
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(runID), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns all runs, newest first.
func (c *Client) List(ctx context.Context) ([]models.PipelineRun, error) {
	var result struct {
		Runs []models.PipelineRun `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, &result); err != nil {
		return nil, err
	}
	return result.Runs, nil
}

// Cancel signals a run to stop before its next step.
func (c *Client) Cancel(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(runID)+"/cancel", nil, nil)
}

// Confirm accepts the final transcript of a completed run.
func (c *Client) Confirm(ctx context.Context, runID string) (*models.TranscriptionJob, error) {
	return c.decide(ctx, runID, "confirm")
}

// Reject discards the final transcript of a completed run.
func (c *Client) Reject(ctx context.Context, runID string) (*models.TranscriptionJob, error) {
	return c.decide(ctx, runID, "reject")
}

func (c *Client) decide(ctx context.Context, runID, action string) (*models.TranscriptionJob, error) {
	var job models.TranscriptionJob
	if err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(runID)+"/"+action, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// WatchEvents streams the events of a run until it finishes.
// onEvent is invoked for each event. Return an error from onEvent to abort.
func (c *Client) WatchEvents(ctx context.Context, runID string, since int64, onEvent func(workflow.Event) error) error {
	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/jobs/" + url.PathEscape(runID) + "/events")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	if since > 0 {
		u.RawQuery = "since=" + strconv.FormatInt(since, 10)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return &APIError{StatusCode: resp.StatusCode, Message: "run not found: " + runID}
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var event workflow.Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := onEvent(event); err != nil {
			return err
		}
	}
}
