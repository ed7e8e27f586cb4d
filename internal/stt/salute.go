package stt

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/models"
	"golang.org/x/oauth2"
)

const (
	saluteBaseURL        = "https://smartspeech.sber.ru/rest/v1"
	saluteRequestTimeout = 60 * time.Second
)

// OpusEncoder re-encodes audio to OGG Opus. *audio.Toolchain satisfies it.
type OpusEncoder interface {
	EncodeOpus(ctx context.Context, inPath, outPath string) error
}

// SaluteConfig configures the SaluteSpeech REST recognizer.
type SaluteConfig struct {
	AuthKey     string
	Scope       string
	InsecureTLS bool
	Poll        PollConfig

	// Endpoints; empty means the public ones.
	BaseURL  string
	OAuthURL string
}

// Salute recognizes audio with SaluteSpeech. The token cache belongs to the instance.
type Salute struct {
	cfg     SaluteConfig
	client  *http.Client
	encoder OpusEncoder
}

func NewSalute(cfg SaluteConfig, encoder OpusEncoder) *Salute {
	if cfg.BaseURL == "" {
		cfg.BaseURL = saluteBaseURL
	}
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = saluteOAuthURL
	}
	if cfg.Scope == "" {
		cfg.Scope = "SALUTE_SPEECH_PERS"
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // the OAuth endpoint uses a certificate outside common trust stores
	}
	plain := &http.Client{Transport: base, Timeout: saluteRequestTimeout}

	return &Salute{
		cfg: cfg,
		client: &http.Client{
			Transport: &oauth2.Transport{
				Source: newSaluteTokenSource(plain, cfg.OAuthURL, cfg.AuthKey, cfg.Scope),
				Base:   base,
			},
			Timeout: saluteRequestTimeout,
		},
		encoder: encoder,
	}
}

func (s *Salute) Name() string { return "salute" }

func (s *Salute) Transcribe(ctx context.Context, audioPath string) (models.Transcript, error) {
	dir, err := os.MkdirTemp("", "speechkit-salute-*")
	if err != nil {
		return models.Transcript{}, fmt.Errorf("salute temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	opusPath := filepath.Join(dir, "audio.ogg")
	if err := s.encoder.EncodeOpus(ctx, audioPath, opusPath); err != nil {
		return models.Transcript{}, fmt.Errorf("salute encode opus: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath)) + ".ogg"
	fileID, err := s.upload(ctx, opusPath, name)
	if err != nil {
		return models.Transcript{}, err
	}

	taskID, err := s.startRecognition(ctx, fileID)
	if err != nil {
		return models.Transcript{}, err
	}
	slog.Info("salute recognition started", "task_id", taskID)

	var responseFileID string
	err = poll(ctx, s.cfg.Poll, func(ctx context.Context) (bool, error) {
		done, fileID, err := s.taskStatus(ctx, taskID)
		responseFileID = fileID
		return done, err
	})
	if err != nil {
		return models.Transcript{}, fmt.Errorf("salute task %s: %w", taskID, err)
	}
	if responseFileID == "" {
		return models.Transcript{}, fmt.Errorf("salute task %s: no response file id", taskID)
	}

	body, err := s.download(ctx, responseFileID)
	if err != nil {
		return models.Transcript{}, err
	}
	tr := parseSaluteResult(body)
	slog.Info("salute recognition finished", "task_id", taskID, "segments", len(tr.Segments))
	return tr, nil
}

func (s *Salute) upload(ctx context.Context, path, name string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("salute read opus: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="data"; filename=%q`, name))
	h.Set("Content-Type", "audio/ogg;codecs=opus")
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("salute multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("salute multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("salute multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/data:upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	slog.Debug("salute upload", "name", name, "bytes", len(data))

	var resp struct {
		Result struct {
			RequestFileID string `json:"request_file_id"`
		} `json:"result"`
	}
	if err := doJSON(s.client, req, "salute", "upload", &resp); err != nil {
		return "", err
	}
	if resp.Result.RequestFileID == "" {
		return "", fmt.Errorf("salute upload: no request_file_id in response")
	}
	return resp.Result.RequestFileID, nil
}

type saluteRecognizeRequest struct {
	RequestFileID string `json:"request_file_id"`
	Options       struct {
		Model         string `json:"model"`
		Language      string `json:"language"`
		AudioEncoding string `json:"audio_encoding"`
	} `json:"options"`
}

func (s *Salute) startRecognition(ctx context.Context, fileID string) (string, error) {
	var payload saluteRecognizeRequest
	payload.RequestFileID = fileID
	payload.Options.Model = "general"
	payload.Options.Language = "ru-RU"
	payload.Options.AudioEncoding = "OPUS"

	req, err := newJSONRequest(ctx, http.MethodPost, s.cfg.BaseURL+"/speech:async_recognize", payload)
	if err != nil {
		return "", fmt.Errorf("salute recognize: %w", err)
	}

	var resp struct {
		Result struct {
			ID     string `json:"id"`
			TaskID string `json:"task_id"`
		} `json:"result"`
	}
	if err := doJSON(s.client, req, "salute", "recognize", &resp); err != nil {
		return "", err
	}
	switch {
	case resp.Result.ID != "":
		return resp.Result.ID, nil
	case resp.Result.TaskID != "":
		return resp.Result.TaskID, nil
	}
	return "", fmt.Errorf("salute recognize: no task id in response")
}

func (s *Salute) taskStatus(ctx context.Context, taskID string) (done bool, responseFileID string, err error) {
	req, err := newJSONRequest(ctx, http.MethodGet, s.cfg.BaseURL+"/task:get?id="+url.QueryEscape(taskID), nil)
	if err != nil {
		return false, "", err
	}

	var resp struct {
		Result struct {
			Status         string          `json:"status"`
			ResponseFileID string          `json:"response_file_id"`
			Error          json.RawMessage `json:"error,omitempty"`
		} `json:"result"`
	}
	if err := doJSON(s.client, req, "salute", "task", &resp); err != nil {
		return false, "", err
	}

	switch strings.ToUpper(resp.Result.Status) {
	case "DONE":
		return true, resp.Result.ResponseFileID, nil
	case "ERROR", "CANCELED":
		reason := strings.TrimSpace(string(resp.Result.Error))
		if reason == "" {
			reason = resp.Result.Status
		}
		return false, "", fmt.Errorf("%w: %s", ErrRecognitionFailed, reason)
	}
	return false, "", nil
}

func (s *Salute) download(ctx context.Context, responseFileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.cfg.BaseURL+"/data:download?response_file_id="+url.QueryEscape(responseFileID), nil)
	if err != nil {
		return nil, err
	}
	return doRaw(s.client, req, "salute", "download")
}

type saluteResultItem struct {
	Results []struct {
		Text           string `json:"text"`
		NormalizedText string `json:"normalized_text"`
		Start          string `json:"start"`
		End            string `json:"end"`
	} `json:"results"`
}

// parseSaluteResult reads the downloaded recognition file. The usual shape is an array of
// {results:[{text, start:"1.560s", end}]}; a bare {text} or a plain-text body becomes one segment.
func parseSaluteResult(body []byte) models.Transcript {
	trimmed := bytes.TrimSpace(body)

	var items []saluteResultItem
	if err := json.Unmarshal(trimmed, &items); err == nil {
		var segments []models.Segment
		for _, item := range items {
			for _, r := range item.Results {
				text := strings.TrimSpace(r.Text)
				if text == "" {
					text = strings.TrimSpace(r.NormalizedText)
				}
				if text == "" {
					continue
				}
				start := parseSaluteTime(r.Start)
				end := parseSaluteTime(r.End)
				if end == 0 {
					end = start
				}
				segments = append(segments, models.Segment{Start: start, End: end, Text: text})
			}
		}
		return models.Transcript{Segments: segments}
	}

	var obj struct {
		Text   string          `json:"text"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		if len(obj.Result) > 0 {
			return parseSaluteResult(obj.Result)
		}
		return singleSegment(obj.Text)
	}

	return singleSegment(string(trimmed))
}

func singleSegment(text string) models.Transcript {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Transcript{}
	}
	return models.Transcript{Segments: []models.Segment{{Text: text}}}
}

// parseSaluteTime parses durations like "1.560s".
func parseSaluteTime(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "s"), 64)
	if err != nil {
		return 0
	}
	return v
}
