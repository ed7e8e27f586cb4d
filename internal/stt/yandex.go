package stt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/storage"
)

const (
	yandexSTTBase        = "https://stt.api.cloud.yandex.net/stt/v3"
	yandexOperationsBase = "https://operation.api.cloud.yandex.net/operations"
	yandexRequestTimeout = 10 * time.Second
)

// YandexConfig configures the SpeechKit v3 async recognizer.
type YandexConfig struct {
	APIKey   string
	FolderID string
	Poll     PollConfig

	// Base URLs; empty means the public endpoints.
	STTBaseURL        string
	OperationsBaseURL string
}

// Yandex recognizes audio with Yandex SpeechKit. The audio is handed over
// as a presigned object storage link.
type Yandex struct {
	cfg    YandexConfig
	bucket storage.Bucket
	client *http.Client
	now    func() time.Time
}

func NewYandex(cfg YandexConfig, bucket storage.Bucket, client *http.Client) *Yandex {
	if cfg.STTBaseURL == "" {
		cfg.STTBaseURL = yandexSTTBase
	}
	if cfg.OperationsBaseURL == "" {
		cfg.OperationsBaseURL = yandexOperationsBase
	}
	if client == nil {
		client = &http.Client{Timeout: yandexRequestTimeout}
	}
	return &Yandex{cfg: cfg, bucket: bucket, client: client, now: time.Now}
}

func (y *Yandex) Name() string { return "yandex" }

func (y *Yandex) Transcribe(ctx context.Context, audioPath string) (models.Transcript, error) {
	key := fmt.Sprintf("%s_%d", filepath.Base(audioPath), y.now().UnixMilli())
	if err := y.bucket.Upload(ctx, audioPath, key); err != nil {
		return models.Transcript{}, fmt.Errorf("yandex upload: %w", err)
	}
	uri, err := y.bucket.PresignGet(ctx, key)
	if err != nil {
		return models.Transcript{}, fmt.Errorf("yandex presign: %w", err)
	}

	opID, err := y.recognize(ctx, uri)
	if err != nil {
		return models.Transcript{}, err
	}
	slog.Info("yandex recognition started", "operation_id", opID)

	err = poll(ctx, y.cfg.Poll, func(ctx context.Context) (bool, error) {
		return y.operationDone(ctx, opID)
	})
	if err != nil {
		return models.Transcript{}, fmt.Errorf("yandex operation %s: %w", opID, err)
	}

	body, err := y.recognition(ctx, opID)
	if err != nil {
		return models.Transcript{}, err
	}
	tr := parseYandexRecognition(body)
	slog.Info("yandex recognition finished", "operation_id", opID, "segments", len(tr.Segments))
	return tr, nil
}

func (y *Yandex) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Api-Key "+y.cfg.APIKey)
	if y.cfg.FolderID != "" {
		req.Header.Set("x-folder-id", y.cfg.FolderID)
	}
}

type yandexRecognizeRequest struct {
	URI              string `json:"uri"`
	RecognitionModel struct {
		Model               string `json:"model"`
		AudioProcessingType string `json:"audio_processing_type"`
		AudioFormat         struct {
			ContainerAudio struct {
				ContainerAudioType string `json:"container_audio_type"`
			} `json:"container_audio"`
		} `json:"audio_format"`
		LanguageRestriction struct {
			RestrictionType string   `json:"restriction_type"`
			LanguageCodes   []string `json:"language_codes"`
		} `json:"language_restriction"`
	} `json:"recognition_model"`
}

func (y *Yandex) recognize(ctx context.Context, uri string) (string, error) {
	var payload yandexRecognizeRequest
	payload.URI = uri
	payload.RecognitionModel.Model = "general"
	payload.RecognitionModel.AudioProcessingType = "FULL_DATA"
	payload.RecognitionModel.AudioFormat.ContainerAudio.ContainerAudioType = "WAV"
	payload.RecognitionModel.LanguageRestriction.RestrictionType = "WHITELIST"
	payload.RecognitionModel.LanguageRestriction.LanguageCodes = []string{"ru-RU"}

	req, err := newJSONRequest(ctx, http.MethodPost, y.cfg.STTBaseURL+"/recognizeFileAsync", payload)
	if err != nil {
		return "", fmt.Errorf("yandex recognize: %w", err)
	}
	y.authorize(req)

	var op struct {
		ID string `json:"id"`
	}
	if err := doJSON(y.client, req, "yandex", "recognize", &op); err != nil {
		return "", err
	}
	if op.ID == "" {
		return "", fmt.Errorf("yandex recognize: empty operation id")
	}
	return op.ID, nil
}

type yandexOperation struct {
	ID    string `json:"id"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (y *Yandex) operationDone(ctx context.Context, opID string) (bool, error) {
	req, err := newJSONRequest(ctx, http.MethodGet, y.cfg.OperationsBaseURL+"/"+url.PathEscape(opID), nil)
	if err != nil {
		return false, err
	}
	y.authorize(req)

	var op yandexOperation
	if err := doJSON(y.client, req, "yandex", "operation", &op); err != nil {
		return false, err
	}
	if op.Error != nil {
		return false, fmt.Errorf("%w: %s (code %d)", ErrRecognitionFailed, op.Error.Message, op.Error.Code)
	}
	return op.Done, nil
}

func (y *Yandex) recognition(ctx context.Context, opID string) ([]byte, error) {
	req, err := newJSONRequest(ctx, http.MethodGet,
		y.cfg.STTBaseURL+"/getRecognition?operation_id="+url.QueryEscape(opID), nil)
	if err != nil {
		return nil, err
	}
	y.authorize(req)
	return doRaw(y.client, req, "yandex", "getRecognition")
}

// flexMillis accepts a millisecond count encoded as either a JSON string or number.
type flexMillis float64

func (m *flexMillis) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse millis %q: %w", s, err)
	}
	*m = flexMillis(v)
	return nil
}

type yandexChunk struct {
	Result struct {
		Final *struct {
			Alternatives []struct {
				Text        string     `json:"text"`
				StartTimeMs flexMillis `json:"startTimeMs"`
				EndTimeMs   flexMillis `json:"endTimeMs"`
			} `json:"alternatives"`
		} `json:"final"`
	} `json:"result"`
}

// parseYandexRecognition reads the NDJSON stream of getRecognition.
// Only final results count; the first alternative with text becomes the segment.
func parseYandexRecognition(body []byte) models.Transcript {
	var segments []models.Segment

	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk yandexChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			slog.Warn("skipping malformed recognition line", "error", err)
			continue
		}
		if chunk.Result.Final == nil {
			continue
		}
		for _, alt := range chunk.Result.Final.Alternatives {
			if strings.TrimSpace(alt.Text) == "" {
				continue
			}
			segments = append(segments, models.Segment{
				Start: float64(alt.StartTimeMs) / 1000,
				End:   float64(alt.EndTimeMs) / 1000,
				Text:  alt.Text,
			})
			break
		}
	}
	return models.Transcript{Segments: segments}
}
