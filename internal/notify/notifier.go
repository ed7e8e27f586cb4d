// Package notify delivers progress messages and finished transcripts to the requester.
package notify

import (
	"context"
	"path/filepath"
	"strings"
)

// Notifier reaches the user who submitted a job.
type Notifier interface {
	Notify(ctx context.Context, userID int64, message string) error
	SendProgress(ctx context.Context, userID int64, message string) error
	SendDocument(ctx context.Context, userID int64, data []byte, filename, caption string) error
}

// User-facing texts.
const (
	MsgDownloading    = "⏳ Файл загружается..."
	MsgConverting     = "🔄 Аудио конвертируется в WAV..."
	MsgTranscribing   = "🎤 Выполняется распознавание речи..."
	MsgPostprocessing = "✨ Выполняется постобработка..."
	MsgCancelled      = "🛑 Обработка отменена."
	CaptionCompleted  = "✅ Обработка завершена!"
)

// FailureMessage is sent once when a run fails for good.
func FailureMessage(reason string) string {
	return "❌ Ошибка обработки: " + reason
}

// ResultFilename names the delivered transcript after the uploaded file,
// with its extension swapped for .txt.
func ResultFilename(originalFilename, jobID string) string {
	if originalFilename == "" {
		return "transcription_" + jobID + ".txt"
	}
	return strings.TrimSuffix(originalFilename, filepath.Ext(originalFilename)) + ".txt"
}
