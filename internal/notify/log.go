package notify

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"

	"github.com/raphaelgruber/speechkit-go/internal/storage"
)

// Outbox is used when no chat bot is configured. Messages go to the log and
// documents are written to storage under outbox/<userID>/<filename>.
type Outbox struct {
	storage storage.Storage
}

func NewOutbox(store storage.Storage) *Outbox {
	return &Outbox{storage: store}
}

// OutboxPath is where a delivered document lands.
func OutboxPath(userID int64, filename string) string {
	return path.Join("outbox", strconv.FormatInt(userID, 10), path.Base(filename))
}

func (o *Outbox) Notify(_ context.Context, userID int64, message string) error {
	slog.Info("notification", "user_id", userID, "message", message)
	return nil
}

func (o *Outbox) SendProgress(ctx context.Context, userID int64, message string) error {
	return o.Notify(ctx, userID, message)
}

func (o *Outbox) SendDocument(ctx context.Context, userID int64, data []byte, filename, caption string) error {
	p := OutboxPath(userID, filename)
	if err := o.storage.Save(ctx, data, p); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	slog.Info("document delivered", "user_id", userID, "path", p, "caption", caption, "bytes", len(data))
	return nil
}
