package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

// LogNotifier writes notifications to the log. Used when no broker is
// configured.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, note domain.Notification) error {
	n.log.Infow("notification",
		"kind", note.Kind,
		"customer_id", note.CustomerID,
		"event_id", note.EventID,
		"unit_id", note.UnitID,
		"entry_id", note.EntryID,
		"expires_at", note.ExpiresAt,
	)
	return nil
}
