// Package eventhandler contains the reactions to ledger events: the audit
// log every event goes to and the tutor alert raised for at-risk students.
package eventhandler

import (
	"log/slog"
	"sort"

	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

// AuditLogHandler writes every ledger event as one structured log line.
type AuditLogHandler struct {
	logger *slog.Logger
}

// NewAuditLogHandler creates a new AuditLogHandler.
func NewAuditLogHandler(logger *slog.Logger) *AuditLogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogHandler{logger: logger.With("handler", "audit_log")}
}

// Handle implements shared.EventHandler.
func (h *AuditLogHandler) Handle(event shared.Event) error {
	payload := event.Payload()

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, payload[k]))
	}

	h.logger.Info("ledger event",
		"event_type", string(event.EventType()),
		logger.StudentID(event.AggregateID()),
		"occurred_at", event.OccurredAt(),
		slog.Attr{Key: "payload", Value: slog.GroupValue(attrs...)},
	)
	return nil
}
