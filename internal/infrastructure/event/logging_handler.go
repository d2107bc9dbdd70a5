package event

import (
	"context"

	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/meterpay/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// LoggingHandler writes every published event to the log as an audit trail
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(l *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: l.Named("events")}
}

// EventTypes returns nil so the handler is registered as a wildcard
func (h *LoggingHandler) EventTypes() []string { return nil }

// Handle implements shared.EventHandler
func (h *LoggingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.logger.Info("Domain event",
		append(logger.Fields(ctx),
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
			zap.String("aggregate_type", event.AggregateType()),
			zap.String("aggregate_id", event.AggregateID().String()),
			zap.Time("occurred_at", event.OccurredAt()),
		)...,
	)
	return nil
}
