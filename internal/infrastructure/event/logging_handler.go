package event

import (
	"context"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// LoggingHandler writes one structured log line per committed finance event
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a LoggingHandler
func NewLoggingHandler(l *zap.Logger) *LoggingHandler {
	if l == nil {
		l = zap.NewNop()
	}
	return &LoggingHandler{logger: l.Named("events")}
}

// EventTypes subscribes to every event
func (h *LoggingHandler) EventTypes() []string { return nil }

// Handle logs the event with the fields its type carries
func (h *LoggingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.String("company_id", event.CompanyID().String()),
	}
	switch e := event.(type) {
	case *finance.DocumentEvent:
		fields = append(fields,
			zap.String("document_number", e.DocumentNumber),
			zap.String("status", string(e.Status)),
			zap.String("balance_due", e.BalanceDue.String()),
		)
	case *finance.PaymentEvent:
		fields = append(fields,
			zap.String("payment_number", e.PaymentNumber),
			zap.String("status", string(e.Status)),
			zap.String("remaining_amount", e.RemainingAmount.String()),
		)
	case *finance.CreditNoteEvent:
		fields = append(fields,
			zap.String("credit_note_number", e.CreditNoteNumber),
			zap.String("status", string(e.Status)),
			zap.String("remaining_amount", e.RemainingAmount.String()),
		)
	case *finance.AllocationEvent:
		fields = append(fields,
			zap.String("source_type", string(e.SourceType)),
			zap.String("source_id", e.SourceID.String()),
			zap.String("document_id", e.DocumentID.String()),
			zap.String("amount", e.Amount.String()),
			zap.String("strategy", string(e.Strategy)),
		)
	}
	logger.WithLogger(ctx, h.logger).Info("domain event", fields...)
	return nil
}

var _ shared.EventHandler = (*LoggingHandler)(nil)
