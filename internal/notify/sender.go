package notify

import (
	"context"
	"log/slog"

	"github.com/Domenick1991/reservations/internal/kafka"
)

// Sender turns reservation events into customer notifications. Delivery is a
// structured log line; a mail or push transport plugs in behind Handle.
type Sender struct {
	logger *slog.Logger
}

func NewSender(logger *slog.Logger) *Sender {
	return &Sender{logger: logger}
}

// Handle never fails on unknown event types so one bad message does not stall
// the consumer group.
func (s *Sender) Handle(ctx context.Context, event kafka.ReservationEvent) error {
	var subject string
	switch event.Type {
	case kafka.EventHoldConfirmed:
		subject = "booking confirmed"
	case kafka.EventHoldExpired:
		subject = "selection expired"
	case kafka.EventSaleCancelled:
		subject = "booking cancelled"
	default:
		return nil
	}

	s.logger.InfoContext(ctx, "send notification",
		"subject", subject,
		"token", event.Token,
		"pool_id", event.PoolID,
		"slot_id", event.SlotID,
		"quantity", event.Quantity,
		"event_id", event.ID,
	)
	return nil
}
