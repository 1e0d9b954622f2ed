package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/Domenick1991/reservations/internal/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSender_Handle(t *testing.T) {
	at := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	hold := domain.Hold{Token: "cart-9", PoolID: 2, Quantity: 2, Status: domain.HoldStatusSold}

	testCases := []struct {
		name    string
		event   kafka.ReservationEvent
		subject string
	}{
		{name: "confirmed", event: kafka.NewHoldEvent(kafka.EventHoldConfirmed, hold, 7, at), subject: "booking confirmed"},
		{name: "expired", event: kafka.NewHoldEvent(kafka.EventHoldExpired, hold, 7, at), subject: "selection expired"},
		{name: "cancelled", event: kafka.NewHoldEvent(kafka.EventSaleCancelled, hold, 7, at), subject: "booking cancelled"},
		{name: "created is silent", event: kafka.NewHoldEvent(kafka.EventHoldCreated, hold, 7, at)},
		{name: "pool events are silent", event: kafka.NewPoolEvent(kafka.EventPoolReconciled, 2, 7, at)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			sender := NewSender(slog.New(slog.NewTextHandler(&buf, nil)))

			require.NoError(t, sender.Handle(context.Background(), tc.event))

			if tc.subject == "" {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tc.subject)
			assert.Contains(t, buf.String(), "token=cart-9")
		})
	}
}
