package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHoldEvent(t *testing.T) {
	at := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	hold := domain.Hold{
		Token:     "cart-7",
		PoolID:    3,
		Quantity:  2,
		UnitIDs:   []int64{11, 12},
		Status:    domain.HoldStatusHeld,
		ExpiresAt: at.Add(10 * time.Minute),
	}

	ev := NewHoldEvent(EventHoldCreated, hold, 9, at)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "cart-7", ev.Key())
	assert.Equal(t, int64(9), ev.SlotID)
	require.NotNil(t, ev.ExpiresAt)
	assert.Equal(t, hold.ExpiresAt, *ev.ExpiresAt)

	// sold holds carry no deadline
	hold.Status = domain.HoldStatusSold
	assert.Nil(t, NewHoldEvent(EventHoldConfirmed, hold, 9, at).ExpiresAt)
}

func TestPoolEventKey(t *testing.T) {
	ev := NewPoolEvent(EventPoolReconciled, 42, 7, time.Now())
	assert.Equal(t, "pool:42", ev.Key())
}

func TestDecodeEvent(t *testing.T) {
	ev := NewPoolEvent(EventPoolReconciled, 42, 7, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	got, err := DecodeEvent(kafka.Message{Value: data})
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, EventPoolReconciled, got.Type)

	_, err = DecodeEvent(kafka.Message{Value: []byte("{broken"), Offset: 5})
	assert.ErrorContains(t, err, "offset 5")
}
