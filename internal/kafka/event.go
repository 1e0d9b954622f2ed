package kafka

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventHoldCreated    EventType = "hold_created"
	EventHoldConfirmed  EventType = "hold_confirmed"
	EventHoldReleased   EventType = "hold_released"
	EventHoldExpired    EventType = "hold_expired"
	EventSaleCancelled  EventType = "sale_cancelled"
	EventPoolReconciled EventType = "pool_reconciled"
)

// ReservationEvent is published after every committed state change. The
// message key is the hold token so events of one token stay ordered.
type ReservationEvent struct {
	ID         uuid.UUID         `json:"id"`
	Type       EventType         `json:"type"`
	Token      string            `json:"token,omitempty"`
	PoolID     int64             `json:"pool_id"`
	SlotID     int64             `json:"slot_id"`
	Quantity   int               `json:"quantity,omitempty"`
	UnitIDs    []int64           `json:"unit_ids,omitempty"`
	Status     domain.HoldStatus `json:"status,omitempty"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

func NewHoldEvent(t EventType, hold domain.Hold, slotID int64, at time.Time) ReservationEvent {
	ev := ReservationEvent{
		ID:         uuid.New(),
		Type:       t,
		Token:      hold.Token,
		PoolID:     hold.PoolID,
		SlotID:     slotID,
		Quantity:   hold.Quantity,
		UnitIDs:    hold.UnitIDs,
		Status:     hold.Status,
		OccurredAt: at,
	}
	if !hold.ExpiresAt.IsZero() && hold.Status == domain.HoldStatusHeld {
		exp := hold.ExpiresAt
		ev.ExpiresAt = &exp
	}
	return ev
}

func NewPoolEvent(t EventType, poolID, slotID int64, at time.Time) ReservationEvent {
	return ReservationEvent{
		ID:         uuid.New(),
		Type:       t,
		PoolID:     poolID,
		SlotID:     slotID,
		OccurredAt: at,
	}
}

// Key is the partitioning key: the token, or the pool id for pool-level events.
func (e ReservationEvent) Key() string {
	if e.Token != "" {
		return e.Token
	}
	return "pool:" + itoa(e.PoolID)
}

func DecodeEvent(msg kafka.Message) (ReservationEvent, error) {
	var ev ReservationEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return ReservationEvent{}, errors.Wrapf(err, "decode event at offset %d", msg.Offset)
	}
	return ev, nil
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
