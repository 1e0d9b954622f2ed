package domain

import "time"

type HoldStatus string

const (
	HoldStatusHeld HoldStatus = "held"
	HoldStatusSold HoldStatus = "sold"
)

// Hold is a claim on pool inventory identified by the caller's token
// (usually the cart item id).
type Hold struct {
	Token     string
	PoolID    int64
	Quantity  int
	UnitIDs   []int64
	Status    HoldStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether a held claim is past its deadline. Sold holds never expire.
func (h Hold) Expired(now time.Time) bool {
	return h.Status == HoldStatusHeld && h.ExpiresAt.Before(now)
}
