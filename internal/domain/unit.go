package domain

import "time"

type UnitState string

const (
	UnitStateAvailable UnitState = "available"
	UnitStateHeld      UnitState = "held"
	UnitStateSold      UnitState = "sold"
)

func (s UnitState) IsValid() bool {
	switch s {
	case UnitStateAvailable, UnitStateHeld, UnitStateSold:
		return true
	default:
		return false
	}
}

// Unit is an individually addressable seat. Units are created with their slot
// and never deleted; only State and the hold annotation change. A sold unit
// keeps HoldToken so the sale can be cancelled by token.
type Unit struct {
	ID            int64
	PoolID        int64
	Label         string
	State         UnitState
	HoldToken     string
	HeldAt        *time.Time
	HoldExpiresAt *time.Time
}
