package domain

import (
	"strings"

	"github.com/gosimple/slug"
)

// Pool is a priced sub-category of a time slot: a tour variant, or an event
// section crossed with a ticket type.
//
// Total == Available() + Held + Sold must hold at all times. For unit-tracked
// pools Held and Sold are a cache of the unit states.
type Pool struct {
	ID          int64
	SlotID      int64
	CategoryKey string
	Total       int
	Held        int
	Sold        int
	Version     int64
	UnitTracked bool
}

func (p Pool) Available() int {
	return p.Total - p.Held - p.Sold
}

// Consistent reports whether the counters satisfy the pool invariant.
func (p Pool) Consistent() bool {
	return p.Held >= 0 && p.Sold >= 0 && p.Available() >= 0
}

// PoolSpec describes a pool to create together with its time slot. A non-empty
// UnitLabels makes the pool unit-tracked with one unit per label, and Total is
// then taken from len(UnitLabels).
type PoolSpec struct {
	CategoryKey string
	Total       int
	UnitLabels  []string
}

// CategoryKey builds a stable key from human readable parts,
// e.g. CategoryKey("VIP", "Adult") == "vip-adult".
func CategoryKey(parts ...string) string {
	return slug.Make(strings.Join(parts, " "))
}
