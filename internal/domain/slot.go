package domain

import "time"

// TimeSlot is one concrete occurrence of a product (a date, or a date and time window).
// Its capacity is the sum of its pools; it keeps no counters of its own.
type TimeSlot struct {
	ID        int64
	ProductID int64
	StartsAt  time.Time
	EndsAt    time.Time
	IsOpen    bool
	CreatedAt time.Time
}
