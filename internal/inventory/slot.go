package inventory

import (
	"sort"
	"time"

	"github.com/Domenick1991/reservations/internal/domain"
)

// Slot groups the pools of one dated occurrence. It keeps no counters of its
// own; totals are summed from the pools on every read.
type Slot struct {
	meta  domain.TimeSlot
	pools map[int64]*Pool
	order []int64
}

func NewSlot(meta domain.TimeSlot, pools ...*Pool) *Slot {
	s := &Slot{meta: meta, pools: make(map[int64]*Pool, len(pools))}
	for _, p := range pools {
		s.pools[p.ID()] = p
		s.order = append(s.order, p.ID())
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	return s
}

func (s *Slot) Meta() domain.TimeSlot { return s.meta }

func (s *Slot) Pool(id int64) (*Pool, error) {
	p, ok := s.pools[id]
	if !ok {
		return nil, domain.ErrPoolNotFound
	}
	return p, nil
}

func (s *Slot) Pools() []*Pool {
	out := make([]*Pool, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.pools[id])
	}
	return out
}

// Hold refuses new holds on a closed slot whatever the remaining capacity.
func (s *Slot) Hold(poolID int64, req HoldRequest, now time.Time, ttl time.Duration) (HoldResult, error) {
	if !s.meta.IsOpen {
		return HoldResult{}, domain.ErrSlotClosed
	}
	p, err := s.Pool(poolID)
	if err != nil {
		return HoldResult{}, err
	}
	return p.Hold(req, now, ttl)
}

// Confirm, Release and Cancel stay allowed after the slot is closed so that
// in-flight checkouts can finish.
func (s *Slot) Confirm(poolID int64, token string, now time.Time) (domain.Hold, error) {
	p, err := s.Pool(poolID)
	if err != nil {
		return domain.Hold{}, err
	}
	return p.Confirm(token, now)
}

func (s *Slot) Release(poolID int64, token string) (domain.Hold, bool, error) {
	p, err := s.Pool(poolID)
	if err != nil {
		return domain.Hold{}, false, err
	}
	h, ok := p.Release(token)
	return h, ok, nil
}

func (s *Slot) Cancel(poolID int64, token string) (domain.Hold, error) {
	p, err := s.Pool(poolID)
	if err != nil {
		return domain.Hold{}, err
	}
	return p.Cancel(token)
}

func (s *Slot) TotalCapacity() int {
	total := 0
	for _, p := range s.pools {
		total += p.Meta().Total
	}
	return total
}

func (s *Slot) TotalAvailable() int {
	total := 0
	for _, p := range s.pools {
		total += p.Meta().Available()
	}
	return total
}

func (s *Slot) Snapshot() domain.SlotSnapshot {
	snap := domain.SlotSnapshot{Slot: s.meta}
	for _, id := range s.order {
		ps := s.pools[id].Snapshot()
		snap.Total += ps.Total
		snap.Available += ps.Available
		snap.Held += ps.Held
		snap.Sold += ps.Sold
		snap.Pools = append(snap.Pools, ps)
	}
	return snap
}
