package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/Domenick1991/reservations/internal/inventory"
)

type poolRecord struct {
	meta   domain.Pool
	units  []domain.Unit
	holds  []domain.Hold
	tokens []string
}

// MemoryStore keeps everything in process memory. Every load and save copies,
// so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
	slots    map[int64]domain.TimeSlot
	pools    map[int64]*poolRecord
	tokens   map[string]int64

	lastProduct, lastSlot, lastPool, lastUnit int64

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[int64]domain.Product),
		slots:    make(map[int64]domain.TimeSlot),
		pools:    make(map[int64]*poolRecord),
		tokens:   make(map[string]int64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateProduct(_ context.Context, product *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastProduct++
	product.ID = s.lastProduct
	product.CreatedAt = s.now()
	s.products[product.ID] = *product
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (s *MemoryStore) CreateSlot(_ context.Context, slot *domain.TimeSlot, specs []domain.PoolSpec) ([]domain.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[slot.ProductID]; !ok {
		return nil, domain.ErrProductNotFound
	}

	s.lastSlot++
	slot.ID = s.lastSlot
	slot.CreatedAt = s.now()
	s.slots[slot.ID] = *slot

	pools := make([]domain.Pool, 0, len(specs))
	for _, spec := range specs {
		s.lastPool++
		meta := poolFromSpec(slot.ID, spec)
		meta.ID = s.lastPool

		rec := &poolRecord{meta: meta}
		for _, label := range spec.UnitLabels {
			s.lastUnit++
			rec.units = append(rec.units, domain.Unit{
				ID:     s.lastUnit,
				PoolID: meta.ID,
				Label:  label,
				State:  domain.UnitStateAvailable,
			})
		}
		s.pools[meta.ID] = rec
		pools = append(pools, meta)
	}
	return pools, nil
}

func (s *MemoryStore) GetSlot(_ context.Context, id int64) (*domain.TimeSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.slots[id]
	if !ok {
		return nil, domain.ErrSlotNotFound
	}
	return &slot, nil
}

func (s *MemoryStore) ListSlots(_ context.Context, productID int64) ([]domain.TimeSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.products[productID]; !ok {
		return nil, domain.ErrProductNotFound
	}
	slots := make([]domain.TimeSlot, 0)
	for _, slot := range s.slots {
		if slot.ProductID == productID {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].StartsAt.Equal(slots[j].StartsAt) {
			return slots[i].ID < slots[j].ID
		}
		return slots[i].StartsAt.Before(slots[j].StartsAt)
	})
	return slots, nil
}

func (s *MemoryStore) SetSlotOpen(_ context.Context, id int64, open bool) (*domain.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return nil, domain.ErrSlotNotFound
	}
	slot.IsOpen = open
	s.slots[id] = slot
	return &slot, nil
}

func (s *MemoryStore) LoadPool(_ context.Context, poolID int64) (*inventory.Pool, *domain.TimeSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.pools[poolID]
	if !ok {
		return nil, nil, domain.ErrPoolNotFound
	}
	slot, ok := s.slots[rec.meta.SlotID]
	if !ok {
		return nil, nil, domain.ErrSlotNotFound
	}
	return rec.load(), &slot, nil
}

func (s *MemoryStore) LoadSlotPools(_ context.Context, slotID int64) (*inventory.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.slots[slotID]
	if !ok {
		return nil, domain.ErrSlotNotFound
	}
	var pools []*inventory.Pool
	for _, rec := range s.pools {
		if rec.meta.SlotID == slotID {
			pools = append(pools, rec.load())
		}
	}
	return inventory.NewSlot(slot, pools...), nil
}

func (s *MemoryStore) SavePool(_ context.Context, pool *inventory.Pool, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.pools[pool.ID()]
	if !ok {
		return domain.ErrPoolNotFound
	}
	if rec.meta.Version != expectedVersion {
		return domain.ErrConcurrencyConflict
	}

	holds := pool.Holds()
	for _, h := range holds {
		if owner, ok := s.tokens[h.Token]; ok && owner != rec.meta.ID {
			return domain.ErrIdempotencyConflict
		}
	}

	meta := pool.Meta()
	meta.Version = expectedVersion + 1
	rec.meta = meta
	rec.units = pool.Units()
	rec.holds = nil
	if !meta.UnitTracked {
		rec.holds = cloneHolds(holds)
	}

	for _, token := range rec.tokens {
		delete(s.tokens, token)
	}
	rec.tokens = rec.tokens[:0]
	for _, h := range holds {
		s.tokens[h.Token] = meta.ID
		rec.tokens = append(rec.tokens, h.Token)
	}

	pool.Committed(meta.Version)
	return nil
}

func (s *MemoryStore) ListPoolIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.pools))
	for id := range s.pools {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *MemoryStore) PoolIDByToken(_ context.Context, token string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokens[token]
	if !ok {
		return 0, domain.ErrHoldNotFound
	}
	return id, nil
}

func (r *poolRecord) load() *inventory.Pool {
	return inventory.NewPool(r.meta, r.units, cloneHolds(r.holds))
}

func cloneHolds(holds []domain.Hold) []domain.Hold {
	out := make([]domain.Hold, len(holds))
	for i, h := range holds {
		h.UnitIDs = slices.Clone(h.UnitIDs)
		out[i] = h
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
