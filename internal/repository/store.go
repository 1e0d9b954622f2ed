package repository

import (
	"context"

	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/Domenick1991/reservations/internal/inventory"
)

// Store persists products, slots and pools.
//
// SavePool is the only write path for pool state. It succeeds only when the
// stored version still equals expectedVersion, and then writes counters,
// changed units and changed ledger rows together, bumping the version by one.
// A stale version yields domain.ErrConcurrencyConflict.
type Store interface {
	CreateProduct(ctx context.Context, product *domain.Product) error
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)

	CreateSlot(ctx context.Context, slot *domain.TimeSlot, pools []domain.PoolSpec) ([]domain.Pool, error)
	GetSlot(ctx context.Context, id int64) (*domain.TimeSlot, error)
	ListSlots(ctx context.Context, productID int64) ([]domain.TimeSlot, error)
	SetSlotOpen(ctx context.Context, id int64, open bool) (*domain.TimeSlot, error)

	LoadPool(ctx context.Context, poolID int64) (*inventory.Pool, *domain.TimeSlot, error)
	LoadSlotPools(ctx context.Context, slotID int64) (*inventory.Slot, error)
	SavePool(ctx context.Context, pool *inventory.Pool, expectedVersion int64) error

	ListPoolIDs(ctx context.Context) ([]int64, error)
	PoolIDByToken(ctx context.Context, token string) (int64, error)
}

func poolFromSpec(slotID int64, spec domain.PoolSpec) domain.Pool {
	total := spec.Total
	if len(spec.UnitLabels) > 0 {
		total = len(spec.UnitLabels)
	}
	return domain.Pool{
		SlotID:      slotID,
		CategoryKey: spec.CategoryKey,
		Total:       total,
		Version:     1,
		UnitTracked: len(spec.UnitLabels) > 0,
	}
}
