package catalog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Domenick1991/reservations/internal/clock"
	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/Domenick1991/reservations/internal/inventory"
	"github.com/cockroachdb/errors"
)

type CatalogUseCase interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateSlot(ctx context.Context, input CreateSlotInput) (*domain.SlotSnapshot, error)
	ListSlots(ctx context.Context, productID int64) ([]domain.TimeSlot, error)
	SetSlotOpen(ctx context.Context, slotID int64, open bool) (*domain.TimeSlot, error)
	GetSlotSnapshot(ctx context.Context, slotID int64) (*domain.SlotSnapshot, error)
	GetPoolSnapshot(ctx context.Context, poolID int64) (*domain.Snapshot, error)
}

// Store is the part of repository.Store the catalog reads and sets up.
type Store interface {
	CreateProduct(ctx context.Context, product *domain.Product) error
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateSlot(ctx context.Context, slot *domain.TimeSlot, pools []domain.PoolSpec) ([]domain.Pool, error)
	ListSlots(ctx context.Context, productID int64) ([]domain.TimeSlot, error)
	SetSlotOpen(ctx context.Context, id int64, open bool) (*domain.TimeSlot, error)
	LoadPool(ctx context.Context, poolID int64) (*inventory.Pool, *domain.TimeSlot, error)
	LoadSlotPools(ctx context.Context, slotID int64) (*inventory.Slot, error)
}

type SnapshotCache interface {
	GetSlotSnapshot(ctx context.Context, slotID int64) (*domain.SlotSnapshot, error)
	SetSlotSnapshot(ctx context.Context, snap *domain.SlotSnapshot) error
	InvalidateSlot(ctx context.Context, slotID int64) error
}

type CreateProductInput struct {
	Kind domain.ProductKind `json:"kind"`
	Name string             `json:"name"`
}

type PoolInput struct {
	// Category parts are joined into the pool's category key, e.g. ["VIP", "Adult"].
	Category   []string `json:"category"`
	Total      int      `json:"total"`
	UnitLabels []string `json:"unit_labels"`
}

type CreateSlotInput struct {
	ProductID int64       `json:"product_id"`
	StartsAt  time.Time   `json:"starts_at"`
	EndsAt    time.Time   `json:"ends_at"`
	Closed    bool        `json:"closed"`
	Pools     []PoolInput `json:"pools"`
}

type CatalogService struct {
	store  Store
	cache  SnapshotCache
	clock  clock.Clock
	logger *slog.Logger
}

func NewCatalogService(store Store, cache SnapshotCache, c clock.Clock, logger *slog.Logger) *CatalogService {
	if c == nil {
		c = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{store: store, cache: cache, clock: c, logger: logger}
}

func (s *CatalogService) CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	name := strings.TrimSpace(input.Name)
	if !input.Kind.IsValid() {
		return nil, errors.Wrapf(domain.ErrInvalidProduct, "unknown kind %q", input.Kind)
	}
	if name == "" {
		return nil, errors.Wrap(domain.ErrInvalidProduct, "name is required")
	}

	product := &domain.Product{Kind: input.Kind, Name: name}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// CreateSlot creates the slot together with all of its pools and units.
func (s *CatalogService) CreateSlot(ctx context.Context, input CreateSlotInput) (*domain.SlotSnapshot, error) {
	specs, err := poolSpecs(input)
	if err != nil {
		return nil, err
	}

	slot := &domain.TimeSlot{
		ProductID: input.ProductID,
		StartsAt:  input.StartsAt.UTC(),
		EndsAt:    input.EndsAt.UTC(),
		IsOpen:    !input.Closed,
	}
	if _, err := s.store.CreateSlot(ctx, slot, specs); err != nil {
		return nil, err
	}
	s.logger.Info("slot created", "slot_id", slot.ID, "product_id", slot.ProductID, "pools", len(specs))
	return s.loadSlotSnapshot(ctx, slot.ID)
}

func (s *CatalogService) ListSlots(ctx context.Context, productID int64) ([]domain.TimeSlot, error) {
	return s.store.ListSlots(ctx, productID)
}

// SetSlotOpen stops or resumes new holds on a slot. Existing holds and sales
// are left alone.
func (s *CatalogService) SetSlotOpen(ctx context.Context, slotID int64, open bool) (*domain.TimeSlot, error) {
	slot, err := s.store.SetSlotOpen(ctx, slotID, open)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.InvalidateSlot(ctx, slotID); err != nil {
			s.logger.Warn("failed to invalidate slot snapshot", "slot_id", slotID, "error", err)
		}
	}
	return slot, nil
}

// GetSlotSnapshot serves from the cache when it can. Cache failures are logged
// and the store answers instead.
func (s *CatalogService) GetSlotSnapshot(ctx context.Context, slotID int64) (*domain.SlotSnapshot, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSlotSnapshot(ctx, slotID)
		if err != nil {
			s.logger.Warn("slot snapshot cache read failed", "slot_id", slotID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	snap, err := s.loadSlotSnapshot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetSlotSnapshot(ctx, snap); err != nil {
			s.logger.Warn("slot snapshot cache write failed", "slot_id", slotID, "error", err)
		}
	}
	return snap, nil
}

func (s *CatalogService) GetPoolSnapshot(ctx context.Context, poolID int64) (*domain.Snapshot, error) {
	pool, _, err := s.store.LoadPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	// counts as of now; the expiry itself is persisted by the next mutation or sweep
	pool.ExpireBefore(s.clock.Now())
	snap := pool.Snapshot()
	return &snap, nil
}

func (s *CatalogService) loadSlotSnapshot(ctx context.Context, slotID int64) (*domain.SlotSnapshot, error) {
	slot, err := s.store.LoadSlotPools(ctx, slotID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for _, p := range slot.Pools() {
		p.ExpireBefore(now)
	}
	snap := slot.Snapshot()
	return &snap, nil
}

func poolSpecs(input CreateSlotInput) ([]domain.PoolSpec, error) {
	if input.ProductID <= 0 {
		return nil, errors.Wrap(domain.ErrInvalidSlot, "product_id is required")
	}
	if input.StartsAt.IsZero() || !input.EndsAt.After(input.StartsAt) {
		return nil, errors.Wrap(domain.ErrInvalidSlot, "ends_at must be after starts_at")
	}
	if len(input.Pools) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidSlot, "at least one pool is required")
	}

	specs := make([]domain.PoolSpec, 0, len(input.Pools))
	keys := make(map[string]struct{}, len(input.Pools))
	for i, p := range input.Pools {
		key := domain.CategoryKey(p.Category...)
		if key == "" {
			return nil, errors.Wrapf(domain.ErrInvalidSlot, "pool %d: category is required", i)
		}
		if _, dup := keys[key]; dup {
			return nil, errors.Wrapf(domain.ErrInvalidSlot, "pool %d: duplicate category %q", i, key)
		}
		keys[key] = struct{}{}

		if len(p.UnitLabels) > 0 {
			if p.Total != 0 && p.Total != len(p.UnitLabels) {
				return nil, errors.Wrapf(domain.ErrInvalidSlot, "pool %q: total %d does not match %d units", key, p.Total, len(p.UnitLabels))
			}
			seen := make(map[string]struct{}, len(p.UnitLabels))
			labels := make([]string, 0, len(p.UnitLabels))
			for _, l := range p.UnitLabels {
				l = strings.TrimSpace(l)
				if _, dup := seen[l]; dup || l == "" {
					return nil, errors.Wrapf(domain.ErrInvalidSlot, "pool %q: unit labels must be unique and non-empty", key)
				}
				seen[l] = struct{}{}
				labels = append(labels, l)
			}
			p.UnitLabels = labels
		} else if p.Total < 0 {
			return nil, errors.Wrapf(domain.ErrInvalidSlot, "pool %q: total must not be negative", key)
		}

		specs = append(specs, domain.PoolSpec{CategoryKey: key, Total: p.Total, UnitLabels: p.UnitLabels})
	}
	return specs, nil
}

var _ CatalogUseCase = (*CatalogService)(nil)
