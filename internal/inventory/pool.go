package inventory

import (
	"slices"
	"sort"
	"time"

	"github.com/Domenick1991/reservations/internal/domain"
)

// Pool is the in-memory state machine of one capacity pool. It is either
// counter-only, with a hold ledger as ground truth, or unit-tracked, where the
// unit states are ground truth and holds are derived from them.
//
// A Pool is not safe for concurrent use. Operations validate before they
// mutate, so a failed call leaves the pool unchanged. The one exception is
// Confirm on an expired hold, which releases the hold before failing.
type Pool struct {
	meta   domain.Pool
	units  []domain.Unit
	byID   map[int64]int
	ledger map[string]domain.Hold

	dirtyUnits  map[int64]struct{}
	dirtyTokens map[string]struct{}
}

type HoldRequest struct {
	Token    string
	Quantity int
	UnitIDs  []int64
}

type HoldResult struct {
	Hold     domain.Hold
	Existing bool
}

// Drift describes what Reconcile found and repaired.
type Drift struct {
	Before        domain.Snapshot
	After         domain.Snapshot
	Repaired      bool
	RepairedUnits int
	Overcommitted bool
}

// Changes lists the rows touched since the pool was loaded.
type Changes struct {
	Units         []domain.Unit
	UpsertHolds   []domain.Hold
	DeletedTokens []string
}

func NewPool(meta domain.Pool, units []domain.Unit, holds []domain.Hold) *Pool {
	p := &Pool{
		meta:        meta,
		dirtyUnits:  make(map[int64]struct{}),
		dirtyTokens: make(map[string]struct{}),
	}
	if meta.UnitTracked {
		p.units = make([]domain.Unit, len(units))
		copy(p.units, units)
		sort.Slice(p.units, func(i, j int) bool { return p.units[i].ID < p.units[j].ID })
		p.byID = make(map[int64]int, len(p.units))
		for i, u := range p.units {
			p.byID[u.ID] = i
		}
		return p
	}
	p.ledger = make(map[string]domain.Hold, len(holds))
	for _, h := range holds {
		h.UnitIDs = nil
		p.ledger[h.Token] = h
	}
	return p
}

func (p *Pool) ID() int64 { return p.meta.ID }

func (p *Pool) Meta() domain.Pool { return p.meta }

func (p *Pool) Version() int64 { return p.meta.Version }

func (p *Pool) Units() []domain.Unit {
	out := make([]domain.Unit, len(p.units))
	copy(out, p.units)
	return out
}

func (p *Pool) Snapshot() domain.Snapshot {
	return domain.Snapshot{
		PoolID:      p.meta.ID,
		SlotID:      p.meta.SlotID,
		CategoryKey: p.meta.CategoryKey,
		UnitTracked: p.meta.UnitTracked,
		Total:       p.meta.Total,
		Available:   p.meta.Available(),
		Held:        p.meta.Held,
		Sold:        p.meta.Sold,
		Version:     p.meta.Version,
	}
}

// Holds returns every held or sold claim, ordered by token.
func (p *Pool) Holds() []domain.Hold {
	var out []domain.Hold
	if p.meta.UnitTracked {
		out = p.unitHolds()
	} else {
		out = make([]domain.Hold, 0, len(p.ledger))
		for _, h := range p.ledger {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// Find returns the claim recorded for token, held or sold.
func (p *Pool) Find(token string) (domain.Hold, bool) {
	if !p.meta.UnitTracked {
		h, ok := p.ledger[token]
		return h, ok
	}
	var (
		h     domain.Hold
		found bool
	)
	for _, u := range p.units {
		if u.HoldToken != token || u.State == domain.UnitStateAvailable {
			continue
		}
		if !found {
			h = holdFromUnit(u)
			found = true
		}
		h.Quantity++
		h.UnitIDs = append(h.UnitIDs, u.ID)
	}
	return h, found
}

func (p *Pool) Hold(req HoldRequest, now time.Time, ttl time.Duration) (HoldResult, error) {
	if req.Token == "" {
		return HoldResult{}, domain.ErrTokenRequired
	}
	qty, unitIDs, err := p.normalize(req)
	if err != nil {
		return HoldResult{}, err
	}

	if existing, ok := p.Find(req.Token); ok && !existing.Expired(now) {
		if existing.Status == domain.HoldStatusSold {
			return HoldResult{}, domain.ErrHoldAlreadyConfirmed
		}
		if existing.Quantity != qty || (len(unitIDs) > 0 && !slices.Equal(existing.UnitIDs, unitIDs)) {
			return HoldResult{}, domain.ErrIdempotencyConflict
		}
		return HoldResult{Hold: existing, Existing: true}, nil
	}
	// A stale claim under the same token is dropped before the token is reused.
	stale, hasStale := p.Find(req.Token)

	available := p.meta.Available()
	if hasStale {
		available += stale.Quantity
	}
	if available < qty {
		return HoldResult{}, domain.ErrInsufficientCapacity
	}

	var picked []int
	if p.meta.UnitTracked {
		picked, err = p.pickUnits(req.Token, qty, unitIDs)
		if err != nil {
			return HoldResult{}, err
		}
	}

	if hasStale {
		p.release(stale)
	}

	expiresAt := now.Add(ttl)
	hold := domain.Hold{
		Token:     req.Token,
		PoolID:    p.meta.ID,
		Quantity:  qty,
		Status:    domain.HoldStatusHeld,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if p.meta.UnitTracked {
		heldAt, exp := now, expiresAt
		for _, idx := range picked {
			u := &p.units[idx]
			u.State = domain.UnitStateHeld
			u.HoldToken = req.Token
			u.HeldAt = &heldAt
			u.HoldExpiresAt = &exp
			p.dirtyUnits[u.ID] = struct{}{}
			hold.UnitIDs = append(hold.UnitIDs, u.ID)
		}
	} else {
		p.ledger[req.Token] = hold
		p.dirtyTokens[req.Token] = struct{}{}
	}
	p.meta.Held += qty
	return HoldResult{Hold: hold}, nil
}

// Confirm converts an active hold into a sale. Unknown, sold and expired
// tokens all fail with ErrHoldNotFound.
func (p *Pool) Confirm(token string, now time.Time) (domain.Hold, error) {
	h, ok := p.Find(token)
	if !ok || h.Status != domain.HoldStatusHeld {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	if h.Expired(now) {
		p.release(h)
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	if p.meta.UnitTracked {
		for _, id := range h.UnitIDs {
			u := &p.units[p.byID[id]]
			u.State = domain.UnitStateSold
			u.HoldExpiresAt = nil
			p.dirtyUnits[id] = struct{}{}
		}
	} else {
		stored := p.ledger[token]
		stored.Status = domain.HoldStatusSold
		p.ledger[token] = stored
		p.dirtyTokens[token] = struct{}{}
	}
	p.meta.Held -= h.Quantity
	p.meta.Sold += h.Quantity
	h.Status = domain.HoldStatusSold
	return h, nil
}

// Release returns held inventory to available. It reports false when there was
// nothing held under token.
func (p *Pool) Release(token string) (domain.Hold, bool) {
	h, ok := p.Find(token)
	if !ok || h.Status != domain.HoldStatusHeld {
		return domain.Hold{}, false
	}
	p.release(h)
	return h, true
}

// Cancel reverses a completed sale.
func (p *Pool) Cancel(token string) (domain.Hold, error) {
	h, ok := p.Find(token)
	if !ok || h.Status != domain.HoldStatusSold {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	if p.meta.UnitTracked {
		for _, id := range h.UnitIDs {
			p.resetUnit(p.byID[id])
		}
	} else {
		delete(p.ledger, token)
		p.dirtyTokens[token] = struct{}{}
	}
	p.meta.Sold -= h.Quantity
	return h, nil
}

// ExpireBefore releases every hold whose deadline is before now.
func (p *Pool) ExpireBefore(now time.Time) []domain.Hold {
	var expired []domain.Hold
	for _, h := range p.Holds() {
		if h.Expired(now) {
			p.release(h)
			expired = append(expired, h)
		}
	}
	return expired
}

// Reconcile recomputes the cached counters from ground truth and overwrites
// them when they disagree. Unit annotations that contradict the unit state are
// cleared as well.
func (p *Pool) Reconcile() Drift {
	drift := Drift{Before: p.Snapshot()}

	var held, sold int
	if p.meta.UnitTracked {
		for i := range p.units {
			u := &p.units[i]
			switch {
			case u.State == domain.UnitStateHeld && (u.HoldToken == "" || u.HoldExpiresAt == nil):
				p.resetUnit(i)
				drift.RepairedUnits++
			case u.State == domain.UnitStateAvailable && (u.HoldToken != "" || u.HoldExpiresAt != nil || u.HeldAt != nil):
				p.resetUnit(i)
				drift.RepairedUnits++
			case !u.State.IsValid():
				p.resetUnit(i)
				drift.RepairedUnits++
			}
			switch u.State {
			case domain.UnitStateHeld:
				held++
			case domain.UnitStateSold:
				sold++
			}
		}
		if p.meta.Total != len(p.units) {
			p.meta.Total = len(p.units)
			drift.Repaired = true
		}
	} else {
		for _, h := range p.ledger {
			switch h.Status {
			case domain.HoldStatusHeld:
				held += h.Quantity
			case domain.HoldStatusSold:
				sold += h.Quantity
			}
		}
	}

	if p.meta.Held != held || p.meta.Sold != sold {
		p.meta.Held = held
		p.meta.Sold = sold
		drift.Repaired = true
	}
	if drift.RepairedUnits > 0 {
		drift.Repaired = true
	}
	drift.Overcommitted = p.meta.Available() < 0
	drift.After = p.Snapshot()
	return drift
}

// Resize changes the capacity of a counter-only pool.
func (p *Pool) Resize(total int) error {
	if p.meta.UnitTracked {
		return domain.ErrUnitTracked
	}
	if total < 0 {
		return domain.ErrInvalidQuantity
	}
	if total < p.meta.Held+p.meta.Sold {
		return domain.ErrCapacityBelowCommitted
	}
	p.meta.Total = total
	return nil
}

// Dirty reports whether anything changed since the pool was loaded.
func (p *Pool) Dirty(original domain.Pool) bool {
	return p.meta != original || len(p.dirtyUnits) > 0 || len(p.dirtyTokens) > 0
}

func (p *Pool) Changes() Changes {
	var c Changes
	for id := range p.dirtyUnits {
		c.Units = append(c.Units, p.units[p.byID[id]])
	}
	sort.Slice(c.Units, func(i, j int) bool { return c.Units[i].ID < c.Units[j].ID })
	for token := range p.dirtyTokens {
		if h, ok := p.ledger[token]; ok {
			c.UpsertHolds = append(c.UpsertHolds, h)
		} else {
			c.DeletedTokens = append(c.DeletedTokens, token)
		}
	}
	sort.Slice(c.UpsertHolds, func(i, j int) bool { return c.UpsertHolds[i].Token < c.UpsertHolds[j].Token })
	sort.Strings(c.DeletedTokens)
	return c
}

// Committed is called by stores after a successful save.
func (p *Pool) Committed(version int64) {
	p.meta.Version = version
	clear(p.dirtyUnits)
	clear(p.dirtyTokens)
}

func (p *Pool) normalize(req HoldRequest) (int, []int64, error) {
	if len(req.UnitIDs) == 0 {
		if req.Quantity <= 0 {
			return 0, nil, domain.ErrInvalidQuantity
		}
		return req.Quantity, nil, nil
	}
	if !p.meta.UnitTracked {
		return 0, nil, domain.ErrUnitNotFound
	}
	ids := slices.Clone(req.UnitIDs)
	slices.Sort(ids)
	if len(slices.Compact(slices.Clone(ids))) != len(ids) {
		return 0, nil, domain.ErrInvalidQuantity
	}
	if req.Quantity != 0 && req.Quantity != len(ids) {
		return 0, nil, domain.ErrInvalidQuantity
	}
	return len(ids), ids, nil
}

// pickUnits chooses unit indexes for a new hold. Quantity requests take the
// lowest available ids. Units currently held by token itself count as
// available because they are about to be replaced.
func (p *Pool) pickUnits(token string, qty int, unitIDs []int64) ([]int, error) {
	free := func(u domain.Unit) bool {
		return u.State == domain.UnitStateAvailable ||
			(u.State == domain.UnitStateHeld && u.HoldToken == token)
	}
	picked := make([]int, 0, qty)
	if len(unitIDs) > 0 {
		for _, id := range unitIDs {
			idx, ok := p.byID[id]
			if !ok {
				return nil, domain.ErrUnitNotFound
			}
			if !free(p.units[idx]) {
				return nil, domain.ErrUnitUnavailable
			}
			picked = append(picked, idx)
		}
		return picked, nil
	}
	for i, u := range p.units {
		if len(picked) == qty {
			break
		}
		if free(u) {
			picked = append(picked, i)
		}
	}
	if len(picked) < qty {
		return nil, domain.ErrInsufficientCapacity
	}
	return picked, nil
}

func (p *Pool) release(h domain.Hold) {
	if p.meta.UnitTracked {
		for _, id := range h.UnitIDs {
			p.resetUnit(p.byID[id])
		}
	} else {
		delete(p.ledger, h.Token)
		p.dirtyTokens[h.Token] = struct{}{}
	}
	p.meta.Held -= h.Quantity
}

func (p *Pool) resetUnit(idx int) {
	u := &p.units[idx]
	u.State = domain.UnitStateAvailable
	u.HoldToken = ""
	u.HeldAt = nil
	u.HoldExpiresAt = nil
	p.dirtyUnits[u.ID] = struct{}{}
}

func (p *Pool) unitHolds() []domain.Hold {
	byToken := make(map[string]*domain.Hold)
	var order []string
	for _, u := range p.units {
		if u.HoldToken == "" || u.State == domain.UnitStateAvailable {
			continue
		}
		h, ok := byToken[u.HoldToken]
		if !ok {
			nh := holdFromUnit(u)
			h = &nh
			byToken[u.HoldToken] = h
			order = append(order, u.HoldToken)
		}
		h.Quantity++
		h.UnitIDs = append(h.UnitIDs, u.ID)
	}
	out := make([]domain.Hold, 0, len(order))
	for _, token := range order {
		out = append(out, *byToken[token])
	}
	return out
}

func holdFromUnit(u domain.Unit) domain.Hold {
	h := domain.Hold{
		Token:  u.HoldToken,
		PoolID: u.PoolID,
		Status: domain.HoldStatusHeld,
	}
	if u.State == domain.UnitStateSold {
		h.Status = domain.HoldStatusSold
	}
	if u.HeldAt != nil {
		h.CreatedAt = *u.HeldAt
	}
	if u.HoldExpiresAt != nil {
		h.ExpiresAt = *u.HoldExpiresAt
	}
	return h
}
