package repository

import (
	"context"

	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/Domenick1991/reservations/internal/inventory"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const (
	poolColumns = `id, slot_id, category_key, total, held, sold, version, unit_tracked`
	slotColumns = `id, product_id, starts_at, ends_at, is_open, created_at`
	unitColumns = `id, pool_id, label, state, COALESCE(hold_token, ''), held_at, hold_expires_at`
	holdColumns = `token, pool_id, quantity, status, created_at, expires_at`
)

func (r *PGStore) CreateProduct(ctx context.Context, product *domain.Product) error {
	err := r.db.QueryRow(ctx, `INSERT INTO product (kind, name) VALUES ($1, $2) RETURNING id, created_at`,
		product.Kind, product.Name).Scan(&product.ID, &product.CreatedAt)
	return storageErr(err, "insert product")
}

func (r *PGStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := r.db.QueryRow(ctx, `SELECT id, kind, name, created_at FROM product WHERE id=$1`, id).
		Scan(&p.ID, &p.Kind, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, storageErr(err, "select product")
	}
	return &p, nil
}

func (r *PGStore) CreateSlot(ctx context.Context, slot *domain.TimeSlot, specs []domain.PoolSpec) ([]domain.Pool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, storageErr(err, "begin create slot")
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `INSERT INTO time_slot (product_id, starts_at, ends_at, is_open)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		slot.ProductID, slot.StartsAt, slot.EndsAt, slot.IsOpen).Scan(&slot.ID, &slot.CreatedAt)
	if isForeignKeyViolation(err) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, storageErr(err, "insert time slot")
	}

	pools := make([]domain.Pool, 0, len(specs))
	for _, spec := range specs {
		meta := poolFromSpec(slot.ID, spec)
		err := tx.QueryRow(ctx, `INSERT INTO capacity_pool (slot_id, category_key, total, unit_tracked)
			VALUES ($1, $2, $3, $4) RETURNING id, version`,
			meta.SlotID, meta.CategoryKey, meta.Total, meta.UnitTracked).Scan(&meta.ID, &meta.Version)
		if err != nil {
			return nil, storageErr(err, "insert capacity pool")
		}
		for _, label := range spec.UnitLabels {
			if _, err := tx.Exec(ctx, `INSERT INTO inventory_unit (pool_id, label, state) VALUES ($1, $2, $3)`,
				meta.ID, label, domain.UnitStateAvailable); err != nil {
				return nil, storageErr(err, "insert inventory unit")
			}
		}
		pools = append(pools, meta)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr(err, "commit create slot")
	}
	return pools, nil
}

func (r *PGStore) GetSlot(ctx context.Context, id int64) (*domain.TimeSlot, error) {
	return scanSlot(r.db.QueryRow(ctx, `SELECT `+slotColumns+` FROM time_slot WHERE id=$1`, id))
}

func (r *PGStore) ListSlots(ctx context.Context, productID int64) ([]domain.TimeSlot, error) {
	if _, err := r.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+slotColumns+` FROM time_slot WHERE product_id=$1 ORDER BY starts_at, id`, productID)
	if err != nil {
		return nil, storageErr(err, "select time slots")
	}
	defer rows.Close()

	slots := make([]domain.TimeSlot, 0)
	for rows.Next() {
		var s domain.TimeSlot
		if err := rows.Scan(&s.ID, &s.ProductID, &s.StartsAt, &s.EndsAt, &s.IsOpen, &s.CreatedAt); err != nil {
			return nil, storageErr(err, "scan time slot")
		}
		slots = append(slots, s)
	}
	return slots, storageErr(rows.Err(), "iterate time slots")
}

func (r *PGStore) SetSlotOpen(ctx context.Context, id int64, open bool) (*domain.TimeSlot, error) {
	return scanSlot(r.db.QueryRow(ctx, `UPDATE time_slot SET is_open=$2 WHERE id=$1 RETURNING `+slotColumns, id, open))
}

func (r *PGStore) LoadPool(ctx context.Context, poolID int64) (*inventory.Pool, *domain.TimeSlot, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, storageErr(err, "begin load pool")
	}
	defer tx.Rollback(ctx)

	meta, err := scanPool(tx.QueryRow(ctx, `SELECT `+poolColumns+` FROM capacity_pool WHERE id=$1`, poolID))
	if err != nil {
		return nil, nil, err
	}
	slot, err := scanSlot(tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM time_slot WHERE id=$1`, meta.SlotID))
	if err != nil {
		return nil, nil, err
	}
	pool, err := loadPoolState(ctx, tx, meta)
	if err != nil {
		return nil, nil, err
	}
	return pool, slot, nil
}

func (r *PGStore) LoadSlotPools(ctx context.Context, slotID int64) (*inventory.Slot, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, storageErr(err, "begin load slot")
	}
	defer tx.Rollback(ctx)

	slot, err := scanSlot(tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM time_slot WHERE id=$1`, slotID))
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT `+poolColumns+` FROM capacity_pool WHERE slot_id=$1 ORDER BY id`, slotID)
	if err != nil {
		return nil, storageErr(err, "select capacity pools")
	}
	var metas []domain.Pool
	for rows.Next() {
		var m domain.Pool
		if err := rows.Scan(&m.ID, &m.SlotID, &m.CategoryKey, &m.Total, &m.Held, &m.Sold, &m.Version, &m.UnitTracked); err != nil {
			rows.Close()
			return nil, storageErr(err, "scan capacity pool")
		}
		metas = append(metas, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "iterate capacity pools")
	}

	pools := make([]*inventory.Pool, 0, len(metas))
	for _, m := range metas {
		p, err := loadPoolState(ctx, tx, &m)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return inventory.NewSlot(*slot, pools...), nil
}

func (r *PGStore) SavePool(ctx context.Context, pool *inventory.Pool, expectedVersion int64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storageErr(err, "begin save pool")
	}
	defer tx.Rollback(ctx)

	meta := pool.Meta()
	var version int64
	err = tx.QueryRow(ctx, `UPDATE capacity_pool
		SET total=$3, held=$4, sold=$5, version=version+1, updated_at=now()
		WHERE id=$1 AND version=$2
		RETURNING version`, meta.ID, expectedVersion, meta.Total, meta.Held, meta.Sold).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrConcurrencyConflict
	}
	if err != nil {
		return storageErr(err, "update capacity pool")
	}

	changes := pool.Changes()
	for _, u := range changes.Units {
		var token *string
		if u.HoldToken != "" {
			token = &u.HoldToken
		}
		if _, err := tx.Exec(ctx, `UPDATE inventory_unit
			SET state=$3, hold_token=$4, held_at=$5, hold_expires_at=$6
			WHERE id=$1 AND pool_id=$2`, u.ID, meta.ID, u.State, token, u.HeldAt, u.HoldExpiresAt); err != nil {
			return storageErr(err, "update inventory unit")
		}
	}
	for _, h := range changes.UpsertHolds {
		tag, err := tx.Exec(ctx, `INSERT INTO reservation_hold (`+holdColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (token) DO UPDATE
			SET quantity=EXCLUDED.quantity, status=EXCLUDED.status,
			    created_at=EXCLUDED.created_at, expires_at=EXCLUDED.expires_at
			WHERE reservation_hold.pool_id = EXCLUDED.pool_id`,
			h.Token, meta.ID, h.Quantity, h.Status, h.CreatedAt, h.ExpiresAt)
		if err != nil {
			return storageErr(err, "upsert reservation hold")
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrIdempotencyConflict
		}
	}
	for _, token := range changes.DeletedTokens {
		if _, err := tx.Exec(ctx, `DELETE FROM reservation_hold WHERE token=$1 AND pool_id=$2`, token, meta.ID); err != nil {
			return storageErr(err, "delete reservation hold")
		}
	}
	if err := claimTokens(ctx, tx, pool); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr(err, "commit save pool")
	}
	pool.Committed(version)
	return nil
}

func (r *PGStore) ListPoolIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM capacity_pool ORDER BY id`)
	if err != nil {
		return nil, storageErr(err, "select pool ids")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, storageErr(err, "collect pool ids")
	}
	return ids, nil
}

// claimTokens makes hold_token match the pool's live claims. A token already
// registered to another pool fails the save with ErrIdempotencyConflict.
func claimTokens(ctx context.Context, tx pgx.Tx, pool *inventory.Pool) error {
	holds := pool.Holds()
	tokens := make([]string, 0, len(holds))
	for _, h := range holds {
		tokens = append(tokens, h.Token)
	}

	tag, err := tx.Exec(ctx, `INSERT INTO hold_token (token, pool_id)
		SELECT unnest($2::text[]), $1
		ON CONFLICT (token) DO UPDATE SET pool_id=EXCLUDED.pool_id
		WHERE hold_token.pool_id = EXCLUDED.pool_id`, pool.ID(), tokens)
	if err != nil {
		return storageErr(err, "claim hold tokens")
	}
	if tag.RowsAffected() < int64(len(tokens)) {
		return domain.ErrIdempotencyConflict
	}
	if _, err := tx.Exec(ctx, `DELETE FROM hold_token WHERE pool_id=$1 AND token <> ALL($2::text[])`, pool.ID(), tokens); err != nil {
		return storageErr(err, "drop hold tokens")
	}
	return nil
}

func (r *PGStore) PoolIDByToken(ctx context.Context, token string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT pool_id FROM hold_token WHERE token=$1`, token).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrHoldNotFound
	}
	if err != nil {
		return 0, storageErr(err, "resolve token")
	}
	return id, nil
}

func loadPoolState(ctx context.Context, tx pgx.Tx, meta *domain.Pool) (*inventory.Pool, error) {
	if meta.UnitTracked {
		rows, err := tx.Query(ctx, `SELECT `+unitColumns+` FROM inventory_unit WHERE pool_id=$1 ORDER BY id`, meta.ID)
		if err != nil {
			return nil, storageErr(err, "select inventory units")
		}
		defer rows.Close()

		var units []domain.Unit
		for rows.Next() {
			var u domain.Unit
			if err := rows.Scan(&u.ID, &u.PoolID, &u.Label, &u.State, &u.HoldToken, &u.HeldAt, &u.HoldExpiresAt); err != nil {
				return nil, storageErr(err, "scan inventory unit")
			}
			units = append(units, u)
		}
		if err := rows.Err(); err != nil {
			return nil, storageErr(err, "iterate inventory units")
		}
		return inventory.NewPool(*meta, units, nil), nil
	}

	rows, err := tx.Query(ctx, `SELECT `+holdColumns+` FROM reservation_hold WHERE pool_id=$1`, meta.ID)
	if err != nil {
		return nil, storageErr(err, "select reservation holds")
	}
	defer rows.Close()

	var holds []domain.Hold
	for rows.Next() {
		var h domain.Hold
		if err := rows.Scan(&h.Token, &h.PoolID, &h.Quantity, &h.Status, &h.CreatedAt, &h.ExpiresAt); err != nil {
			return nil, storageErr(err, "scan reservation hold")
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "iterate reservation holds")
	}
	return inventory.NewPool(*meta, nil, holds), nil
}

func scanPool(row pgx.Row) (*domain.Pool, error) {
	var m domain.Pool
	err := row.Scan(&m.ID, &m.SlotID, &m.CategoryKey, &m.Total, &m.Held, &m.Sold, &m.Version, &m.UnitTracked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPoolNotFound
	}
	if err != nil {
		return nil, storageErr(err, "select capacity pool")
	}
	return &m, nil
}

func scanSlot(row pgx.Row) (*domain.TimeSlot, error) {
	var s domain.TimeSlot
	err := row.Scan(&s.ID, &s.ProductID, &s.StartsAt, &s.EndsAt, &s.IsOpen, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSlotNotFound
	}
	if err != nil {
		return nil, storageErr(err, "select time slot")
	}
	return &s, nil
}

// storageErr wraps a driver error and marks it with its domain kind.
// Serialization failures and deadlocks are retryable conflicts.
func storageErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if isRetryable(err) {
		return domain.WithKind(errors.Wrap(err, op), domain.ErrConcurrencyConflict)
	}
	return domain.WithKind(errors.Wrap(err, op), domain.ErrStorageFailure)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ Store = (*PGStore)(nil)
