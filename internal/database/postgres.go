package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evituu/bar-market/internal/model"
)

// PostgresRepository implements Repository on top of a pgx pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// Migrate creates the schema if it does not exist yet.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		sku TEXT NOT NULL UNIQUE,
		ticker TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		base_price_cents BIGINT NOT NULL,
		price_floor_cents BIGINT NOT NULL,
		price_cap_cents BIGINT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS price_states (
		item_id TEXT PRIMARY KEY REFERENCES items(id),
		price_cents BIGINT NOT NULL,
		prev_price_cents BIGINT NOT NULL,
		tick_seq BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS price_ticks (
		id BIGSERIAL PRIMARY KEY,
		item_id TEXT NOT NULL,
		price_cents BIGINT NOT NULL,
		ts TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		table_ref TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		total_cents BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		confirmed_at TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		item_id TEXT NOT NULL,
		qty BIGINT NOT NULL,
		price_cents BIGINT NOT NULL,
		line_total_cents BIGINT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		item_id TEXT NOT NULL,
		qty BIGINT NOT NULL,
		locked_price_cents BIGINT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS market_events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ NOT NULL,
		is_active BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`

	if _, err := r.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListItems(ctx context.Context) ([]model.Item, error) {
	const query = `
		SELECT id, sku, ticker, name, category, is_active,
		       base_price_cents, price_floor_cents, price_cap_cents
		FROM items
		ORDER BY ticker
	`

	rows, err := r.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(
			&item.ID, &item.SKU, &item.Ticker, &item.Name, &item.Category, &item.IsActive,
			&item.BasePriceCents, &item.PriceFloorCents, &item.PriceCapCents,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *PostgresRepository) SeedItems(ctx context.Context, items []model.Item) error {
	const query = `
		INSERT INTO items (id, sku, ticker, name, category, is_active,
			base_price_cents, price_floor_cents, price_cap_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	for _, item := range items {
		_, err := r.Pool.Exec(ctx, query,
			item.ID, item.SKU, item.Ticker, item.Name, item.Category, item.IsActive,
			item.BasePriceCents, item.PriceFloorCents, item.PriceCapCents,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) ListPriceStates(ctx context.Context) ([]model.PriceState, error) {
	const query = `
		SELECT item_id, price_cents, prev_price_cents, tick_seq, updated_at
		FROM price_states
	`

	rows, err := r.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []model.PriceState
	for rows.Next() {
		var state model.PriceState
		if err := rows.Scan(
			&state.ItemID, &state.CurrentPriceCents, &state.PrevPriceCents,
			&state.TickSeq, &state.UpdatedAt,
		); err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func (r *PostgresRepository) SavePriceState(ctx context.Context, state model.PriceState) error {
	const query = `
		INSERT INTO price_states (item_id, price_cents, prev_price_cents, tick_seq, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_id) DO UPDATE SET
			price_cents = EXCLUDED.price_cents,
			prev_price_cents = EXCLUDED.prev_price_cents,
			tick_seq = EXCLUDED.tick_seq,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.Pool.Exec(ctx, query,
		state.ItemID, state.CurrentPriceCents, state.PrevPriceCents, state.TickSeq, state.UpdatedAt,
	)
	return err
}

func (r *PostgresRepository) LogPriceTick(ctx context.Context, point model.PricePoint) error {
	const query = `
		INSERT INTO price_ticks (item_id, price_cents, ts)
		VALUES ($1, $2, $3)
	`

	_, err := r.Pool.Exec(ctx, query, point.ItemID, point.PriceCents, point.Timestamp)
	return err
}

func (r *PostgresRepository) SaveOrder(ctx context.Context, order model.Order) error {
	const query = `
		INSERT INTO orders (id, session_id, table_ref, note, status, total_cents, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.Pool.Exec(ctx, query,
		order.ID, order.SessionID, order.TableRef, order.Note,
		order.Status, order.TotalCents, order.CreatedAt, order.ConfirmedAt,
	)
	return err
}

func (r *PostgresRepository) SaveReservations(ctx context.Context, reservations []model.Reservation) error {
	const query = `
		INSERT INTO reservations (id, order_id, item_id, qty, locked_price_cents, expires_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, res := range reservations {
		_, err := r.Pool.Exec(ctx, query,
			res.ID, res.OrderID, res.ItemID, res.Qty,
			res.LockedPriceCents, res.ExpiresAt, res.Status, res.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ConfirmOrder writes one settlement in a single transaction: the order
// flips to confirmed with its total, line items are inserted, used locks
// are consumed and lapsed ones are marked expired.
func (r *PostgresRepository) ConfirmOrder(ctx context.Context, order model.Order, usedLockIDs, expiredLockIDs []string) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE orders SET status = $1, total_cents = $2, confirmed_at = $3 WHERE id = $4`,
		order.Status, order.TotalCents, order.ConfirmedAt, order.ID,
	)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (id, order_id, item_id, qty, price_cents, line_total_cents)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.OrderID, item.ItemID, item.Qty, item.PriceCents, item.LineTotalCents,
		)
		if err != nil {
			return err
		}
	}

	if len(usedLockIDs) > 0 {
		_, err = tx.Exec(ctx,
			`UPDATE reservations SET status = $1 WHERE id = ANY($2)`,
			model.ReservationUsed, usedLockIDs,
		)
		if err != nil {
			return err
		}
	}
	if len(expiredLockIDs) > 0 {
		_, err = tx.Exec(ctx,
			`UPDATE reservations SET status = $1 WHERE id = ANY($2)`,
			model.ReservationExpired, expiredLockIDs,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) CancelOrder(ctx context.Context, orderID string, canceledLockIDs []string) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2`,
		model.OrderCanceled, orderID,
	)
	if err != nil {
		return err
	}

	if len(canceledLockIDs) > 0 {
		_, err = tx.Exec(ctx,
			`UPDATE reservations SET status = $1 WHERE id = ANY($2)`,
			model.ReservationCanceled, canceledLockIDs,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) SaveMarketEvent(ctx context.Context, event model.MarketEvent) error {
	const query = `
		INSERT INTO market_events (id, kind, starts_at, ends_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.Pool.Exec(ctx, query,
		event.ID, event.Kind, event.StartsAt, event.EndsAt, event.IsActive, event.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) DeactivateMarketEvents(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, `UPDATE market_events SET is_active = FALSE WHERE is_active = TRUE`)
	return err
}
