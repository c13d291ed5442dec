package database

import (
	"context"

	"github.com/evituu/bar-market/internal/model"
)

// Repository defines the standard interface for database operations.
// The in-memory core is authoritative at runtime; the repository keeps the
// durable record and rehydrates state at startup.
type Repository interface {
	Migrate(ctx context.Context) error

	ListItems(ctx context.Context) ([]model.Item, error)
	SeedItems(ctx context.Context, items []model.Item) error

	ListPriceStates(ctx context.Context) ([]model.PriceState, error)
	SavePriceState(ctx context.Context, state model.PriceState) error
	LogPriceTick(ctx context.Context, point model.PricePoint) error

	SaveOrder(ctx context.Context, order model.Order) error
	SaveReservations(ctx context.Context, reservations []model.Reservation) error

	// ConfirmOrder persists one settlement atomically: the confirmed order
	// with its line items, the consumed reservations flipped to used and
	// the stale ones to expired, all in a single transaction.
	ConfirmOrder(ctx context.Context, order model.Order, usedLockIDs, expiredLockIDs []string) error

	// CancelOrder marks a never-settled order canceled along with its
	// remaining reservations.
	CancelOrder(ctx context.Context, orderID string, canceledLockIDs []string) error

	SaveMarketEvent(ctx context.Context, event model.MarketEvent) error
	DeactivateMarketEvents(ctx context.Context) error
}
