package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evituu/bar-market/internal/model"
)

func newTestManager(t *testing.T, ttl time.Duration) (*ReservationManager, *Store) {
	t.Helper()

	store := NewStore()
	require.NoError(t, store.AddItem(testItem()))
	manager := NewReservationManager(store, ttl, nil, testLogger())
	return manager, store
}

func TestCreateReservations(t *testing.T) {
	manager, _ := newTestManager(t, 15*time.Second)

	set, err := manager.CreateReservations(context.Background(), OrderIntent{
		SessionID: "sess-1",
		TableRef:  "table-7",
		Items:     []ItemRequest{{ItemID: "item-lagr", Qty: 2}},
	})
	require.NoError(t, err)

	require.Len(t, set.Locks, 1)
	lock := set.Locks[0]
	assert.Equal(t, int64(1800), lock.LockedPriceCents, "locked at the current tick's price")
	assert.Equal(t, int64(2), lock.Qty)
	assert.Equal(t, int64(3600), set.TotalCents)
	assert.Equal(t, 15, set.TTLSeconds)
	assert.Equal(t, set.OrderID, lock.OrderID)
	assert.Equal(t, model.ReservationActive, lock.Status)
	assert.WithinDuration(t, time.Now().Add(15*time.Second), set.ExpiresAt, time.Second)
}

func TestCreateReservationsSharedExpiry(t *testing.T) {
	manager, store := newTestManager(t, 15*time.Second)

	second := testItem()
	second.ID = "item-ipa4"
	second.SKU = "DRK-002"
	second.Ticker = "IPA4"
	second.BasePriceCents = 2600
	second.PriceFloorCents = 1800
	second.PriceCapCents = 4200
	require.NoError(t, store.AddItem(second))

	set, err := manager.CreateReservations(context.Background(), OrderIntent{
		SessionID: "sess-1",
		Items: []ItemRequest{
			{ItemID: "item-lagr", Qty: 1},
			{ItemID: "item-ipa4", Qty: 3},
		},
	})
	require.NoError(t, err)
	require.Len(t, set.Locks, 2)

	assert.Equal(t, set.Locks[0].OrderID, set.Locks[1].OrderID)
	assert.Equal(t, set.Locks[0].ExpiresAt, set.Locks[1].ExpiresAt, "one call, one expiry")
	assert.Equal(t, int64(1800+3*2600), set.TotalCents)
}

func TestCreateReservationsAllOrNothing(t *testing.T) {
	manager, store := newTestManager(t, 15*time.Second)

	_, err := manager.CreateReservations(context.Background(), OrderIntent{
		SessionID: "sess-1",
		Items: []ItemRequest{
			{ItemID: "item-lagr", Qty: 1},
			{ItemID: "item-ghost", Qty: 1},
		},
	})
	assert.ErrorIs(t, err, ErrItemNotFound)

	store.mu.RLock()
	defer store.mu.RUnlock()
	assert.Empty(t, store.reservations, "no partial reservation set")
	assert.Empty(t, store.orders)
}

func TestCreateReservationsInactiveItem(t *testing.T) {
	manager, store := newTestManager(t, 15*time.Second)

	off := testItem()
	off.ID = "item-off"
	off.SKU = "DRK-098"
	off.Ticker = "OFFY"
	off.IsActive = false
	require.NoError(t, store.AddItem(off))

	_, err := manager.CreateReservations(context.Background(), OrderIntent{
		SessionID: "sess-1",
		Items:     []ItemRequest{{ItemID: "item-off", Qty: 1}},
	})
	assert.ErrorIs(t, err, ErrItemInactive)
}

func TestCreateReservationsRejectsBadQty(t *testing.T) {
	manager, _ := newTestManager(t, 15*time.Second)

	for _, qty := range []int64{0, -2} {
		_, err := manager.CreateReservations(context.Background(), OrderIntent{
			SessionID: "sess-1",
			Items:     []ItemRequest{{ItemID: "item-lagr", Qty: qty}},
		})
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	}
}

func TestLockedPriceImmutableWhilePriceMoves(t *testing.T) {
	manager, store := newTestManager(t, time.Minute)
	ctx := context.Background()

	set, err := manager.CreateReservations(ctx, OrderIntent{
		SessionID: "sess-1",
		Items:     []ItemRequest{{ItemID: "item-lagr", Qty: 1}},
	})
	require.NoError(t, err)

	events := NewEventController(nil, testLogger())
	engine := NewEngine(store, events, testMarketConfig(), nil, nil, nil, testLogger())
	for i := 0; i < 10; i++ {
		engine.ApplySignal(ctx, model.TradeSignal{ItemID: "item-lagr", Qty: 3, SettledPriceCents: 1800})
	}

	state, _ := store.PriceState("item-lagr")
	require.NotEqual(t, int64(1800), state.CurrentPriceCents, "the market moved")

	res, err := manager.GetReservation(set.Locks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1800), res.LockedPriceCents, "the lock did not")
}

func TestGetReservationLazyExpiry(t *testing.T) {
	manager, store := newTestManager(t, 10*time.Millisecond)

	set, err := manager.CreateReservations(context.Background(), OrderIntent{
		SessionID: "sess-1",
		Items:     []ItemRequest{{ItemID: "item-lagr", Qty: 1}},
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	res, err := manager.GetReservation(set.Locks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationExpired, res.Status)

	// The read is idempotent: stored state stays untouched until a write
	// path reaches it.
	store.mu.RLock()
	stored := store.reservations[set.Locks[0].ID]
	store.mu.RUnlock()
	assert.Equal(t, model.ReservationActive, stored.Status)
}

func TestGetReservationNotFound(t *testing.T) {
	manager, _ := newTestManager(t, time.Minute)

	_, err := manager.GetReservation("lock-ghost")
	assert.ErrorIs(t, err, ErrLockNotFound)
}

func TestCancelOrderReleasesLocks(t *testing.T) {
	manager, store := newTestManager(t, time.Minute)
	ctx := context.Background()

	set, err := manager.CreateReservations(ctx, OrderIntent{
		SessionID: "sess-1",
		Items:     []ItemRequest{{ItemID: "item-lagr", Qty: 2}},
	})
	require.NoError(t, err)

	require.NoError(t, manager.CancelOrder(ctx, set.OrderID, "sess-1"))

	order, ok := store.Order(set.OrderID)
	require.True(t, ok)
	assert.Equal(t, model.OrderCanceled, order.Status)

	res, err := manager.GetReservation(set.Locks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCanceled, res.Status)

	assert.ErrorIs(t, manager.CancelOrder(ctx, set.OrderID, "sess-1"), ErrOrderAlreadySettled)
	assert.ErrorIs(t, manager.CancelOrder(ctx, "order-ghost", "sess-1"), ErrOrderNotFound)
	assert.ErrorIs(t, manager.CancelOrder(ctx, set.OrderID, "sess-2"), ErrSessionMismatch)
}
