package market

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/evituu/bar-market/internal/database"
	"github.com/evituu/bar-market/internal/model"
)

// ItemRequest is one line of a buying intent.
type ItemRequest struct {
	ItemID string `json:"itemId"`
	Qty    int64  `json:"qty"`
}

// OrderIntent is a request to lock current prices for a set of items.
type OrderIntent struct {
	SessionID string        `json:"sessionId"`
	TableRef  string        `json:"tableRef,omitempty"`
	Note      string        `json:"note,omitempty"`
	Items     []ItemRequest `json:"items"`
}

// LockSet is the result of a successful reservation call: every lock shares
// one order and one expiry so the caller can render a single countdown.
type LockSet struct {
	OrderID    string              `json:"orderId"`
	ExpiresAt  time.Time           `json:"expiresAt"`
	TTLSeconds int                 `json:"ttlSeconds"`
	Locks      []model.Reservation `json:"locks"`
	TotalCents int64               `json:"totalCents"`
}

// ReservationManager issues time-boxed price locks against the current
// price and tracks their lifecycle.
type ReservationManager struct {
	store  *Store
	ttl    time.Duration
	repo   database.Repository
	logger *slog.Logger
}

func NewReservationManager(store *Store, ttl time.Duration, repo database.Repository, logger *slog.Logger) *ReservationManager {
	return &ReservationManager{store: store, ttl: ttl, repo: repo, logger: logger}
}

// CreateReservations locks the current price for every requested item,
// all-or-nothing: if any item is unknown, inactive or has a non-positive
// quantity, no reservation is created. All locks share one orderId and one
// expiresAt. The price read is deliberately not serialized against a tick
// in flight; the lock exists to shield the buyer from moves after it.
func (m *ReservationManager) CreateReservations(ctx context.Context, intent OrderIntent) (*LockSet, error) {
	type pricedLine struct {
		item  model.Item
		qty   int64
		price int64
	}

	lines := make([]pricedLine, 0, len(intent.Items))
	for _, req := range intent.Items {
		if req.Qty <= 0 {
			return nil, ErrInvalidQuantity
		}
		item, ok := m.store.Item(req.ItemID)
		if !ok {
			return nil, ErrItemNotFound
		}
		if !item.IsActive {
			return nil, ErrItemInactive
		}
		price, ok := m.store.CurrentPrice(req.ItemID)
		if !ok {
			return nil, ErrItemNotFound
		}
		lines = append(lines, pricedLine{item: item, qty: req.Qty, price: price})
	}

	now := time.Now()
	expiresAt := now.Add(m.ttl)
	order := &model.Order{
		ID:        uuid.NewString(),
		SessionID: intent.SessionID,
		TableRef:  intent.TableRef,
		Note:      intent.Note,
		Status:    model.OrderPending,
		CreatedAt: now,
	}

	set := &LockSet{
		OrderID:    order.ID,
		ExpiresAt:  expiresAt,
		TTLSeconds: int(m.ttl.Seconds()),
	}

	reservations := make([]model.Reservation, 0, len(lines))
	for _, line := range lines {
		res := model.Reservation{
			ID:               uuid.NewString(),
			OrderID:          order.ID,
			ItemID:           line.item.ID,
			Qty:              line.qty,
			LockedPriceCents: line.price,
			ExpiresAt:        expiresAt,
			Status:           model.ReservationActive,
			CreatedAt:        now,
		}
		reservations = append(reservations, res)
		set.Locks = append(set.Locks, res)
		set.TotalCents += res.LineTotalCents()
	}

	m.store.mu.Lock()
	m.store.orders[order.ID] = order
	for i := range reservations {
		res := reservations[i]
		m.store.reservations[res.ID] = &res
	}
	m.store.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.SaveOrder(ctx, *order); err != nil {
			m.logger.Error("failed to save order", "orderId", order.ID, "error", err)
		}
		if err := m.repo.SaveReservations(ctx, reservations); err != nil {
			m.logger.Error("failed to save reservations", "orderId", order.ID, "error", err)
		}
	}

	m.logger.Info("price locks created",
		"orderId", order.ID,
		"locks", len(reservations),
		"totalCents", set.TotalCents,
		"expiresAt", expiresAt)

	return set, nil
}

// GetReservation returns a reservation by id. The status is computed
// lazily: an active lock past its expiry reads as expired without the
// stored record being touched until the next write path reaches it.
func (m *ReservationManager) GetReservation(id string) (model.Reservation, error) {
	m.store.mu.RLock()
	stored, ok := m.store.reservations[id]
	if !ok {
		m.store.mu.RUnlock()
		return model.Reservation{}, ErrLockNotFound
	}
	res := *stored
	m.store.mu.RUnlock()

	if res.Status == model.ReservationActive && time.Now().After(res.ExpiresAt) {
		res.Status = model.ReservationExpired
	}
	return res, nil
}

// CancelOrder marks a pending order canceled and releases its remaining
// active locks. Confirmed orders cannot be canceled here.
func (m *ReservationManager) CancelOrder(ctx context.Context, orderID, sessionID string) error {
	m.store.mu.Lock()
	order, ok := m.store.orders[orderID]
	if !ok {
		m.store.mu.Unlock()
		return ErrOrderNotFound
	}
	if order.SessionID != sessionID {
		m.store.mu.Unlock()
		return ErrSessionMismatch
	}
	if order.Status != model.OrderPending {
		m.store.mu.Unlock()
		return ErrOrderAlreadySettled
	}

	order.Status = model.OrderCanceled
	var canceled []string
	for _, res := range m.store.reservations {
		if res.OrderID == orderID && res.Status == model.ReservationActive {
			res.Status = model.ReservationCanceled
			canceled = append(canceled, res.ID)
		}
	}
	m.store.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.CancelOrder(ctx, orderID, canceled); err != nil {
			m.logger.Error("failed to persist order cancellation", "orderId", orderID, "error", err)
		}
	}

	m.logger.Info("order canceled", "orderId", orderID, "releasedLocks", len(canceled))
	return nil
}
