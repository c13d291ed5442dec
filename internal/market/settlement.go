package market

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/evituu/bar-market/internal/database"
	"github.com/evituu/bar-market/internal/model"
)

// SettlementResult reports a committed order. ExpiredLockIDs lists the
// locks that had lapsed and were dropped from the order: a partial
// settlement is a success, not an error, and the caller can see exactly
// what was skipped.
type SettlementResult struct {
	OrderID        string            `json:"orderId"`
	TotalCents     int64             `json:"totalCents"`
	Items          []model.OrderItem `json:"items"`
	ExpiredLockIDs []string          `json:"expiredLockIds,omitempty"`
	ConfirmedAt    time.Time         `json:"confirmedAt"`
}

// Settler converts the valid reservations of a pending order into a
// confirmed order in one atomic step.
type Settler struct {
	store  *Store
	engine *Engine
	repo   database.Repository
	logger *slog.Logger
}

func NewSettler(store *Store, engine *Engine, repo database.Repository, logger *slog.Logger) *Settler {
	return &Settler{store: store, engine: engine, repo: repo, logger: logger}
}

// Settle commits an order. All reservation transitions, line items and the
// order status flip happen atomically under the store lock; trade signals
// reach the pricing engine only after that commit, so nothing leaks from a
// settlement that fails validation. Locks that expired are marked as such
// and skipped: the order settles for whatever is still valid. An order
// with no valid locks left is a hard failure and stays pending.
func (s *Settler) Settle(ctx context.Context, orderID, sessionID string) (*SettlementResult, error) {
	now := time.Now()

	s.store.mu.Lock()
	order, ok := s.store.orders[orderID]
	if !ok {
		s.store.mu.Unlock()
		return nil, ErrOrderNotFound
	}
	if sessionID != "" && order.SessionID != sessionID {
		s.store.mu.Unlock()
		return nil, ErrSessionMismatch
	}
	if order.Status != model.OrderPending {
		s.store.mu.Unlock()
		return nil, ErrOrderAlreadySettled
	}

	var valid []*model.Reservation
	var expiredIDs []string
	for _, res := range s.store.reservations {
		if res.OrderID != orderID {
			continue
		}
		switch {
		case res.Status == model.ReservationActive && !now.After(res.ExpiresAt):
			valid = append(valid, res)
		case res.Status == model.ReservationActive:
			res.Status = model.ReservationExpired
			expiredIDs = append(expiredIDs, res.ID)
		}
	}

	if len(valid) == 0 {
		s.store.mu.Unlock()
		return nil, ErrNoValidReservations
	}

	var usedIDs []string
	var signals []model.TradeSignal
	items := make([]model.OrderItem, 0, len(valid))
	var total int64
	for _, res := range valid {
		res.Status = model.ReservationUsed
		usedIDs = append(usedIDs, res.ID)

		line := model.OrderItem{
			ID:             uuid.NewString(),
			OrderID:        orderID,
			ItemID:         res.ItemID,
			Qty:            res.Qty,
			PriceCents:     res.LockedPriceCents,
			LineTotalCents: res.LineTotalCents(),
		}
		items = append(items, line)
		total += line.LineTotalCents

		signals = append(signals, model.TradeSignal{
			ItemID:            res.ItemID,
			Qty:               res.Qty,
			SettledPriceCents: res.LockedPriceCents,
		})
	}

	order.Status = model.OrderConfirmed
	order.TotalCents = total
	order.Items = items
	confirmedAt := now
	order.ConfirmedAt = &confirmedAt
	committed := cloneOrder(order)
	s.store.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.ConfirmOrder(ctx, committed, usedIDs, expiredIDs); err != nil {
			s.logger.Error("failed to persist settlement", "orderId", orderID, "error", err)
		}
	}

	if s.engine != nil {
		for _, sig := range signals {
			s.engine.ApplySignal(ctx, sig)
		}
	}

	s.logger.Info("order settled",
		"orderId", orderID,
		"lineItems", len(items),
		"expiredLocks", len(expiredIDs),
		"totalCents", total)

	return &SettlementResult{
		OrderID:        orderID,
		TotalCents:     total,
		Items:          items,
		ExpiredLockIDs: expiredIDs,
		ConfirmedAt:    confirmedAt,
	}, nil
}
