package market

import (
	"sort"
	"sync"
	"time"

	"github.com/evituu/bar-market/internal/model"
)

// priceCell holds the price state of one item behind its own mutex so that
// unrelated items can tick independently. impulse accumulates signed settled
// volume since the last applied tick and is consumed by the update.
type priceCell struct {
	mu      sync.Mutex
	state   model.PriceState
	impulse int64
}

// Store is the authoritative in-memory state of the venue: the item catalog,
// one price cell per item, and the reservation/order books. Price cells are
// serialized per item; reservations and orders share the store lock.
type Store struct {
	mu           sync.RWMutex
	items        map[string]model.Item
	cells        map[string]*priceCell
	reservations map[string]*model.Reservation
	orders       map[string]*model.Order
}

func NewStore() *Store {
	return &Store{
		items:        make(map[string]model.Item),
		cells:        make(map[string]*priceCell),
		reservations: make(map[string]*model.Reservation),
		orders:       make(map[string]*model.Order),
	}
}

// ValidatePriceRange checks 0 < floor <= base <= cap and floor < cap.
func ValidatePriceRange(floor, base, cap int64) error {
	if floor <= 0 || floor > base || base > cap || floor >= cap {
		return ErrInvalidPriceRange
	}
	return nil
}

// AddItem registers a catalog item and initializes its price state at the
// base price with tick zero.
func (s *Store) AddItem(item model.Item) error {
	if err := ValidatePriceRange(item.PriceFloorCents, item.BasePriceCents, item.PriceCapCents); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[item.ID] = item
	if _, ok := s.cells[item.ID]; !ok {
		s.cells[item.ID] = &priceCell{
			state: model.PriceState{
				ItemID:            item.ID,
				CurrentPriceCents: item.BasePriceCents,
				PrevPriceCents:    item.BasePriceCents,
				TickSeq:           0,
				UpdatedAt:         time.Now(),
			},
		}
	}
	return nil
}

// RestorePriceState overwrites the price state of a known item, used when
// rehydrating from the database at startup.
func (s *Store) RestorePriceState(state model.PriceState) {
	s.mu.Lock()
	cell, ok := s.cells[state.ItemID]
	s.mu.Unlock()
	if !ok {
		return
	}

	cell.mu.Lock()
	cell.state = state
	cell.mu.Unlock()
}

// Item returns a catalog item by id.
func (s *Store) Item(id string) (model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Items returns the catalog sorted by ticker.
func (s *Store) Items() []model.Item {
	s.mu.RLock()
	items := make([]model.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].Ticker < items[j].Ticker })
	return items
}

func (s *Store) cell(itemID string) (*priceCell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cell, ok := s.cells[itemID]
	return cell, ok
}

// PriceState returns a copy of the current price state of an item.
func (s *Store) PriceState(itemID string) (model.PriceState, bool) {
	cell, ok := s.cell(itemID)
	if !ok {
		return model.PriceState{}, false
	}

	cell.mu.Lock()
	defer cell.mu.Unlock()
	return cell.state, true
}

// CurrentPrice reads the current price of an item. Deliberately not
// serialized against a tick in flight for another item; a reservation made
// from this read is shielded from later moves by its locked price.
func (s *Store) CurrentPrice(itemID string) (int64, bool) {
	state, ok := s.PriceState(itemID)
	if !ok {
		return 0, false
	}
	return state.CurrentPriceCents, true
}

// AddImpulse accumulates signed settled volume for an item until the next
// applied tick consumes it.
func (s *Store) AddImpulse(itemID string, qty int64) {
	cell, ok := s.cell(itemID)
	if !ok {
		return
	}

	cell.mu.Lock()
	cell.impulse += qty
	cell.mu.Unlock()
}

// priceRule computes a candidate next price from the current state and the
// accumulated impulse. The result is clamped by UpdatePrice regardless of
// which rule produced it.
type priceRule func(item model.Item, state model.PriceState, impulse int64) int64

// UpdatePrice applies one tick to a single item: the rule runs under the
// cell lock, the candidate is clamped to [floor, cap], and the triple
// update (prev, current, tickSeq) happens atomically. The impulse is
// consumed. This is the only way price state changes.
func (s *Store) UpdatePrice(itemID string, rule priceRule) (model.PriceState, bool) {
	s.mu.RLock()
	item, okItem := s.items[itemID]
	cell, okCell := s.cells[itemID]
	s.mu.RUnlock()
	if !okItem || !okCell {
		return model.PriceState{}, false
	}

	cell.mu.Lock()
	defer cell.mu.Unlock()

	next := rule(item, cell.state, cell.impulse)
	if next < item.PriceFloorCents {
		next = item.PriceFloorCents
	}
	if next > item.PriceCapCents {
		next = item.PriceCapCents
	}

	cell.state.PrevPriceCents = cell.state.CurrentPriceCents
	cell.state.CurrentPriceCents = next
	cell.state.TickSeq++
	cell.state.UpdatedAt = time.Now()
	cell.impulse = 0

	return cell.state, true
}

// Snapshot builds the board view of every active item.
func (s *Store) Snapshot(tick int64, activeEvent *model.EventKind) model.MarketSnapshot {
	snap := model.MarketSnapshot{
		Tick:        tick,
		Timestamp:   time.Now(),
		ActiveEvent: activeEvent,
	}

	for _, item := range s.Items() {
		if !item.IsActive {
			continue
		}
		state, ok := s.PriceState(item.ID)
		if !ok {
			continue
		}
		snap.Items = append(snap.Items, model.SnapshotItem{
			ItemID:            item.ID,
			Ticker:            item.Ticker,
			Name:              item.Name,
			Category:          item.Category,
			CurrentPriceCents: state.CurrentPriceCents,
			PrevPriceCents:    state.PrevPriceCents,
			ChangePercent:     state.ChangePercent(),
			TickSeq:           state.TickSeq,
		})
	}

	return snap
}

// Order returns a copy of an order with its line items.
func (s *Store) Order(id string) (model.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return cloneOrder(order), true
}

// Orders returns all orders, optionally filtered by status, newest first.
func (s *Store) Orders(status model.OrderStatus) []model.Order {
	s.mu.RLock()
	orders := make([]model.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}
	s.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders
}

func cloneOrder(order *model.Order) model.Order {
	out := *order
	out.Items = append([]model.OrderItem(nil), order.Items...)
	return out
}
