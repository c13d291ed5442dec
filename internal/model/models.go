package model

import "time"

// Item is a catalog entry traded on the venue board. Prices are integer
// cents. Bounds must satisfy 0 < floor <= base <= cap and floor < cap.
type Item struct {
	ID              string `db:"id"`
	SKU             string `db:"sku"`
	Ticker          string `db:"ticker"`
	Name            string `db:"name"`
	Category        string `db:"category"`
	IsActive        bool   `db:"is_active"`
	BasePriceCents  int64  `db:"base_price_cents"`
	PriceFloorCents int64  `db:"price_floor_cents"`
	PriceCapCents   int64  `db:"price_cap_cents"`
}

// PriceState is the mutable price of one item. It is only ever changed by
// the pricing engine: prev := current, current := next, tickSeq += 1.
type PriceState struct {
	ItemID            string    `db:"item_id"`
	CurrentPriceCents int64     `db:"price_cents"`
	PrevPriceCents    int64     `db:"prev_price_cents"`
	TickSeq           int64     `db:"tick_seq"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// ChangePercent is the variation of the current price against the previous
// tick, used by the board ranking.
func (s PriceState) ChangePercent() float64 {
	if s.PrevPriceCents == 0 {
		return 0
	}
	return float64(s.CurrentPriceCents-s.PrevPriceCents) / float64(s.PrevPriceCents) * 100
}

// EventKind identifies an operator-triggered market event.
type EventKind string

const (
	EventCrash   EventKind = "crash"
	EventReset   EventKind = "reset"
	EventFreeze  EventKind = "freeze"
	EventChaotic EventKind = "chaotic"
)

// MarketEvent is a venue-wide pricing override. At most one is active at a
// time; activating a new one deactivates the rest.
type MarketEvent struct {
	ID        string    `db:"id"`
	Kind      EventKind `db:"kind"`
	StartsAt  time.Time `db:"starts_at"`
	EndsAt    time.Time `db:"ends_at"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

// ReservationStatus is the lifecycle of a price lock.
type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "active"
	ReservationUsed     ReservationStatus = "used"
	ReservationExpired  ReservationStatus = "expired"
	ReservationCanceled ReservationStatus = "canceled"
)

// Reservation locks the current price of one item for a bounded TTL. The
// locked price never changes after creation; a reservation is consumed at
// most once.
type Reservation struct {
	ID               string            `db:"id" json:"lockId"`
	OrderID          string            `db:"order_id" json:"orderId"`
	ItemID           string            `db:"item_id" json:"itemId"`
	Qty              int64             `db:"qty" json:"qty"`
	LockedPriceCents int64             `db:"locked_price_cents" json:"lockedPriceCents"`
	ExpiresAt        time.Time         `db:"expires_at" json:"expiresAt"`
	Status           ReservationStatus `db:"status" json:"status"`
	CreatedAt        time.Time         `db:"created_at" json:"-"`
}

// LineTotalCents is the locked price times quantity.
func (r Reservation) LineTotalCents() int64 {
	return r.LockedPriceCents * r.Qty
}

// OrderStatus is the lifecycle of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCanceled  OrderStatus = "canceled"
)

// Order owns the reservations of one buying intent. A confirmed order is
// immutable: its line items carry the locked prices they settled at and
// TotalCents is their exact sum.
type Order struct {
	ID          string      `db:"id" json:"orderId"`
	SessionID   string      `db:"session_id" json:"-"`
	TableRef    string      `db:"table_ref" json:"tableRef,omitempty"`
	Note        string      `db:"note" json:"note,omitempty"`
	Status      OrderStatus `db:"status" json:"status"`
	TotalCents  int64       `db:"total_cents" json:"totalCents"`
	Items       []OrderItem `json:"items,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	ConfirmedAt *time.Time  `db:"confirmed_at" json:"confirmedAt,omitempty"`
}

// OrderItem is a committed line of a confirmed order.
type OrderItem struct {
	ID             string `db:"id" json:"id"`
	OrderID        string `db:"order_id" json:"-"`
	ItemID         string `db:"item_id" json:"itemId"`
	Qty            int64  `db:"qty" json:"qty"`
	PriceCents     int64  `db:"price_cents" json:"lockedPriceCents"`
	LineTotalCents int64  `db:"line_total_cents" json:"lineTotalCents"`
}

// TradeSignal is the feedback from one committed line item. The pricing
// engine consumes it to bias the next price of that item.
type TradeSignal struct {
	ItemID            string
	Qty               int64
	SettledPriceCents int64
}

// PricePoint is one observed price of an item, kept in the hot history
// cache for the board.
type PricePoint struct {
	ItemID     string    `json:"itemId"`
	PriceCents int64     `json:"priceCents"`
	Timestamp  time.Time `json:"timestamp"`
}

// SnapshotItem is the per-item view published to the live feed.
type SnapshotItem struct {
	ItemID            string  `json:"itemId"`
	Ticker            string  `json:"ticker"`
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	CurrentPriceCents int64   `json:"currentPriceCents"`
	PrevPriceCents    int64   `json:"prevPriceCents"`
	ChangePercent     float64 `json:"changePercent"`
	TickSeq           int64   `json:"tickSeq"`
}

// MarketSnapshot is the board state pushed on every tick and served by the
// poll endpoint.
type MarketSnapshot struct {
	Tick        int64          `json:"tick"`
	Timestamp   time.Time      `json:"timestamp"`
	Items       []SnapshotItem `json:"items"`
	ActiveEvent *EventKind     `json:"activeEvent"`
}
