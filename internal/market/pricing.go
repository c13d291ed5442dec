package market

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/evituu/bar-market/internal/config"
	"github.com/evituu/bar-market/internal/database"
	"github.com/evituu/bar-market/internal/model"
)

// FeedPublisher receives a fresh snapshot after every tick and after every
// settlement-driven reprice.
type FeedPublisher interface {
	Publish(snapshot model.MarketSnapshot)
}

// PriceHistory keeps recent price points for the board ranking view.
type PriceHistory interface {
	AddPoint(ctx context.Context, point model.PricePoint) error
}

// Engine moves prices. The base rule is exponential mean reversion toward
// the base price plus trade pressure; an active market event replaces it
// for the duration of its window. The clamp to [floor, cap] is applied
// unconditionally whatever rule produced the candidate.
type Engine struct {
	store  *Store
	events *EventController
	cfg    config.MarketConfig

	repo      database.Repository
	history   PriceHistory
	publisher FeedPublisher
	logger    *slog.Logger

	tick atomic.Int64
}

// NewEngine creates a pricing engine. repo, history and publisher may each
// be nil; the engine then skips the corresponding write-behind.
func NewEngine(
	store *Store,
	events *EventController,
	cfg config.MarketConfig,
	repo database.Repository,
	history PriceHistory,
	publisher FeedPublisher,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:     store,
		events:    events,
		cfg:       cfg,
		repo:      repo,
		history:   history,
		publisher: publisher,
		logger:    logger,
	}
}

// Run drives the tick clock until the context is cancelled. Chaotic events
// run on their own cadence; every other mode follows the base cadence.
func (e *Engine) Run(ctx context.Context) {
	base := time.NewTicker(time.Duration(e.cfg.TickSeconds) * time.Second)
	defer base.Stop()
	chaotic := time.NewTicker(time.Duration(e.cfg.ChaoticTickSeconds) * time.Second)
	defer chaotic.Stop()

	e.logger.Info("pricing engine started",
		"tickSeconds", e.cfg.TickSeconds,
		"chaoticTickSeconds", e.cfg.ChaoticTickSeconds)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("pricing engine stopping")
			return
		case <-base.C:
			if kind := e.events.ActiveKind(); kind == nil || *kind != model.EventChaotic {
				e.TickAll(ctx)
			}
		case <-chaotic.C:
			if kind := e.events.ActiveKind(); kind != nil && *kind == model.EventChaotic {
				e.TickAll(ctx)
			}
		}
	}
}

// TickAll applies one tick to every active item and publishes the result.
func (e *Engine) TickAll(ctx context.Context) {
	kind := e.events.ActiveKind()
	rule := e.ruleFor(kind)
	tick := e.tick.Add(1)

	for _, item := range e.store.Items() {
		if !item.IsActive {
			continue
		}
		state, ok := e.store.UpdatePrice(item.ID, rule)
		if !ok {
			continue
		}
		e.recordUpdate(ctx, state)
	}

	e.logger.Debug("tick applied", "tick", tick, "event", kind)
	e.publishSnapshot()
}

// ApplySignal consumes one trade signal: it accumulates the buy pressure
// for the item and reprices it immediately so the board reacts without
// waiting for the next tick. Callers must only invoke this after the
// originating settlement has committed.
func (e *Engine) ApplySignal(ctx context.Context, sig model.TradeSignal) {
	e.store.AddImpulse(sig.ItemID, sig.Qty)

	state, ok := e.store.UpdatePrice(sig.ItemID, e.ruleFor(e.events.ActiveKind()))
	if !ok {
		e.logger.Warn("trade signal for unknown item", "itemId", sig.ItemID)
		return
	}

	e.logger.Info("trade signal applied",
		"itemId", sig.ItemID,
		"qty", sig.Qty,
		"settledPriceCents", sig.SettledPriceCents,
		"newPriceCents", state.CurrentPriceCents)

	e.recordUpdate(ctx, state)
	e.publishSnapshot()
}

// Snapshot returns the current board state for the poll endpoint.
func (e *Engine) Snapshot() model.MarketSnapshot {
	return e.store.Snapshot(e.tick.Load(), e.events.ActiveKind())
}

// ruleFor selects the price transform for the active event. crash and
// reset replace the base rule; freeze holds the price and ignores trade
// pressure; chaotic draws uniformly between floor and cap.
func (e *Engine) ruleFor(kind *model.EventKind) priceRule {
	if kind == nil {
		return e.baseRule
	}

	switch *kind {
	case model.EventCrash:
		return func(item model.Item, state model.PriceState, _ int64) int64 {
			return int64(math.Floor(float64(state.CurrentPriceCents) * 0.8))
		}
	case model.EventReset:
		return func(item model.Item, _ model.PriceState, _ int64) int64 {
			return item.BasePriceCents
		}
	case model.EventFreeze:
		return func(_ model.Item, state model.PriceState, _ int64) int64 {
			return state.CurrentPriceCents
		}
	case model.EventChaotic:
		return func(item model.Item, _ model.PriceState, _ int64) int64 {
			span := float64(item.PriceCapCents - item.PriceFloorCents)
			return item.PriceFloorCents + int64(math.Floor(rand.Float64()*span))
		}
	default:
		return e.baseRule
	}
}

// baseRule is exponential mean reversion toward the base price, perturbed
// by accumulated trade pressure. Sensitivity is expressed as a fraction of
// the base price per settled unit.
func (e *Engine) baseRule(item model.Item, state model.PriceState, impulse int64) int64 {
	reverted := float64(state.CurrentPriceCents)*e.cfg.Decay +
		float64(item.BasePriceCents)*(1-e.cfg.Decay)
	pressure := e.cfg.SensitivityK * float64(impulse) * float64(item.BasePriceCents)
	return int64(math.Round(reverted + pressure))
}

func (e *Engine) recordUpdate(ctx context.Context, state model.PriceState) {
	if e.repo != nil {
		if err := e.repo.SavePriceState(ctx, state); err != nil {
			e.logger.Error("failed to save price state", "itemId", state.ItemID, "error", err)
		}
		point := model.PricePoint{ItemID: state.ItemID, PriceCents: state.CurrentPriceCents, Timestamp: state.UpdatedAt}
		if err := e.repo.LogPriceTick(ctx, point); err != nil {
			e.logger.Error("failed to log price tick", "itemId", state.ItemID, "error", err)
		}
	}

	if e.history != nil {
		point := model.PricePoint{ItemID: state.ItemID, PriceCents: state.CurrentPriceCents, Timestamp: state.UpdatedAt}
		if err := e.history.AddPoint(ctx, point); err != nil {
			e.logger.Error("failed to cache price point", "itemId", state.ItemID, "error", err)
		}
	}
}

func (e *Engine) publishSnapshot() {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(e.Snapshot())
}
