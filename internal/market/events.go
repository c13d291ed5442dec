package market

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evituu/bar-market/internal/database"
	"github.com/evituu/bar-market/internal/model"
)

const defaultEventDurationMinutes = 60

// ParseEventKind validates an operator-supplied event kind.
func ParseEventKind(s string) (model.EventKind, error) {
	switch kind := model.EventKind(s); kind {
	case model.EventCrash, model.EventReset, model.EventFreeze, model.EventChaotic:
		return kind, nil
	default:
		return "", ErrInvalidEventKind
	}
}

// EventController owns the single optional active market event. Holding it
// as one value makes "at most one active" structural rather than a
// convention over a table of rows.
type EventController struct {
	mu     sync.Mutex
	active *model.MarketEvent

	repo   database.Repository
	logger *slog.Logger
}

// NewEventController creates a controller. repo may be nil when no durable
// audit of events is wanted.
func NewEventController(repo database.Repository, logger *slog.Logger) *EventController {
	return &EventController{repo: repo, logger: logger}
}

// Activate switches the venue to the given event for durationMinutes,
// deactivating whatever was active before (last writer wins, no stacking).
func (c *EventController) Activate(ctx context.Context, kind model.EventKind, durationMinutes int) (model.MarketEvent, error) {
	if _, err := ParseEventKind(string(kind)); err != nil {
		return model.MarketEvent{}, err
	}
	if durationMinutes <= 0 {
		durationMinutes = defaultEventDurationMinutes
	}

	now := time.Now()
	event := model.MarketEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartsAt:  now,
		EndsAt:    now.Add(time.Duration(durationMinutes) * time.Minute),
		IsActive:  true,
		CreatedAt: now,
	}

	c.mu.Lock()
	if c.active != nil {
		c.active.IsActive = false
	}
	c.active = &event
	c.mu.Unlock()

	if c.repo != nil {
		if err := c.repo.DeactivateMarketEvents(ctx); err != nil {
			c.logger.Error("failed to deactivate previous market events", "error", err)
		}
		if err := c.repo.SaveMarketEvent(ctx, event); err != nil {
			c.logger.Error("failed to save market event", "eventId", event.ID, "error", err)
		}
	}

	c.logger.Info("market event activated", "kind", kind, "eventId", event.ID, "endsAt", event.EndsAt)
	return event, nil
}

// Deactivate clears the active event, if any.
func (c *EventController) Deactivate(ctx context.Context) {
	c.mu.Lock()
	if c.active != nil {
		c.active.IsActive = false
		c.active = nil
	}
	c.mu.Unlock()

	if c.repo != nil {
		if err := c.repo.DeactivateMarketEvents(ctx); err != nil {
			c.logger.Error("failed to deactivate market events", "error", err)
		}
	}

	c.logger.Info("market event deactivated")
}

// Active returns the currently active event. The validity window is
// enforced here at read time; an event past its end is dropped on the next
// read rather than by a background timer.
func (c *EventController) Active() *model.MarketEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return nil
	}
	if time.Now().After(c.active.EndsAt) {
		c.active.IsActive = false
		c.active = nil
		return nil
	}

	event := *c.active
	return &event
}

// ActiveKind returns the kind of the active event, or nil.
func (c *EventController) ActiveKind() *model.EventKind {
	event := c.Active()
	if event == nil {
		return nil
	}
	kind := event.Kind
	return &kind
}
