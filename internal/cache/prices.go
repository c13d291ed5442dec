package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evituu/bar-market/internal/model"
)

// PriceHistory keeps a rolling window of price points per item in Redis
// sorted sets, scored by timestamp. The board reads it to draw sparklines
// and rank movers; it is a cache, never the source of truth.
type PriceHistory struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewPriceHistory(client *redis.Client, ttl time.Duration, logger *slog.Logger) *PriceHistory {
	return &PriceHistory{client: client, ttl: ttl, logger: logger}
}

// Ping checks the connection to the Redis server.
func (h *PriceHistory) Ping(ctx context.Context) string {
	if err := h.client.Ping(ctx).Err(); err != nil {
		return fmt.Sprintf("down: %v", err)
	}
	return "up"
}

func (h *PriceHistory) key(itemID string) string {
	return fmt.Sprintf("prices:%s", itemID)
}

// AddPoint appends a price point and prunes entries older than the window.
// The key itself expires too, in case an item stops ticking.
func (h *PriceHistory) AddPoint(ctx context.Context, point model.PricePoint) error {
	key := h.key(point.ItemID)
	score := float64(point.Timestamp.UnixMilli())
	member := fmt.Sprintf("%d:%d", point.Timestamp.UnixMilli(), point.PriceCents)

	cutoff := float64(time.Now().Add(-h.ttl).UnixMilli())

	pipe := h.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%f", cutoff))
	pipe.Expire(ctx, key, h.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		h.logger.Error("failed to add price point to cache", "itemId", point.ItemID, "error", err)
		return err
	}
	return nil
}

// PointsByPeriod returns the price points of an item within the given
// duration, oldest first.
func (h *PriceHistory) PointsByPeriod(ctx context.Context, itemID string, period time.Duration) ([]model.PricePoint, error) {
	key := h.key(itemID)
	minScore := time.Now().Add(-period).UnixMilli()

	members, err := h.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", minScore),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	points := make([]model.PricePoint, 0, len(members))
	for _, member := range members {
		var ms, cents int64
		if _, err := fmt.Sscanf(member, "%d:%d", &ms, &cents); err != nil {
			h.logger.Warn("could not parse price point member", "member", member, "error", err)
			continue
		}
		points = append(points, model.PricePoint{
			ItemID:     itemID,
			PriceCents: cents,
			Timestamp:  time.UnixMilli(ms),
		})
	}
	return points, nil
}

// LatestPrice returns the most recent cached price for an item, if any.
func (h *PriceHistory) LatestPrice(ctx context.Context, itemID string) (int64, bool, error) {
	result, err := h.client.ZRevRangeWithScores(ctx, h.key(itemID), 0, 0).Result()
	if err != nil {
		return 0, false, err
	}
	if len(result) == 0 {
		return 0, false, nil
	}

	member, _ := result[0].Member.(string)
	var ms, cents int64
	if _, err := fmt.Sscanf(member, "%d:%d", &ms, &cents); err != nil {
		return 0, false, fmt.Errorf("could not parse latest price member %q: %w", member, err)
	}

	return cents, true, nil
}
