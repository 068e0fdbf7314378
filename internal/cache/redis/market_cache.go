package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/basisops/fundmon/internal/domain"
)

// MarketCache implements domain.MarketDataCache using Redis hashes. It
// holds the last good observation per asset so a live tick whose venue
// fetch fails can degrade to stale data instead of zero.
//
// Spot prices live at "spot:{asset}", indexes at "index:{kind}:{asset}",
// each a hash with fields "value" and "ts" (Unix nanoseconds).
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func spotKey(asset string) string { return "spot:" + asset }

func indexKey(kind, asset string) string { return "index:" + kind + ":" + asset }

// SetSpot stores the latest spot price for an asset.
func (mc *MarketCache) SetSpot(ctx context.Context, asset string, price float64, ts time.Time) error {
	if err := mc.setValue(ctx, spotKey(asset), price, ts); err != nil {
		return fmt.Errorf("redis: set spot %s: %w", asset, err)
	}
	return nil
}

// GetSpot retrieves the last cached spot price and its observation time.
// It returns domain.ErrNotFound when nothing is cached.
func (mc *MarketCache) GetSpot(ctx context.Context, asset string) (float64, time.Time, error) {
	v, ts, err := mc.getValue(ctx, spotKey(asset))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get spot %s: %w", asset, err)
	}
	return v, ts, nil
}

// SetIndex stores the latest protocol index of the given kind
// ("liquidity" or "borrow") for a reserve asset.
func (mc *MarketCache) SetIndex(ctx context.Context, kind, asset string, index float64, ts time.Time) error {
	if err := mc.setValue(ctx, indexKey(kind, asset), index, ts); err != nil {
		return fmt.Errorf("redis: set index %s/%s: %w", kind, asset, err)
	}
	return nil
}

// GetIndex retrieves the last cached index of the given kind.
func (mc *MarketCache) GetIndex(ctx context.Context, kind, asset string) (float64, time.Time, error) {
	v, ts, err := mc.getValue(ctx, indexKey(kind, asset))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get index %s/%s: %w", kind, asset, err)
	}
	return v, ts, nil
}

func (mc *MarketCache) setValue(ctx context.Context, key string, value float64, ts time.Time) error {
	fields := map[string]interface{}{
		"value": strconv.FormatFloat(value, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	return mc.rdb.HSet(ctx, key, fields).Err()
}

func (mc *MarketCache) getValue(ctx context.Context, key string) (float64, time.Time, error) {
	vals, err := mc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	raw, ok := vals["value"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, time.Time{}, err
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, err
	}

	return value, time.Unix(0, tsNano), nil
}
