// Package redistier implements RedisTier from spec.md §4.5: batched
// flush of orders/fills/OHLC from MemoryStore's write-behind queues,
// SETNX-based fill deduplication, and a deterministic key generator with
// a trimmed per-interval OHLC index. Grounded on the Redis pipeline +
// HSet pattern in other_examples' polymarket-rtds-handlers (pipe.HSet
// per batch entry, pipe.Exec once), generalized from that ad hoc price
// cache into the venue:strategy:symbol:session_id:<kind> key scheme and
// the success/failed/skipped/errors batch contract spec.md §4.5 names.
package redistier

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dundas/truex-mm/internal/model"
)

// Client is the narrow subset of *redis.Client this tier needs, so tests
// can substitute a fake without a live Redis server.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) *redis.IntCmd
}

// FlushResult is the batch outcome contract from spec.md §4.5.
type FlushResult struct {
	Success int
	Failed  int
	Skipped int
	Errors  []string
}

func (r *FlushResult) addError(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err.Error())
}

// Tier is RedisTier for one venue/strategy/session.
type Tier struct {
	client    Client
	venue     string
	strategy  string
	sessionID string
	dedupTTL  time.Duration
	// ohlcIndexHorizon bounds the per-interval OHLC index list so reads
	// never need KEYS/SCAN, per spec.md §4.5.
	ohlcIndexHorizon int64
}

// New returns a Tier keyed by venue/strategy/sessionID.
func New(client Client, venue, strategy, sessionID string, dedupTTL time.Duration, ohlcIndexHorizon int64) *Tier {
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	if ohlcIndexHorizon <= 0 {
		ohlcIndexHorizon = 1000
	}
	return &Tier{client: client, venue: venue, strategy: strategy, sessionID: sessionID, dedupTTL: dedupTTL, ohlcIndexHorizon: ohlcIndexHorizon}
}

// Key derives "venue:strategy:symbol:session_id:<kind>[:sub]" per spec.md §4.5.
func (t *Tier) Key(symbol, kind string, sub ...string) string {
	key := fmt.Sprintf("%s:%s:%s:%s:%s", t.venue, t.strategy, symbol, t.sessionID, kind)
	for _, s := range sub {
		key += ":" + s
	}
	return key
}

func (t *Tier) dedupKey(execID string) string {
	return "dedup:exec:" + execID
}

// FlushOrders upserts each order's HSet representation.
func (t *Tier) FlushOrders(ctx context.Context, batch []*model.Order) FlushResult {
	var result FlushResult
	for _, o := range batch {
		key := t.Key(o.Symbol, "order", o.ClientOrderID)
		if err := t.client.HSet(ctx, key, orderFields(o)...).Err(); err != nil {
			result.addError(err)
			continue
		}
		result.Success++
	}
	return result
}

// FlushFills reserves a dedup slot per exec_id before persisting; a
// failed reservation increments Skipped without writing downstream, per
// spec.md §4.5.
func (t *Tier) FlushFills(ctx context.Context, batch []*model.Fill) FlushResult {
	var result FlushResult
	for _, f := range batch {
		reserved, err := t.client.SetNX(ctx, t.dedupKey(f.ExecID), "1", t.dedupTTL).Result()
		if err != nil {
			result.addError(err)
			continue
		}
		if !reserved {
			result.Skipped++
			continue
		}
		key := t.Key(f.Symbol, "fill", f.ExecID)
		if err := t.client.HSet(ctx, key, fillFields(f)...).Err(); err != nil {
			result.addError(err)
			continue
		}
		result.Success++
	}
	return result
}

// FlushOhlc upserts each candle and maintains a trimmed per-interval
// index list so later range reads avoid KEYS/SCAN, per spec.md §4.5.
func (t *Tier) FlushOhlc(ctx context.Context, batch []*model.Candle) FlushResult {
	var result FlushResult
	for _, c := range batch {
		intervalStr := itoa64(c.Key.Interval)
		bucketStr := itoa64(c.Key.BucketTS)
		key := t.Key(c.Key.Symbol, "ohlc", intervalStr, bucketStr)
		if err := t.client.HSet(ctx, key, candleFields(c)...).Err(); err != nil {
			result.addError(err)
			continue
		}

		indexKey := t.Key(c.Key.Symbol, "ohlc_index", intervalStr)
		if err := t.client.ZAdd(ctx, indexKey, redis.Z{Score: float64(c.Key.BucketTS), Member: bucketStr}).Err(); err != nil {
			result.addError(err)
			continue
		}
		// Keep only the most recent ohlcIndexHorizon buckets: ZADD scores
		// ascending by bucket_ts, so the oldest entries sit at rank 0.
		t.client.ZRemRangeByRank(ctx, indexKey, 0, -t.ohlcIndexHorizon-1)

		result.Success++
	}
	return result
}

func orderFields(o *model.Order) []interface{} {
	fields := []interface{}{
		"client_order_id", o.ClientOrderID,
		"exchange_order_id", o.ExchangeOrderID,
		"symbol", o.Symbol,
		"side", string(o.Side),
		"status", string(o.Status),
		"size", o.Size.String(),
		"filled_size", o.FilledSize.String(),
		"updated_at", o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if o.Price != nil {
		fields = append(fields, "price", o.Price.String())
	}
	return fields
}

func fillFields(f *model.Fill) []interface{} {
	return []interface{}{
		"fill_id", f.FillID,
		"exec_id", f.ExecID,
		"order_id", f.OrderID,
		"exchange_order_id", f.ExchangeOrderID,
		"symbol", f.Symbol,
		"side", string(f.Side),
		"quantity", f.Quantity.String(),
		"price", f.Price.String(),
		"timestamp", f.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func candleFields(c *model.Candle) []interface{} {
	return []interface{}{
		"open", c.Open.String(),
		"high", c.High.String(),
		"low", c.Low.String(),
		"close", c.Close.String(),
		"volume", c.Volume.String(),
		"trade_count", itoa64(int64(c.TradeCount)),
		"source", string(c.Source),
		"is_complete", boolStr(c.IsComplete),
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
