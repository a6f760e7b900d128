// Package ohlc implements OhlcBuilder from spec.md §4.9: per-bucket
// candle aggregation keyed by bucket_ts = floor(t/interval)*interval,
// fed by trade prints (extend high/low, set close, add volume, bump
// trade count) and reference-venue snapshots (overwrite the bucket,
// mark source=snapshot), with late-flush semantics via
// flush_complete(now). Grounded on gurre-prime-fix-md-go's
// fixclient/tradestore.go: a map-indexed, RWMutex-protected store hit on
// every inbound market-data message, generalized here from a flat trade
// ring buffer to bucket-keyed OHLC accumulation.
package ohlc

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dundas/truex-mm/internal/model"
)

// Builder accumulates OHLC candles across symbols/exchanges/intervals.
type Builder struct {
	mu       sync.Mutex
	interval int64 // milliseconds
	exchange string
	buckets  map[model.CandleKey]*model.Candle
}

// New returns a Builder bucketing at the given interval (milliseconds)
// for candles tagged with exchange.
func New(exchange string, intervalMillis int64) *Builder {
	return &Builder{
		interval: intervalMillis,
		exchange: exchange,
		buckets:  make(map[model.CandleKey]*model.Candle),
	}
}

// AddTrade folds one trade print into its bucket: extends high/low, sets
// close, adds volume, and increments trade count, per spec.md §4.9. The
// tsMillis parameter is a Unix millisecond timestamp.
func (b *Builder) AddTrade(symbol string, price, size decimal.Decimal, tsMillis int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := model.CandleKey{
		Symbol:   symbol,
		Exchange: b.exchange,
		Interval: b.interval,
		BucketTS: model.BucketTS(tsMillis, b.interval),
	}
	c, ok := b.buckets[key]
	if !ok {
		c = &model.Candle{
			Key:    key,
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: decimal.Zero,
			Source: model.CandleSourceTrades,
		}
		b.buckets[key] = c
	}
	if price.GreaterThan(c.High) {
		c.High = price
	}
	if price.LessThan(c.Low) {
		c.Low = price
	}
	c.Close = price
	c.Volume = c.Volume.Add(size)
	c.TradeCount++
}

// ApplySnapshot overwrites the bucket for (symbol, t) with an
// externally-sourced OHLC replace, marking source=snapshot per spec.md §4.9.
func (b *Builder) ApplySnapshot(symbol string, candle model.Candle, tsMillis int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := model.CandleKey{
		Symbol:   symbol,
		Exchange: b.exchange,
		Interval: b.interval,
		BucketTS: model.BucketTS(tsMillis, b.interval),
	}
	cp := candle
	cp.Key = key
	cp.Source = model.CandleSourceSnapshot
	b.buckets[key] = &cp
}

// FlushComplete removes and returns every bucket whose window has fully
// elapsed (bucket_ts + interval <= now), marking each IsComplete=true,
// per spec.md §4.9's late-flush semantics.
func (b *Builder) FlushComplete(nowMillis int64) []model.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []model.Candle
	for key, c := range b.buckets {
		if key.BucketTS+b.interval <= nowMillis {
			c.IsComplete = true
			out = append(out, *c)
			delete(b.buckets, key)
		}
	}
	return out
}

// PendingCount reports how many open buckets remain (for diagnostics/tests).
func (b *Builder) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}
