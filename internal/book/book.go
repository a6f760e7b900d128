// Package book implements L2Book from spec.md §4.8: in-memory L2 order
// book reconstruction from a reference-venue snapshot+delta feed, with
// prices snapped to the symbol's tick size and sorted top-of-book/depth
// views. Grounded on 0xtitan6-polymarket-mm's market.Book
// (RWMutex-protected, one book per symbol, applySnapshot/ApplyPriceChange
// split), generalized from a YES/NO binary-outcome pair to a single
// generic bid/ask book keyed by decimal price.
package book

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dundas/truex-mm/internal/model"
)

// Book is a single symbol's reconstructed L2 order book.
type Book struct {
	mu     sync.RWMutex
	symbol string
	bids   map[string]decimal.Decimal // price.String() -> size
	asks   map[string]decimal.Decimal
	updated time.Time
}

// New returns an empty book for symbol.
func New(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids:   make(map[string]decimal.Decimal),
		asks:   make(map[string]decimal.Decimal),
	}
}

// ApplySnapshot clears and reloads both sides from a full replace, per
// spec.md §4.8's "apply_snapshot({bids, asks}) clears and loads".
func (b *Book) ApplySnapshot(snap model.BookSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tick, _ := model.TickSize(b.symbol)
	b.bids = make(map[string]decimal.Decimal, len(snap.Bids))
	b.asks = make(map[string]decimal.Decimal, len(snap.Asks))
	for _, lvl := range snap.Bids {
		b.setLocked(b.bids, model.SnapToTick(lvl.Price, tick), lvl.Size)
	}
	for _, lvl := range snap.Asks {
		b.setLocked(b.asks, model.SnapToTick(lvl.Price, tick), lvl.Size)
	}
	b.updated = timeFromMillis(snap.TS)
}

// ApplyDeltas updates individual levels; a zero size removes the level,
// per spec.md §4.8's "apply_deltas([{side, price, size}]) ... size==0 removes".
func (b *Book) ApplyDeltas(deltas []model.BookDelta) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tick, _ := model.TickSize(b.symbol)
	for _, d := range deltas {
		side := b.sideMapLocked(d.Side)
		price := model.SnapToTick(d.Price, tick)
		b.setLocked(side, price, d.Size)
		if d.TS > 0 {
			b.updated = timeFromMillis(d.TS)
		}
	}
}

func (b *Book) sideMapLocked(side model.Side) map[string]decimal.Decimal {
	if side == model.SideBuy {
		return b.bids
	}
	return b.asks
}

func (b *Book) setLocked(side map[string]decimal.Decimal, price, size decimal.Decimal) {
	key := price.String()
	if size.IsZero() {
		delete(side, key)
		return
	}
	side[key] = size
}

// TopOfBook returns the best bid and ask levels, ok=false if either side is empty.
func (b *Book) TopOfBook() (bid, ask model.BookLevel, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids := sortedLevels(b.bids, true)
	asks := sortedLevels(b.asks, false)
	if len(bids) == 0 || len(asks) == 0 {
		return model.BookLevel{}, model.BookLevel{}, false
	}
	return bids[0], asks[0], true
}

// Depth returns up to n levels per side, bids sorted descending by price
// and asks ascending, per spec.md §4.8's "depth(n) return sorted views".
func (b *Book) Depth(n int) (bids, asks []model.BookLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids = sortedLevels(b.bids, true)
	asks = sortedLevels(b.asks, false)
	if n > 0 {
		if n < len(bids) {
			bids = bids[:n]
		}
		if n < len(asks) {
			asks = asks[:n]
		}
	}
	return bids, asks
}

// LastUpdated returns the timestamp of the most recent snapshot or delta.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

// IsStale reports whether the book hasn't been updated within maxAge.
func (b *Book) IsStale(maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.updated.IsZero() {
		return true
	}
	return time.Since(b.updated) > maxAge
}

func sortedLevels(side map[string]decimal.Decimal, descending bool) []model.BookLevel {
	out := make([]model.BookLevel, 0, len(side))
	for k, size := range side {
		price, err := decimal.NewFromString(k)
		if err != nil {
			continue
		}
		out = append(out, model.BookLevel{Price: price, Size: size})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

func timeFromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
