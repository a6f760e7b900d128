// Package priceagg implements PriceAggregator from spec.md §4.8: a
// size-weighted mid price blended with a recency-decayed trade print
// history, plus a confidence score combining staleness, spread, and
// order-book imbalance. No single source repo computes this formula
// end-to-end, so it is built fresh in gurre-prime-fix-md-go's
// plain-function, no-framework style, reusing book.Book and model.Trade
// as inputs.
package priceagg

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dundas/truex-mm/internal/model"
)

// Config tunes the confidence scoring; all fields have sane defaults via New.
type Config struct {
	// StalenessWindow is the age at which staleness confidence bottoms out at 0.
	StalenessWindow time.Duration
	// MaxSpreadBps is the spread (in basis points of mid) at which spread
	// confidence bottoms out at 0.
	MaxSpreadBps float64
	// ImbalanceThreshold is the bid/ask size imbalance ratio (0..1) above
	// which confidence is penalized.
	ImbalanceThreshold float64
	// TradeHalfLife is the exponential decay half-life applied to recent
	// trade prints when blending into the mid.
	TradeHalfLife time.Duration
	// TradeBlendWeight is the weight given to the trade-decayed price
	// versus the book-derived weighted mid, in [0,1].
	TradeBlendWeight float64
	// MaxTrades bounds the recent-trade window kept for the blend.
	MaxTrades int
}

// DefaultConfig returns reasonable defaults grounded in spec.md §4.8's
// prose: staleness, spread, and imbalance all matter; none dominates.
func DefaultConfig() Config {
	return Config{
		StalenessWindow:    5 * time.Second,
		MaxSpreadBps:       50,
		ImbalanceThreshold: 0.6,
		TradeHalfLife:      2 * time.Second,
		TradeBlendWeight:   0.25,
		MaxTrades:          50,
	}
}

// Aggregator computes weighted-mid + confidence for one symbol.
type Aggregator struct {
	cfg Config

	mu     sync.Mutex
	trades []tradeRecord
}

type tradeRecord struct {
	price decimal.Decimal
	at    time.Time
}

// New returns an Aggregator using cfg (zero-value fields fall back to
// DefaultConfig's values).
func New(cfg Config) *Aggregator {
	d := DefaultConfig()
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = d.StalenessWindow
	}
	if cfg.MaxSpreadBps <= 0 {
		cfg.MaxSpreadBps = d.MaxSpreadBps
	}
	if cfg.ImbalanceThreshold <= 0 {
		cfg.ImbalanceThreshold = d.ImbalanceThreshold
	}
	if cfg.TradeHalfLife <= 0 {
		cfg.TradeHalfLife = d.TradeHalfLife
	}
	if cfg.TradeBlendWeight <= 0 {
		cfg.TradeBlendWeight = d.TradeBlendWeight
	}
	if cfg.MaxTrades <= 0 {
		cfg.MaxTrades = d.MaxTrades
	}
	return &Aggregator{cfg: cfg}
}

// RecordTrade folds a reference-venue print into the recent-trade window.
func (a *Aggregator) RecordTrade(t model.Trade) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades = append(a.trades, tradeRecord{price: t.Price, at: time.UnixMilli(t.TS)})
	if len(a.trades) > a.cfg.MaxTrades {
		a.trades = a.trades[len(a.trades)-a.cfg.MaxTrades:]
	}
}

// Compute derives the weighted mid, trade-blended price, and confidence
// for symbol from the current top-of-book and the recorded trade history.
//
// weighted_mid = (best_bid*ask_size + best_ask*bid_size) / (bid_size+ask_size)
func (a *Aggregator) Compute(symbol string, bid, ask model.BookLevel, lastBookUpdate, now time.Time) model.AggregatedPrice {
	weightedMid := weightedMid(bid, ask)
	blended := a.blendWithTrades(weightedMid, now)

	confidence := a.confidence(bid, ask, lastBookUpdate, now)

	return model.AggregatedPrice{
		Symbol:      symbol,
		WeightedMid: blended,
		Confidence:  confidence,
		TopBid:      bid.Price,
		TopAsk:      ask.Price,
		TS:          now.UnixMilli(),
	}
}

func weightedMid(bid, ask model.BookLevel) decimal.Decimal {
	denom := bid.Size.Add(ask.Size)
	if denom.IsZero() {
		return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
	}
	num := bid.Price.Mul(ask.Size).Add(ask.Price.Mul(bid.Size))
	return num.Div(denom)
}

// blendWithTrades mixes the book-derived mid with a recency-decayed
// average of recent trade prints, per spec.md §4.8's "recency-decayed
// trade price blend".
func (a *Aggregator) blendWithTrades(bookMid decimal.Decimal, now time.Time) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.trades) == 0 {
		return bookMid
	}

	halfLifeSeconds := a.cfg.TradeHalfLife.Seconds()
	var weightedSum, weightTotal float64
	for _, tr := range a.trades {
		age := now.Sub(tr.at).Seconds()
		if age < 0 {
			age = 0
		}
		w := math.Exp(-age * math.Ln2 / halfLifeSeconds)
		price, _ := tr.price.Float64()
		weightedSum += price * w
		weightTotal += w
	}
	if weightTotal == 0 {
		return bookMid
	}
	tradeAvg := decimal.NewFromFloat(weightedSum / weightTotal)

	bw := decimal.NewFromFloat(a.cfg.TradeBlendWeight)
	one := decimal.NewFromInt(1)
	return bookMid.Mul(one.Sub(bw)).Add(tradeAvg.Mul(bw))
}

// confidence combines staleness, spread, and imbalance into a single
// [0,1] score, per spec.md §4.8: "confidence combines staleness (age of
// latest update), spread (wider→lower), and imbalance thresholds".
func (a *Aggregator) confidence(bid, ask model.BookLevel, lastBookUpdate, now time.Time) float64 {
	staleness := clamp01(1 - now.Sub(lastBookUpdate).Seconds()/a.cfg.StalenessWindow.Seconds())

	mid := bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
	var spreadScore float64 = 1
	if mid.IsPositive() {
		spread := ask.Price.Sub(bid.Price)
		spreadBps, _ := spread.Div(mid).Mul(decimal.NewFromInt(10000)).Float64()
		spreadScore = clamp01(1 - spreadBps/a.cfg.MaxSpreadBps)
	}

	bidSz, _ := bid.Size.Float64()
	askSz, _ := ask.Size.Float64()
	var imbalanceScore float64 = 1
	if total := bidSz + askSz; total > 0 {
		imbalance := math.Abs(bidSz-askSz) / total
		if imbalance > a.cfg.ImbalanceThreshold {
			imbalanceScore = clamp01(1 - (imbalance-a.cfg.ImbalanceThreshold)/(1-a.cfg.ImbalanceThreshold))
		}
	}

	return (staleness + spreadScore + imbalanceScore) / 3
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
