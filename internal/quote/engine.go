// Package quote implements QuoteEngine from spec.md §4.2: derive a
// desired two-sided ladder from an AggregatedPrice, reconcile it against
// resting orders keyed by (side, level), and serialize the result into a
// rate-limited, dup-guarded action list. Grounded on
// 0xtitan6-polymarket-mm's reconcileOrders
// (internal/strategy/maker.go):
// match-existing-within-tolerance-else-cancel/place, generalized from a
// single-level binary-market quote pair to spec.md's N-level ladder keyed
// by (side, level) with an explicit reprice-threshold instead of a fixed
// 10% size tolerance.
package quote

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/dundas/truex-mm/internal/model"
)

// Config holds the ladder/reconciliation parameters named in spec.md §4.2.
type Config struct {
	Levels                int
	BaseSpreadBps         decimal.Decimal
	LevelSpacingTicks     int
	RepriceThresholdTicks int
	BaseSize              decimal.Decimal
	SizeDecay             float64
	TickSize              decimal.Decimal
	MinNotional           decimal.Decimal
	PriceBandPct          float64
	ConfidenceThreshold   float64
	MaxOrdersPerSecond    int
	DupGuardMs            int64
}

// Skew is the optional inventory skew from spec.md §4.2's inputs.
type Skew struct {
	BidSkewTicks int
	AskSkewTicks int
}

// DesiredQuote is one ladder rung computed from the current price update.
type DesiredQuote struct {
	Side  model.Side
	Level int
	Price decimal.Decimal
	Size  decimal.Decimal
}

// ActiveOrder is a resting order the engine is reconciling against,
// mirroring spec.md §4.2's `active_orders` state shape.
type ActiveOrder struct {
	ClientOrderID string
	Side          model.Side
	Price         decimal.Decimal
	Size          decimal.Decimal
	Level         int
	Status        model.OrderStatus
	PlacedAt      time.Time
}

// ActionType names the three kinds of dispatch actions spec.md §4.2
// serializes as [cancels…, replacements…, places…].
type ActionType string

const (
	ActionCancel  ActionType = "cancel"
	ActionPlace   ActionType = "place"
	ActionReplace ActionType = "replace" // cancel-then-place at the same (side, level)
)

// Action is one unit of dispatch work against the destination venue.
type Action struct {
	Type          ActionType
	Side          model.Side
	Level         int
	ClientOrderID string // set for cancel/replace: the order being cancelled
	NewClientOrderID string // set for place/replace: the order being placed
	Price         decimal.Decimal
	Size          decimal.Decimal
	Reason        string
}

type activeKey struct {
	side  model.Side
	level int
}

// Engine computes and reconciles the quote ladder for one symbol.
type Engine struct {
	cfg     Config
	newID   func() string
	limiter *rate.Limiter

	active         map[activeKey]ActiveOrder
	lastActionAt   map[string]time.Time // client_order_id -> last dispatch attempt
	rejectedEpoch  map[activeKey]bool   // (side,level) rejected this epoch; no retry
}

// New returns an Engine using cfg and newID to synthesize client order ids.
func New(cfg Config, newID func() string) *Engine {
	limit := rate.Limit(cfg.MaxOrdersPerSecond)
	if cfg.MaxOrdersPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Engine{
		cfg:           cfg,
		newID:         newID,
		limiter:       rate.NewLimiter(limit, max(cfg.MaxOrdersPerSecond, 1)),
		active:        make(map[activeKey]ActiveOrder),
		lastActionAt:  make(map[string]time.Time),
		rejectedEpoch: make(map[activeKey]bool),
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Limiter exposes the rolling-window rate limiter so callers can Wait()
// before dispatching each action in order.
func (e *Engine) Limiter() *rate.Limiter { return e.limiter }

// Ladder computes the desired two-sided quote set from price per spec.md
// §4.2 steps 1-3. A confidence below ConfidenceThreshold returns an empty
// ladder (callers should then cancel every active quote).
func (e *Engine) Ladder(price model.AggregatedPrice, skew Skew) []DesiredQuote {
	if price.Confidence < e.cfg.ConfidenceThreshold {
		return nil
	}

	mid := price.WeightedMid
	halfSpread := e.cfg.BaseSpreadBps.
		Div(decimal.NewFromInt(10000)).
		Mul(mid).
		Div(decimal.NewFromInt(2))

	var out []DesiredQuote
	for level := 1; level <= e.cfg.Levels; level++ {
		levelOffset := decimal.NewFromInt(int64(level * e.cfg.LevelSpacingTicks)).Mul(e.cfg.TickSize)
		bidSkew := decimal.NewFromInt(int64(skew.BidSkewTicks)).Mul(e.cfg.TickSize)
		askSkew := decimal.NewFromInt(int64(skew.AskSkewTicks)).Mul(e.cfg.TickSize)

		bidPrice := model.SnapToTick(mid.Sub(halfSpread).Sub(levelOffset).Sub(bidSkew), e.cfg.TickSize)
		askPrice := model.SnapToTick(mid.Add(halfSpread).Add(levelOffset).Add(askSkew), e.cfg.TickSize)

		size := e.levelSize(level)

		if q := e.buildQuote(model.SideBuy, level, bidPrice, size, mid); q != nil {
			out = append(out, *q)
		}
		if q := e.buildQuote(model.SideSell, level, askPrice, size, mid); q != nil {
			out = append(out, *q)
		}
	}
	return out
}

func (e *Engine) levelSize(level int) decimal.Decimal {
	decay := 1.0
	for i := 1; i < level; i++ {
		decay *= e.cfg.SizeDecay
	}
	return e.cfg.BaseSize.Mul(decimal.NewFromFloat(decay))
}

// buildQuote drops the rung if it fails the min-notional or price-band
// checks, or if (side, level) was rejected earlier in this epoch.
func (e *Engine) buildQuote(side model.Side, level int, price, size, mid decimal.Decimal) *DesiredQuote {
	if e.rejectedEpoch[activeKey{side, level}] {
		return nil
	}
	notional := price.Mul(size)
	if notional.LessThan(e.cfg.MinNotional) {
		return nil
	}
	if mid.IsPositive() {
		band, _ := price.Sub(mid).Abs().Div(mid).Float64()
		if band > e.cfg.PriceBandPct {
			return nil
		}
	}
	return &DesiredQuote{Side: side, Level: level, Price: price, Size: size}
}

// BeginEpoch clears the per-epoch rejection set, per spec.md §4.2's
// "do not retry at the same level in the same epoch" — callers start a
// new epoch once per price update.
func (e *Engine) BeginEpoch() {
	e.rejectedEpoch = make(map[activeKey]bool)
}

// RecordRejected marks (side, level) as rejected for the remainder of the
// current epoch, per spec.md §4.2's failure semantics.
func (e *Engine) RecordRejected(side model.Side, level int) {
	e.rejectedEpoch[activeKey{side, level}] = true
}

// RecordPlaced registers a newly-placed order as active at (side, level).
func (e *Engine) RecordPlaced(order ActiveOrder) {
	e.active[activeKey{order.Side, order.Level}] = order
}

// RecordCancelled removes (side, level)'s active order, if it matches clientOrderID.
func (e *Engine) RecordCancelled(side model.Side, level int, clientOrderID string) {
	key := activeKey{side, level}
	if existing, ok := e.active[key]; ok && existing.ClientOrderID == clientOrderID {
		delete(e.active, key)
	}
}

// ActiveSnapshot returns a copy of the current (side, level) -> order map.
func (e *Engine) ActiveSnapshot() map[string]ActiveOrder {
	out := make(map[string]ActiveOrder, len(e.active))
	for k, v := range e.active {
		out[string(k.side)+":"+itoa(k.level)] = v
	}
	return out
}

func itoa(n int) string {
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

// Reconcile diffs desired against the engine's active-order snapshot per
// spec.md §4.2 step 4, and serializes the result as
// [cancels…, replacements…, places…] per step 5. now is used to evaluate
// the dup guard and to stamp each emitted action's dispatch attempt time.
func (e *Engine) Reconcile(desired []DesiredQuote, now time.Time) []Action {
	desiredByKey := make(map[activeKey]DesiredQuote, len(desired))
	for _, d := range desired {
		desiredByKey[activeKey{d.Side, d.Level}] = d
	}

	var cancels, replacements, places []Action

	for key, active := range e.active {
		d, wantMatch := desiredByKey[key]
		if !wantMatch {
			if a, ok := e.guardedCancel(active, "no longer desired", now); ok {
				cancels = append(cancels, a)
			}
			continue
		}
		distanceTicks := priceDistanceTicks(active.Price, d.Price, e.cfg.TickSize)
		if distanceTicks < e.cfg.RepriceThresholdTicks {
			delete(desiredByKey, key) // keep: no action
			continue
		}
		// Reprice: cancel-then-place at the same (side, level).
		if a, ok := e.guardedCancel(active, "reprice threshold exceeded", now); ok {
			a.Type = ActionReplace
			a.NewClientOrderID = e.newID()
			a.Price = d.Price
			a.Size = d.Size
			replacements = append(replacements, a)
		}
		delete(desiredByKey, key)
	}

	for key, d := range desiredByKey {
		id := e.newID()
		e.lastActionAt[id] = now
		places = append(places, Action{
			Type:              ActionPlace,
			Side:              key.side,
			Level:             key.level,
			NewClientOrderID:  id,
			Price:             d.Price,
			Size:              d.Size,
			Reason:            "new desired quote",
		})
	}

	out := make([]Action, 0, len(cancels)+len(replacements)+len(places))
	out = append(out, cancels...)
	out = append(out, replacements...)
	out = append(out, places...)
	return out
}

// CancelAll returns a cancel action for every active order, per spec.md
// §4.2 step 1's low-confidence behavior.
func (e *Engine) CancelAll(reason string, now time.Time) []Action {
	var out []Action
	for _, active := range e.active {
		if a, ok := e.guardedCancel(active, reason, now); ok {
			out = append(out, a)
		}
	}
	return out
}

func (e *Engine) guardedCancel(active ActiveOrder, reason string, now time.Time) (Action, bool) {
	if last, ok := e.lastActionAt[active.ClientOrderID]; ok {
		guard := time.Duration(e.cfg.DupGuardMs) * time.Millisecond
		if now.Sub(last) < guard {
			return Action{}, false
		}
	}
	e.lastActionAt[active.ClientOrderID] = now
	return Action{
		Type:          ActionCancel,
		Side:          active.Side,
		Level:         active.Level,
		ClientOrderID: active.ClientOrderID,
		Price:         active.Price,
		Size:          active.Size,
		Reason:        reason,
	}, true
}

func priceDistanceTicks(a, b, tick decimal.Decimal) int {
	if tick.IsZero() {
		return 0
	}
	diff := a.Sub(b).Abs()
	ticks := diff.Div(tick)
	f, _ := ticks.Float64()
	return int(f)
}
