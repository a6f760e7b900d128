// Package orchestrator implements Orchestrator from spec.md §4.10: wires
// the FixSession handler to MemoryStore/AuditLog/OhlcBuilder, drives the
// QuoteEngine from the reference feed's aggregated price, and runs the
// three periodic background tasks (fast Redis flush, slow SQL migration,
// terminal-order cleanup). Grounded on
// 0xtitan6-polymarket-mm/cmd/bot/main.go + internal/engine/engine.go's
// New()/Start()/Stop() lifecycle and context-cancellation-plus-WaitGroup
// goroutine bookkeeping, generalized from that single-process Polymarket
// bot to this repo's FIX-session-plus-two-tier-storage topology.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dundas/truex-mm/internal/audit"
	"github.com/dundas/truex-mm/internal/book"
	"github.com/dundas/truex-mm/internal/config"
	"github.com/dundas/truex-mm/internal/execrecovery"
	"github.com/dundas/truex-mm/internal/execreport"
	"github.com/dundas/truex-mm/internal/fixcodec"
	"github.com/dundas/truex-mm/internal/fixproto"
	"github.com/dundas/truex-mm/internal/fixsession"
	"github.com/dundas/truex-mm/internal/memstore"
	"github.com/dundas/truex-mm/internal/model"
	"github.com/dundas/truex-mm/internal/ohlc"
	"github.com/dundas/truex-mm/internal/priceagg"
	"github.com/dundas/truex-mm/internal/quote"
	"github.com/dundas/truex-mm/internal/redistier"
	"github.com/dundas/truex-mm/internal/sqltier"
	"github.com/dundas/truex-mm/internal/wsfeed"
)

const (
	fastFlushInterval   = time.Second
	slowMigateInterval  = 5 * time.Minute
	cleanupInterval     = 30 * time.Minute
	terminalOrderMaxAge = 24 * time.Hour
	shutdownWindow      = 10 * time.Second
)

// Orchestrator is the top-level component wiring every subsystem spec.md
// §4 names into one running session.
type Orchestrator struct {
	cfg    config.Config
	logger *zap.Logger

	session     *fixsession.Session
	store       *memstore.Store
	auditLog    *audit.Log
	book        *book.Book
	priceAgg    *priceagg.Aggregator
	ohlcBuilder *ohlc.Builder
	quoteEngine *quote.Engine
	execHandler *execreport.Handler
	feed        *wsfeed.Feed
	redisTier   *redistier.Tier
	sqlTier     *sqltier.Tier // nil if the SQL tier isn't configured

	clOrdIDSeq  int64
	actionQueue chan quote.Action
	halted      atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// dispatchQueueSize bounds how many pending cancel/place/replace actions can
// queue up ahead of the rate limiter before newly arriving ones are dropped.
const dispatchQueueSize = 10000

// RedisClient is the go-redis surface redistier.New needs, re-exported so
// callers in cmd/ don't have to import internal/redistier directly.
type RedisClient = redistier.Client

// New wires every component from cfg. sqlTier may be nil when the SQL
// tier isn't configured for this run (e.g. local/dev); redisClient must
// not be nil.
func New(cfg config.Config, logger *zap.Logger, dial fixsession.Dialer, redisClient RedisClient, sqlTier *sqltier.Tier) (*Orchestrator, error) {
	store := memstore.New()

	// o is assigned below, after every subsystem it needs is built; onHalt
	// only fires (asynchronously, from audit.Log.halt) once a write has
	// actually failed, by which point o is always set.
	var o *Orchestrator
	onHalt := func(reason string) {
		logger.Error("audit log halted, trading must stop", zap.String("reason", reason))
		if o != nil {
			o.handleAuditHalt(reason)
		}
	}
	auditLog, err := audit.New(cfg.Audit.Dir, cfg.SessionID, onHalt)
	if err != nil {
		return nil, err
	}

	ohlcBuilder := ohlc.New(cfg.Fix.TargetCompID, int64(time.Minute/time.Millisecond))

	execHandler := execreport.New(store, auditLog, ohlcBuilder, cfg.SessionID)

	tick, _ := model.TickSize(cfg.Quote.Symbol)
	baseSize, err := decimal.NewFromString(cfg.Quote.BaseSize)
	if err != nil {
		return nil, model.Wrap(model.ConfigError, "quote.base_size must be a decimal string", err)
	}
	minNotional, err := decimal.NewFromString(cfg.Quote.MinNotional)
	if err != nil {
		return nil, model.Wrap(model.ConfigError, "quote.min_notional must be a decimal string", err)
	}
	quoteCfg := quote.Config{
		Levels:                cfg.Quote.Levels,
		BaseSpreadBps:         decimal.NewFromFloat(cfg.Quote.BaseSpreadBps),
		LevelSpacingTicks:     int(cfg.Quote.LevelSpacingTicks),
		RepriceThresholdTicks: int(cfg.Quote.RepriceThresholdTicks),
		BaseSize:              baseSize,
		SizeDecay:             cfg.Quote.SizeDecay,
		TickSize:              tick,
		MinNotional:           minNotional,
		PriceBandPct:          cfg.Quote.PriceBandPct,
		ConfidenceThreshold:   cfg.Quote.ConfidenceThreshold,
		MaxOrdersPerSecond:    cfg.Quote.MaxOrdersPerSecond,
		DupGuardMs:            int64(cfg.Quote.DupGuardMs),
	}

	o = &Orchestrator{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		auditLog:    auditLog,
		book:        book.New(cfg.Quote.Symbol),
		priceAgg:    priceagg.New(priceagg.DefaultConfig()),
		ohlcBuilder: ohlcBuilder,
		execHandler: execHandler,
		redisTier:   redistier.New(redisClient, cfg.Redis.Venue, cfg.Redis.Strategy, cfg.SessionID, 24*time.Hour, 1000),
		sqlTier:     sqlTier,
		actionQueue: make(chan quote.Action, dispatchQueueSize),
	}
	o.quoteEngine = quote.New(quoteCfg, o.nextClOrdID)

	o.session = fixsession.New(fixsession.Config{
		SenderCompID:    cfg.Fix.SenderCompID,
		TargetCompID:    cfg.Fix.TargetCompID,
		Username:        cfg.Fix.Username,
		Password:        cfg.Fix.Password,
		Secret:          cfg.Fix.Secret,
		AccessKey:       cfg.Fix.AccessKey,
		ResetSeqNumFlag: cfg.Fix.ResetSeqNumFlag,
		HeartBtInt:      cfg.Fix.HeartBtInt,
	}, dial, logger, o.onApplicationMessage, o.onSessionStateChange)

	o.feed = wsfeed.New(cfg.Feed.URL, []string{cfg.Feed.Symbol}, wsfeed.Handlers{
		OnSnapshot: o.onBookSnapshot,
		OnDelta:    o.onBookDelta,
		OnTrade:    o.onTrade,
	}, logger)

	return o, nil
}

// Start optionally runs ExecRecovery, then launches the FIX session (with
// its own internal reconnect-with-backoff loop), the reference feed, and
// the three periodic background tasks. Start itself returns immediately;
// logon progress is observable via Status or the onStateChange callback.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.ctx, o.cancel = context.WithCancel(ctx)

	if result, err := execrecovery.Recover(o.cfg.Audit.Dir, o.cfg.SessionID, "", o.store); err != nil {
		o.logger.Warn("exec recovery scan failed, continuing with empty recovered state", zap.Error(err))
	} else if result.OrdersReplayed > 0 || result.FillsReplayed > 0 || len(result.Incomplete) > 0 {
		o.logger.Info("exec recovery replayed audited state",
			zap.Int("orders_replayed", result.OrdersReplayed),
			zap.Int("fills_replayed", result.FillsReplayed),
			zap.Strings("incomplete", result.Incomplete))
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.session.Run(o.ctx)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.feed.Run(o.ctx); err != nil && o.ctx.Err() == nil {
			o.logger.Error("reference feed stopped", zap.Error(err))
		}
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runDispatchLoop(o.ctx)
	}()

	o.startPeriodic(fastFlushInterval, o.flushToRedis)
	o.startPeriodic(slowMigateInterval, o.migrateToSQL)
	o.startPeriodic(cleanupInterval, o.cleanupTerminalOrders)

	return nil
}

// Stop drains the periodic tasks, flushes Redis once more, disconnects
// FIX with a Logout, and closes the audit stream, returning within
// shutdownWindow per spec.md §6's process-lifecycle contract.
func (o *Orchestrator) Stop() {
	o.logger.Info("orchestrator stopping")
	if o.cancel != nil {
		o.cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownWindow):
		o.logger.Warn("shutdown window elapsed before background tasks drained")
	}

	o.flushToRedis()

	if err := o.session.Disconnect("orchestrator shutdown"); err != nil {
		o.logger.Warn("error during FIX disconnect", zap.Error(err))
	}
	if err := o.auditLog.Close(); err != nil {
		o.logger.Warn("error closing audit log", zap.Error(err))
	}
	_ = o.feed.Close()
}

func (o *Orchestrator) startPeriodic(interval time.Duration, fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-o.ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func (o *Orchestrator) flushToRedis() {
	orders := o.store.PendingOrders(0)
	if len(orders) > 0 {
		if r := o.redisTier.FlushOrders(o.ctx, orders); r.Failed > 0 {
			o.logger.Warn("redis order flush had failures", zap.Int("failed", r.Failed), zap.Strings("errors", r.Errors))
		}
	}
	fills := o.store.PendingFills(0)
	if len(fills) > 0 {
		if r := o.redisTier.FlushFills(o.ctx, fills); r.Failed > 0 {
			o.logger.Warn("redis fill flush had failures", zap.Int("failed", r.Failed), zap.Strings("errors", r.Errors))
		}
	}
	candles := o.store.PendingOhlc(0)
	if len(candles) > 0 {
		if r := o.redisTier.FlushOhlc(o.ctx, candles); r.Failed > 0 {
			o.logger.Warn("redis ohlc flush had failures", zap.Int("failed", r.Failed), zap.Strings("errors", r.Errors))
		}
	}
}

func (o *Orchestrator) migrateToSQL() {
	if o.sqlTier == nil {
		return
	}
	orders := o.store.AllOrders()
	fills := o.store.AllFills()
	candles := o.ohlcBuilder.FlushComplete(time.Now().UnixMilli())
	candlePtrs := make([]*model.Candle, len(candles))
	for i := range candles {
		candlePtrs[i] = &candles[i]
	}
	result, err := o.sqlTier.MigrateFromRedis(o.ctx, o.cfg.SessionID, orders, fills, candlePtrs, o.cfg.Fix.TargetCompID)
	if err != nil {
		o.logger.Error("sql migration failed", zap.Error(err))
		return
	}
	if result.Failed > 0 {
		o.logger.Warn("sql migration had failures", zap.Int("failed", result.Failed), zap.Strings("errors", result.Errors))
	}
}

func (o *Orchestrator) cleanupTerminalOrders() {
	removed := o.store.Cleanup(time.Now(), terminalOrderMaxAge)
	if removed > 0 {
		o.logger.Info("cleaned up terminal orders", zap.Int("removed", removed))
	}
}

// onApplicationMessage handles every inbound FIX application message the
// session doesn't consume internally (ExecutionReport, BusinessMessageReject).
func (o *Orchestrator) onApplicationMessage(msg *fixcodec.Message) {
	switch msg.MsgType() {
	case fixproto.MsgTypeExecutionReport:
		if err := o.execHandler.Handle(msg); err != nil {
			o.logger.Error("exec report handling failed", zap.Error(err))
		}
	default:
		o.logger.Debug("unhandled application message", zap.String("msg_type", msg.MsgType()))
	}
}

func (o *Orchestrator) onSessionStateChange(state fixsession.State) {
	o.logger.Info("fix session state changed", zap.String("state", state.String()))
}

func (o *Orchestrator) onBookSnapshot(snap model.BookSnapshot) {
	o.book.ApplySnapshot(snap)
	o.onPriceUpdate()
}

func (o *Orchestrator) onBookDelta(delta model.BookDelta) {
	o.book.ApplyDeltas([]model.BookDelta{delta})
	o.onPriceUpdate()
}

func (o *Orchestrator) onTrade(t model.Trade) {
	o.priceAgg.RecordTrade(t)
	o.ohlcBuilder.AddTrade(t.Symbol, t.Price, t.Size, t.TS)
}

// onPriceUpdate recomputes the aggregated price and reconciles the
// QuoteEngine's ladder, dispatching the resulting FIX actions.
func (o *Orchestrator) onPriceUpdate() {
	if o.halted.Load() {
		return
	}
	bid, ask, ok := o.book.TopOfBook()
	if !ok {
		return
	}
	now := time.Now()
	agg := o.priceAgg.Compute(o.cfg.Quote.Symbol, bid, ask, o.book.LastUpdated(), now)

	o.quoteEngine.BeginEpoch()
	desired := o.quoteEngine.Ladder(agg, quote.Skew{})
	actions := o.quoteEngine.Reconcile(desired, now)
	o.dispatchActions(actions)
}

// dispatchActions enqueues actions onto actionQueue for runDispatchLoop to
// drain at the QuoteEngine's rate-limited pace, per spec.md §4.2 step 5.
// It never blocks the caller (the feed/session callback goroutine): once
// dispatchQueueSize actions are already queued ahead of the limiter, newly
// arriving actions are dropped and logged rather than stalling price
// updates.
func (o *Orchestrator) dispatchActions(actions []quote.Action) {
	for _, a := range actions {
		select {
		case o.actionQueue <- a:
		default:
			o.logger.Warn("dispatch queue full, dropping action",
				zap.String("type", string(a.Type)),
				zap.String("client_order_id", a.ClientOrderID))
		}
	}
}

// runDispatchLoop drains actionQueue one action at a time, letting
// sendNewOrder/sendCancel block on the QuoteEngine's rate limiter before
// each wire send. This is what turns the limiter from a constructed-but-
// unused field into the rolling max_orders_per_second budget spec.md §4.2
// step 5 requires: bursts queue up in actionQueue and drain as the limiter
// admits them.
func (o *Orchestrator) runDispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-o.actionQueue:
			o.dispatchOne(a)
		}
	}
}

func (o *Orchestrator) dispatchOne(a quote.Action) {
	switch a.Type {
	case quote.ActionPlace:
		o.sendNewOrder(a)
	case quote.ActionCancel:
		o.sendCancel(a.ClientOrderID, a.Side)
	case quote.ActionReplace:
		o.sendCancel(a.ClientOrderID, a.Side)
		o.sendNewOrder(a)
	}
}

// handleAuditHalt is audit.Log's onHalt callback: per spec.md §7's
// AuditWriteFailure ("triggers a trading-halt via the Orchestrator which
// cancels all outstanding quotes via FixSession"), it cancels every active
// quote and sets halted so sendNewOrder refuses further 35=D until the
// process is restarted against a healthy audit log.
func (o *Orchestrator) handleAuditHalt(reason string) {
	if !o.halted.CompareAndSwap(false, true) {
		return
	}
	o.logger.Error("trading halted: cancelling all outstanding quotes", zap.String("reason", reason))
	for _, a := range o.quoteEngine.CancelAll("audit log halted: "+reason, time.Now()) {
		o.sendCancel(a.ClientOrderID, a.Side)
	}
}

func (o *Orchestrator) sendNewOrder(a quote.Action) {
	if o.halted.Load() {
		o.logger.Warn("new order suppressed: trading halted", zap.String("client_order_id", a.NewClientOrderID))
		return
	}
	if o.cfg.DryRun {
		o.logger.Info("dry-run: new order logged, not sent",
			zap.String("client_order_id", a.NewClientOrderID),
			zap.String("side", string(a.Side)),
			zap.String("price", a.Price.String()),
			zap.String("size", a.Size.String()))
		return
	}
	if err := o.quoteEngine.Limiter().Wait(o.dispatchCtx()); err != nil {
		return
	}
	side := fixproto.SideBuy
	if a.Side == model.SideSell {
		side = fixproto.SideSell
	}
	err := o.session.Send(func(seqNum int, now time.Time) *fixcodec.Message {
		return fixcodec.BuildNewOrderSingle(fixcodec.NewOrderParams{
			SenderCompID: o.cfg.Fix.SenderCompID,
			TargetCompID: o.cfg.Fix.TargetCompID,
			SeqNum:       seqNum,
			ClOrdID:      a.NewClientOrderID,
			Symbol:       o.cfg.Quote.Symbol,
			Side:         side,
			OrderQty:     a.Size.String(),
			OrdType:      fixproto.OrdTypeLimit,
			Price:        a.Price.String(),
			Now:          now,
		})
	})
	if err != nil {
		o.logger.Warn("new order send failed", zap.String("client_order_id", a.NewClientOrderID), zap.Error(err))
		return
	}
	o.store.AddOrder(&model.Order{
		ClientOrderID: a.NewClientOrderID,
		Symbol:        o.cfg.Quote.Symbol,
		Side:          a.Side,
		Type:          model.OrderTypeLimit,
		Size:          a.Size,
		Price:         &a.Price,
		Status:        model.StatusSent,
		Level:         a.Level,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	})
	o.quoteEngine.RecordPlaced(quote.ActiveOrder{
		ClientOrderID: a.NewClientOrderID,
		Side:          a.Side,
		Price:         a.Price,
		Size:          a.Size,
		Level:         a.Level,
		Status:        model.StatusSent,
		PlacedAt:      time.Now(),
	})
}

func (o *Orchestrator) sendCancel(origClOrdID string, side model.Side) {
	if err := o.quoteEngine.Limiter().Wait(o.dispatchCtx()); err != nil {
		return
	}
	wireSide := fixproto.SideBuy
	if side == model.SideSell {
		wireSide = fixproto.SideSell
	}
	newID := o.nextClOrdID()
	err := o.session.Send(func(seqNum int, now time.Time) *fixcodec.Message {
		return fixcodec.BuildOrderCancelRequest(fixcodec.CancelOrderParams{
			SenderCompID: o.cfg.Fix.SenderCompID,
			TargetCompID: o.cfg.Fix.TargetCompID,
			SeqNum:       seqNum,
			ClOrdID:      newID,
			OrigClOrdID:  origClOrdID,
			Symbol:       o.cfg.Quote.Symbol,
			Side:         wireSide,
			Now:          now,
		})
	})
	if err != nil {
		o.logger.Warn("cancel send failed", zap.String("orig_client_order_id", origClOrdID), zap.Error(err))
	}
}

// dispatchCtx returns o.ctx, falling back to a background context when
// called before Start has run (as unit tests exercise sendNewOrder/sendCancel
// directly).
func (o *Orchestrator) dispatchCtx() context.Context {
	if o.ctx != nil {
		return o.ctx
	}
	return context.Background()
}

func (o *Orchestrator) nextClOrdID() string {
	n := atomic.AddInt64(&o.clOrdIDSeq, 1)
	return fmt.Sprintf("%s-%d", o.cfg.Fix.SenderCompID, n)
}

// Snapshot reports read-only state for internal/httpapi.
type Snapshot struct {
	FixState       string
	Orders         []*model.Order
	DuplicateFills int64
}

// Status returns a point-in-time view of the orchestrator's state.
func (o *Orchestrator) Status() Snapshot {
	return Snapshot{
		FixState:       o.session.State().String(),
		Orders:         o.store.AllOrders(),
		DuplicateFills: o.execHandler.DuplicateFillsSkipped(),
	}
}

// RiskSnapshot reports the QuoteEngine's current live exposure for
// internal/httpapi's /risk endpoint.
type RiskSnapshot struct {
	ActiveOrders    int
	BuyNotional     decimal.Decimal
	SellNotional    decimal.Decimal
	MaxOrdersPerSec int
	PriceBandPct    float64
}

// RiskStatus sums the notional of every order the QuoteEngine believes is
// still live, split by side, alongside the configured guard limits.
func (o *Orchestrator) RiskStatus() RiskSnapshot {
	active := o.quoteEngine.ActiveSnapshot()
	snap := RiskSnapshot{
		ActiveOrders:    len(active),
		BuyNotional:     decimal.Zero,
		SellNotional:    decimal.Zero,
		MaxOrdersPerSec: o.cfg.Quote.MaxOrdersPerSecond,
		PriceBandPct:    o.cfg.Quote.PriceBandPct,
	}
	for _, a := range active {
		notional := a.Price.Mul(a.Size)
		if a.Side == model.SideBuy {
			snap.BuyNotional = snap.BuyNotional.Add(notional)
		} else {
			snap.SellNotional = snap.SellNotional.Add(notional)
		}
	}
	return snap
}
