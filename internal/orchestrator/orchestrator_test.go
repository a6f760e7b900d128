package orchestrator

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dundas/truex-mm/internal/config"
	"github.com/dundas/truex-mm/internal/fixcodec"
	"github.com/dundas/truex-mm/internal/fixproto"
	"github.com/dundas/truex-mm/internal/model"
	"github.com/dundas/truex-mm/internal/quote"
)

// fakeCounterparty drives the other half of a net.Pipe as a minimal FIX
// acceptor, enough to bring a Session to LoggedOn.
func fakeCounterparty(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	seq := 1
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			msgs, consumed := fixcodec.SplitMessages(buf)
			buf = append([]byte(nil), buf[consumed:]...)
			for _, raw := range msgs {
				m, decodeErr := fixcodec.Decode(raw)
				if decodeErr != nil {
					continue
				}
				if m.MsgType() == fixproto.MsgTypeLogon {
					reply := fixcodec.BuildLogon(fixcodec.LogonParams{
						SenderCompID: "VENUE", TargetCompID: "TRUEX", SeqNum: seq, HeartBtInt: "30", Now: time.Now(),
					})
					conn.Write(fixcodec.Encode(reply, fixproto.FixBeginString))
					seq++
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// fakeRedisClient is a minimal in-memory stand-in for redistier.Client.
type fakeRedisClient struct{}

func (f *fakeRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}
func (f *fakeRedisClient) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	return redis.NewIntResult(int64(len(values)/2), nil)
}
func (f *fakeRedisClient) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	return redis.NewIntResult(int64(len(members)), nil)
}
func (f *fakeRedisClient) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) *redis.IntCmd {
	return redis.NewIntResult(0, nil)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		SessionID: "sess-test",
		Fix: config.FixConfig{
			SenderCompID: "TRUEX",
			TargetCompID: "VENUE",
			HeartBtInt:   200 * time.Millisecond,
		},
		Quote: config.QuoteConfig{
			Symbol:              "BTC-PYUSD",
			Levels:              2,
			BaseSpreadBps:       10,
			LevelSpacingTicks:   2,
			BaseSize:            "0.01",
			SizeDecay:           0.5,
			MinNotional:         "10",
			PriceBandPct:        0.05,
			ConfidenceThreshold: 0,
			MaxOrdersPerSecond:  100,
			DupGuardMs:          0,
		},
		Redis: config.RedisConfig{Venue: "truex", Strategy: "mm"},
		Audit: config.AuditConfig{Dir: t.TempDir()},
		Feed:  config.FeedConfig{URL: "ws://127.0.0.1:1/none", Symbol: "BTC-PYUSD"},
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	go fakeCounterparty(t, server)

	dial := func(ctx context.Context) (net.Conn, error) { return client, nil }
	o, err := New(testConfig(t), zap.NewNop(), dial, &fakeRedisClient{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o, client
}

func TestNewWiresEveryComponent(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if o.session == nil || o.store == nil || o.book == nil || o.quoteEngine == nil || o.feed == nil {
		t.Fatal("New left a component unwired")
	}
}

func TestNewRejectsUnparseableBaseSize(t *testing.T) {
	cfg := testConfig(t)
	cfg.Quote.BaseSize = "not-a-number"
	_, err := New(cfg, zap.NewNop(), func(ctx context.Context) (net.Conn, error) { return nil, nil }, &fakeRedisClient{}, nil)
	if err == nil {
		t.Fatal("expected a ConfigError for an unparseable base_size")
	}
}

func TestOnPriceUpdateNoopsWithoutBookData(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	// No snapshot applied yet: TopOfBook reports ok=false, so this must
	// return before touching the quote engine or dispatching anything.
	o.onPriceUpdate()
}

func TestSendNewOrderRecordsOrderInStoreAndEngine(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.session.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	action := quote.Action{
		Type:             quote.ActionPlace,
		Side:             model.SideBuy,
		Level:            0,
		NewClientOrderID: "TRUEX-1",
		Price:            decimal.RequireFromString("100"),
		Size:             decimal.RequireFromString("0.01"),
	}
	o.sendNewOrder(action)

	got := o.store.GetOrder("TRUEX-1")
	if got == nil {
		t.Fatal("sendNewOrder did not record the order in MemoryStore")
	}
	if got.Status != model.StatusSent || got.Side != model.SideBuy {
		t.Fatalf("got order %+v, want status=sent side=buy", got)
	}

	snap := o.quoteEngine.ActiveSnapshot()
	if len(snap) != 1 {
		t.Fatalf("QuoteEngine active snapshot has %d entries, want 1", len(snap))
	}
}

func TestSendCancelFailsSilentlyWhenNotConnected(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	// Session is still Disconnected: sendCancel must log and return, not panic.
	o.sendCancel("TRUEX-1", model.SideBuy)
}

func TestFlushToRedisNoopWhenNothingPending(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.ctx = context.Background()
	o.flushToRedis() // must not panic with empty queues
}

func TestMigrateToSQLNoopsWithoutSQLTier(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.ctx = context.Background()
	o.migrateToSQL() // sqlTier is nil; must return immediately
}

func TestCleanupTerminalOrdersRemovesOldTerminalOrders(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	past := time.Now().Add(-48 * time.Hour)
	order := &model.Order{ClientOrderID: "OLD-1", Status: model.StatusCancelled, TerminalAt: &past}
	o.store.AddOrder(order)

	o.cleanupTerminalOrders()

	if got := o.store.GetOrder("OLD-1"); got != nil {
		t.Fatal("cleanupTerminalOrders left a stale terminal order in the store")
	}
}

func TestDispatchActionsEnqueuesWithoutBlocking(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	action := quote.Action{Type: quote.ActionCancel, ClientOrderID: "TRUEX-Q1", Side: model.SideBuy}

	o.dispatchActions([]quote.Action{action})

	select {
	case got := <-o.actionQueue:
		if got.ClientOrderID != "TRUEX-Q1" {
			t.Fatalf("dequeued %+v, want ClientOrderID=TRUEX-Q1", got)
		}
	default:
		t.Fatal("expected dispatchActions to enqueue the action onto actionQueue")
	}
}

func TestDispatchActionsDropsOnFullQueueWithoutBlocking(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	// Fill the queue to capacity, then confirm one more dispatchActions call
	// returns immediately (drops, doesn't block) per spec.md §4.2 step 5's
	// queue-and-drain semantics.
	for i := 0; i < cap(o.actionQueue); i++ {
		o.actionQueue <- quote.Action{ClientOrderID: "filler"}
	}
	done := make(chan struct{})
	go func() {
		o.dispatchActions([]quote.Action{{ClientOrderID: "overflow"}})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatchActions blocked on a full actionQueue instead of dropping")
	}
}

func TestHandleAuditHaltSuppressesFurtherNewOrders(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.handleAuditHalt("disk full")
	if !o.halted.Load() {
		t.Fatal("expected halted to be true after handleAuditHalt")
	}

	action := quote.Action{
		Type:             quote.ActionPlace,
		Side:             model.SideBuy,
		NewClientOrderID: "TRUEX-HALT-1",
		Price:            decimal.RequireFromString("100"),
		Size:             decimal.RequireFromString("0.01"),
	}
	o.sendNewOrder(action)

	if got := o.store.GetOrder("TRUEX-HALT-1"); got != nil {
		t.Fatal("sendNewOrder must not place new orders after an audit halt")
	}
}

func TestHandleAuditHaltStaysHaltedOnRepeatSignal(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.quoteEngine.RecordPlaced(quote.ActiveOrder{
		ClientOrderID: "TRUEX-EXIST",
		Side:          model.SideBuy,
		Level:         1,
		Price:         decimal.RequireFromString("100"),
		Size:          decimal.RequireFromString("0.01"),
	})

	o.handleAuditHalt("disk full")
	if !o.halted.Load() {
		t.Fatal("expected halted after first handleAuditHalt call")
	}
	// A second halt signal (e.g. another failed write) must not re-run the
	// cancel-all walk; CompareAndSwap makes handleAuditHalt a no-op here.
	o.handleAuditHalt("disk full again")
}

func TestStatusReportsFixStateAndOrders(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	st := o.Status()
	if st.FixState == "" {
		t.Fatal("Status().FixState must not be empty")
	}
}
