package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dundas/truex-mm/internal/config"
	"github.com/dundas/truex-mm/internal/orchestrator"
)

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

func newTestOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	cfg := config.Config{
		SessionID: "sess-test",
		Fix:       config.FixConfig{SenderCompID: "TRUEX", TargetCompID: "VENUE", HeartBtInt: 200 * time.Millisecond},
		Quote: config.QuoteConfig{
			Symbol: "BTC-PYUSD", Levels: 1, BaseSpreadBps: 10, BaseSize: "0.01",
			SizeDecay: 0.5, MinNotional: "10", PriceBandPct: 0.05, MaxOrdersPerSecond: 100,
		},
		Redis: config.RedisConfig{Venue: "truex", Strategy: "mm"},
		Audit: config.AuditConfig{Dir: t.TempDir()},
		Feed:  config.FeedConfig{URL: "ws://127.0.0.1:1/none", Symbol: "BTC-PYUSD"},
	}
	dial := func(ctx context.Context) (net.Conn, error) { return nil, context.DeadlineExceeded }
	o, err := orchestrator.New(cfg, zap.NewNop(), dial, &fakeRedisClient{}, nil)
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}
	return o
}

func TestHealthzReportsOK(t *testing.T) {
	s := New(newTestOrchestrator(t), zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStatusReflectsFixSessionState(t *testing.T) {
	s := New(newTestOrchestrator(t), zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	defer resp.Body.Close()

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.FixState == "" {
		t.Fatal("status response must report a non-empty fix_state")
	}
}

func TestOrdersReturnsJSONArray(t *testing.T) {
	s := New(newTestOrchestrator(t), zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/orders")
	if err != nil {
		t.Fatalf("GET /orders failed: %v", err)
	}
	defer resp.Body.Close()

	var body []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("got %d orders, want 0 for a freshly wired orchestrator", len(body))
	}
}

func TestRiskReportsConfiguredGuardLimits(t *testing.T) {
	s := New(newTestOrchestrator(t), zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/risk")
	if err != nil {
		t.Fatalf("GET /risk failed: %v", err)
	}
	defer resp.Body.Close()

	var body riskResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.MaxOrdersPerSec != 100 {
		t.Fatalf("max_orders_per_second = %d, want 100", body.MaxOrdersPerSec)
	}
	if body.ActiveOrders != 0 {
		t.Fatalf("active_orders = %d, want 0", body.ActiveOrders)
	}
}
