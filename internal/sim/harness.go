package sim

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dundas/truex-mm/internal/config"
	"github.com/dundas/truex-mm/internal/orchestrator"
)

// TwoSidedSim wires a real Orchestrator against a FakeVenue (the
// destination-venue FIX counterparty) and a FakeFeed (the reference
// WebSocket feed), letting tests drive spec.md §8's boundary scenarios
// through the actual production wiring path instead of each component in
// isolation.
type TwoSidedSim struct {
	Orch  *orchestrator.Orchestrator
	Venue *FakeVenue
	Feed  *FakeFeed

	cancel context.CancelFunc
}

// fakeRedisClient is a trivially-successful Client, since the sim harness
// exercises FIX/feed/orchestrator wiring, not the Redis tier.
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

// New builds a TwoSidedSim with sensible defaults for the BTC-PYUSD symbol
// and returns the config the orchestrator was built from. The orchestrator
// keeps its own copy, so changing the returned config has no effect on it.
func New(t *testing.T) (*TwoSidedSim, config.Config) {
	t.Helper()

	feed := NewFakeFeed()
	t.Cleanup(feed.Close)

	client, server := net.Pipe()
	venue := NewFakeVenue("VENUE", "TRUEX", server)
	go venue.Run()
	t.Cleanup(func() { client.Close() })

	cfg := config.Config{
		SessionID: "sim-session",
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
			MinNotional:         "0.1",
			PriceBandPct:        0.05,
			ConfidenceThreshold: 0,
			MaxOrdersPerSecond:  100,
			DupGuardMs:          0,
		},
		Redis: config.RedisConfig{Venue: "truex", Strategy: "mm"},
		Audit: config.AuditConfig{Dir: t.TempDir()},
		Feed:  config.FeedConfig{URL: feed.URL(), Symbol: "BTC-PYUSD"},
	}

	dial := func(ctx context.Context) (net.Conn, error) { return client, nil }

	orch, err := orchestrator.New(cfg, zap.NewNop(), dial, &fakeRedisClient{}, nil)
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}

	return &TwoSidedSim{Orch: orch, Venue: venue, Feed: feed}, cfg
}

// Start launches the orchestrator and blocks until FixSession reaches
// LoggedOn or the deadline elapses.
func (s *TwoSidedSim) Start(t *testing.T, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.Orch.Start(ctx); err != nil {
		t.Fatalf("orchestrator.Start failed: %v", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Orch.Status().FixState == "LoggedOn" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("FIX session did not reach LoggedOn within %s", timeout)
}

// Stop cancels the orchestrator's context and waits for shutdown.
func (s *TwoSidedSim) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.Orch.Stop()
}
