package redistier

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/dundas/truex-mm/internal/model"
)

// fakeClient is a minimal in-memory stand-in for *redis.Client satisfying
// the Client interface, so these tests exercise the dedup/flush logic
// without a live Redis server.
type fakeClient struct {
	setNXResults map[string]bool
	hsetErr      error
	zsets        map[string]map[string]float64
}

func newFakeClient() *fakeClient {
	return &fakeClient{setNXResults: make(map[string]bool), zsets: make(map[string]map[string]float64)}
}

func (f *fakeClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	_, seen := f.setNXResults[key]
	f.setNXResults[key] = true
	return redis.NewBoolResult(!seen, nil)
}

func (f *fakeClient) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	return redis.NewIntResult(int64(len(values)/2), f.hsetErr)
}

func (f *fakeClient) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	set, ok := f.zsets[key]
	if !ok {
		set = make(map[string]float64)
		f.zsets[key] = set
	}
	for _, m := range members {
		set[m.Member.(string)] = m.Score
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeClient) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) *redis.IntCmd {
	return redis.NewIntResult(0, nil)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFlushFillsDedupsByExecID(t *testing.T) {
	client := newFakeClient()
	tier := New(client, "truex", "mm", "sess-1", time.Hour, 100)

	fill := &model.Fill{FillID: "Q1-E1", ExecID: "E1", OrderID: "Q1", Symbol: "BTC-PYUSD", Quantity: dec("1"), Price: dec("100")}
	result := tier.FlushFills(context.Background(), []*model.Fill{fill, fill})

	if result.Success != 1 {
		t.Errorf("success = %d, want 1", result.Success)
	}
	if result.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 (duplicate exec_id reservation)", result.Skipped)
	}
}

func TestFlushOrdersReportsSuccessPerOrder(t *testing.T) {
	client := newFakeClient()
	tier := New(client, "truex", "mm", "sess-1", time.Hour, 100)

	batch := []*model.Order{
		{ClientOrderID: "A", Symbol: "BTC-PYUSD", Size: dec("1")},
		{ClientOrderID: "B", Symbol: "BTC-PYUSD", Size: dec("2")},
	}
	result := tier.FlushOrders(context.Background(), batch)
	if result.Success != 2 || result.Failed != 0 {
		t.Errorf("got %+v, want 2 successes and 0 failures", result)
	}
}

func TestFlushOhlcIndexesEveryBucketWithinHorizon(t *testing.T) {
	client := newFakeClient()
	tier := New(client, "truex", "mm", "sess-1", time.Hour, 2)

	candles := []*model.Candle{
		{Key: model.CandleKey{Symbol: "BTC-PYUSD", Interval: 60000, BucketTS: 0}, Open: dec("1"), High: dec("1"), Low: dec("1"), Close: dec("1")},
		{Key: model.CandleKey{Symbol: "BTC-PYUSD", Interval: 60000, BucketTS: 60000}, Open: dec("1"), High: dec("1"), Low: dec("1"), Close: dec("1")},
	}
	result := tier.FlushOhlc(context.Background(), candles)
	if result.Success != 2 {
		t.Fatalf("success = %d, want 2", result.Success)
	}

	indexKey := tier.Key("BTC-PYUSD", "ohlc_index", "60000")
	if len(client.zsets[indexKey]) != 2 {
		t.Errorf("index entries = %d, want 2", len(client.zsets[indexKey]))
	}
}

func TestKeyFormatMatchesDeterministicScheme(t *testing.T) {
	tier := New(newFakeClient(), "truex", "mm", "sess-1", time.Hour, 100)
	got := tier.Key("BTC-PYUSD", "order", "Q1")
	want := "truex:mm:BTC-PYUSD:sess-1:order:Q1"
	if got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}
