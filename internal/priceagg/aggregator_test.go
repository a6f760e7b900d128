package priceagg

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dundas/truex-mm/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWeightedMidFavorsLargerOppositeSize(t *testing.T) {
	a := New(DefaultConfig())
	now := time.Now()
	// Large ask size should pull the weighted mid toward the bid.
	out := a.Compute("BTC-PYUSD",
		model.BookLevel{Price: dec("100"), Size: dec("1")},
		model.BookLevel{Price: dec("102"), Size: dec("9")},
		now, now)

	if out.WeightedMid.LessThan(dec("100")) || out.WeightedMid.GreaterThan(dec("101")) {
		t.Errorf("weighted mid = %s, want between 100 and 101 (pulled toward bid by large ask size)", out.WeightedMid)
	}
}

func TestConfidenceDropsWithStaleBook(t *testing.T) {
	a := New(DefaultConfig())
	now := time.Now()
	fresh := a.Compute("BTC-PYUSD",
		model.BookLevel{Price: dec("100"), Size: dec("1")},
		model.BookLevel{Price: dec("100.5"), Size: dec("1")},
		now, now)

	stale := a.Compute("BTC-PYUSD",
		model.BookLevel{Price: dec("100"), Size: dec("1")},
		model.BookLevel{Price: dec("100.5"), Size: dec("1")},
		now.Add(-time.Hour), now)

	if stale.Confidence >= fresh.Confidence {
		t.Errorf("stale confidence %f should be lower than fresh confidence %f", stale.Confidence, fresh.Confidence)
	}
}

func TestConfidenceDropsWithWideSpread(t *testing.T) {
	a := New(DefaultConfig())
	now := time.Now()
	tight := a.Compute("BTC-PYUSD",
		model.BookLevel{Price: dec("100"), Size: dec("1")},
		model.BookLevel{Price: dec("100.1"), Size: dec("1")},
		now, now)
	wide := a.Compute("BTC-PYUSD",
		model.BookLevel{Price: dec("90"), Size: dec("1")},
		model.BookLevel{Price: dec("110"), Size: dec("1")},
		now, now)

	if wide.Confidence >= tight.Confidence {
		t.Errorf("wide-spread confidence %f should be lower than tight-spread confidence %f", wide.Confidence, tight.Confidence)
	}
}

func TestRecordTradeBlendsTowardRecentPrints(t *testing.T) {
	a := New(Config{TradeBlendWeight: 0.9, TradeHalfLife: 10 * time.Second})
	now := time.Now()
	a.RecordTrade(model.Trade{Price: dec("120"), Size: dec("1"), TS: now.UnixMilli()})

	out := a.Compute("BTC-PYUSD",
		model.BookLevel{Price: dec("100"), Size: dec("1")},
		model.BookLevel{Price: dec("100.5"), Size: dec("1")},
		now, now)

	if out.WeightedMid.LessThan(dec("110")) {
		t.Errorf("weighted mid = %s, want pulled strongly toward the 120 trade print", out.WeightedMid)
	}
}
