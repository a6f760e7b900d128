package book

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dundas/truex-mm/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplySnapshotThenDepthRoundTrips(t *testing.T) {
	b := New("BTC-PYUSD")
	b.ApplySnapshot(model.BookSnapshot{
		Symbol: "BTC-PYUSD",
		Bids: []model.BookLevel{
			{Price: d("100.0"), Size: d("1")},
			{Price: d("99.5"), Size: d("2")},
		},
		Asks: []model.BookLevel{
			{Price: d("100.5"), Size: d("1")},
			{Price: d("101.0"), Size: d("3")},
		},
		TS: 1000,
	})

	bids, asks := b.Depth(10)
	if len(bids) != 2 || !bids[0].Price.Equal(d("100.0")) || !bids[1].Price.Equal(d("99.5")) {
		t.Fatalf("bids not sorted descending: %+v", bids)
	}
	if len(asks) != 2 || !asks[0].Price.Equal(d("100.5")) || !asks[1].Price.Equal(d("101.0")) {
		t.Fatalf("asks not sorted ascending: %+v", asks)
	}
}

func TestApplyDeltaWithZeroSizeRemovesLevel(t *testing.T) {
	b := New("BTC-PYUSD")
	b.ApplySnapshot(model.BookSnapshot{
		Bids: []model.BookLevel{{Price: d("100.0"), Size: d("1")}},
		Asks: []model.BookLevel{{Price: d("100.5"), Size: d("1")}},
	})
	b.ApplyDeltas([]model.BookDelta{{Side: model.SideBuy, Price: d("100.0"), Size: d("0")}})

	bids, _ := b.Depth(10)
	if len(bids) != 0 {
		t.Fatalf("expected bid level to be removed, got %+v", bids)
	}
}

func TestTopOfBookReturnsBestLevels(t *testing.T) {
	b := New("BTC-PYUSD")
	b.ApplySnapshot(model.BookSnapshot{
		Bids: []model.BookLevel{{Price: d("100.0"), Size: d("1")}, {Price: d("99.0"), Size: d("1")}},
		Asks: []model.BookLevel{{Price: d("101.0"), Size: d("1")}, {Price: d("102.0"), Size: d("1")}},
	})
	bid, ask, ok := b.TopOfBook()
	if !ok {
		t.Fatal("expected top of book to be available")
	}
	if !bid.Price.Equal(d("100.0")) || !ask.Price.Equal(d("101.0")) {
		t.Errorf("top of book = bid %s / ask %s, want 100.0 / 101.0", bid.Price, ask.Price)
	}
}

func TestTopOfBookFalseWhenOneSideEmpty(t *testing.T) {
	b := New("BTC-PYUSD")
	b.ApplySnapshot(model.BookSnapshot{Bids: []model.BookLevel{{Price: d("100.0"), Size: d("1")}}})
	if _, _, ok := b.TopOfBook(); ok {
		t.Error("expected ok=false with an empty ask side")
	}
}

func TestPricesSnapToTickSize(t *testing.T) {
	b := New("BTC-PYUSD") // tick size 0.5
	b.ApplySnapshot(model.BookSnapshot{
		Bids: []model.BookLevel{{Price: d("100.26"), Size: d("1")}},
		Asks: []model.BookLevel{{Price: d("100.74"), Size: d("1")}},
	})
	bid, ask, ok := b.TopOfBook()
	if !ok {
		t.Fatal("expected top of book")
	}
	if !bid.Price.Equal(d("100.0")) {
		t.Errorf("bid snapped = %s, want 100.0", bid.Price)
	}
	if !ask.Price.Equal(d("100.5")) {
		t.Errorf("ask snapped = %s, want 100.5", ask.Price)
	}
}
