package sim

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// TestLogonThenQuotePlacement drives spec.md §8 scenario 2 (FIX logon +
// order acceptance) end-to-end: once the session is LoggedOn, pushing a
// reference-feed snapshot should make QuoteEngine place a ladder, the
// FakeVenue should auto-ack every NewOrderSingle, and Status should reflect
// at least one open order.
func TestLogonThenQuotePlacement(t *testing.T) {
	s, cfg := New(t)
	s.Start(t, 2*time.Second)
	defer s.Stop()

	if err := s.Feed.PushSnapshot(cfg.Quote.Symbol,
		[][2]string{{"99.5", "10"}, {"99.0", "10"}},
		[][2]string{{"100.5", "10"}, {"101.0", "10"}},
		1,
	); err != nil {
		t.Fatalf("PushSnapshot failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Orch.Status()
		if len(snap.Orders) > 0 {
			found := false
			for _, o := range snap.Orders {
				if o.Status == "open" {
					found = true
				}
			}
			if found {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no order reached open status within timeout")
}

// TestDuplicateExecutionReportDedupedEndToEnd drives spec.md §8 scenario 1
// through the full wiring: the same exec_id delivered twice must only be
// counted once in DuplicateFillsSkipped after the second delivery.
func TestDuplicateExecutionReportDedupedEndToEnd(t *testing.T) {
	s, cfg := New(t)
	s.Start(t, 2*time.Second)
	defer s.Stop()

	if err := s.Feed.PushSnapshot(cfg.Quote.Symbol,
		[][2]string{{"99.5", "10"}},
		[][2]string{{"100.5", "10"}},
		1,
	); err != nil {
		t.Fatalf("PushSnapshot failed: %v", err)
	}

	var clOrdID string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Orch.Status()
		if len(snap.Orders) > 0 {
			clOrdID = snap.Orders[0].ClientOrderID
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if clOrdID == "" {
		t.Fatal("no order placed within timeout")
	}

	lastQty := decimal.RequireFromString("0.005")
	lastPx := decimal.RequireFromString("100")
	s.Venue.Fill(clOrdID, "DUP-E1", lastQty, lastPx, "1")
	s.Venue.Fill(clOrdID, "DUP-E1", lastQty, lastPx, "1")

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Orch.Status().DuplicateFills == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("duplicate_fills_skipped = %d, want 1", s.Orch.Status().DuplicateFills)
}
