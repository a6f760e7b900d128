package audit

import (
	"testing"
)

func TestAppendAndRecoverSession(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir, "sess-1", nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer log.Close()

	if err := log.Append(EntryFillEvent, map[string]string{"exec_id": "E1", "quantity": "0.5"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := log.Append(EntryOrderEvent, map[string]string{"client_order_id": "Q1", "status": "open"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	log.Close()

	recovered, err := RecoverSession(dir, "sess-1", "")
	if err != nil {
		t.Fatalf("RecoverSession failed: %v", err)
	}
	if len(recovered.Fills) != 1 {
		t.Errorf("got %d fill entries, want 1", len(recovered.Fills))
	}
	if len(recovered.Orders) != 1 {
		t.Errorf("got %d order entries, want 1", len(recovered.Orders))
	}
}

func TestAppendHaltsOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	haltedReason := ""
	log, err := New(dir, "sess-1", func(reason string) { haltedReason = reason })
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Force a write failure by closing the underlying file out from under the log.
	log.file.Close()

	err = log.Append(EntryError, map[string]string{"msg": "boom"})
	if err == nil {
		t.Fatal("expected an error after the file was closed")
	}
	if !log.Halted() {
		t.Error("expected log to be Halted after a write failure")
	}
	_ = haltedReason
}

func TestRecoverSessionFiltersBySessionID(t *testing.T) {
	dir := t.TempDir()
	log, _ := New(dir, "sess-A", nil)
	log.Append(EntryOrderEvent, map[string]string{"x": "1"})
	log.Close()

	log2, _ := New(dir, "sess-B", nil)
	log2.Append(EntryOrderEvent, map[string]string{"x": "2"})
	log2.Close()

	recovered, err := RecoverSession(dir, "sess-A", "")
	if err != nil {
		t.Fatalf("RecoverSession: %v", err)
	}
	if len(recovered.Orders) != 1 {
		t.Fatalf("got %d orders for sess-A, want 1 (cross-session leakage)", len(recovered.Orders))
	}
}
