// Package execrecovery implements ExecRecovery from spec.md §4.10: on
// restart, scan the AuditLog for a session's recorded order and fill
// events, compare against what MemoryStore already holds, and replay only
// what the audit trail actually recorded. No teacher file implements
// restart recovery (quickfix owns its own session-persistence story on the
// teacher's side), so this module follows spec.md §4.10's contract
// directly, consuming internal/audit.RecoverSession and internal/memstore's
// read/write surface.
package execrecovery

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/dundas/truex-mm/internal/audit"
	"github.com/dundas/truex-mm/internal/memstore"
	"github.com/dundas/truex-mm/internal/model"
)

// Result reports what the recovery pass found and replayed.
type Result struct {
	OrdersReplayed int
	FillsReplayed  int
	// Incomplete lists the client_order_id or exec_id of each audit entry
	// this pass could not fully replay (e.g. an order event for a
	// client_order_id the store does not hold) — recorded, never
	// fabricated.
	Incomplete []string
}

// orderEventPayload mirrors the map internal/execreport.Handler.Handle
// writes to EntryOrderEvent.
type orderEventPayload struct {
	ClientOrderID   string `json:"client_order_id"`
	ExchangeOrderID string `json:"exchange_order_id"`
	Status          string `json:"status"`
	ExecID          string `json:"exec_id"`
}

// fillEventPayload mirrors the map internal/execreport.Handler.Handle
// writes to EntryFillEvent.
type fillEventPayload struct {
	FillID   string `json:"fill_id"`
	ExecID   string `json:"exec_id"`
	OrderID  string `json:"order_id"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
}

// Recover scans dir for sessionID's audit entries (falling back to the
// latest audit file if date is empty) and replays into store any order
// status or fill that the audit trail recorded but store does not yet
// hold. It never invents a field the audit entry didn't carry: a replayed
// order only gets the fields recorded in its ORDER_EVENT payload, and an
// order event for a client_order_id store has never heard of is reported
// in Result.Incomplete rather than synthesized from nothing.
func Recover(dir, sessionID, date string, store *memstore.Store) (*Result, error) {
	recovered, err := audit.RecoverSession(dir, sessionID, date)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	for _, entry := range recovered.Orders {
		var payload orderEventPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			continue // malformed entry: skip, never fabricate
		}
		if payload.ClientOrderID == "" {
			continue
		}

		existing := store.GetOrder(payload.ClientOrderID)
		if existing == nil {
			// The order itself was never created in this MemoryStore
			// instance (e.g. the AddOrder call preceded this audit file,
			// or the order-create path isn't itself audited). There is
			// not enough in this entry alone to fabricate a full Order
			// (symbol, side, size are unknown), so report it instead of
			// guessing.
			result.Incomplete = append(result.Incomplete, payload.ClientOrderID)
			continue
		}

		if string(existing.Status) == payload.Status && existing.ExchangeOrderID == payload.ExchangeOrderID {
			continue // already consistent with the audit trail
		}

		existing.Status = model.OrderStatus(payload.Status)
		if payload.ExchangeOrderID != "" {
			existing.ExchangeOrderID = payload.ExchangeOrderID
		}
		store.UpdateOrder(existing)
		result.OrdersReplayed++
	}

	for _, entry := range recovered.Fills {
		var payload fillEventPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			continue
		}
		if payload.ExecID == "" {
			continue
		}
		if store.GetFillByExec(payload.ExecID) != nil {
			continue // already present, dedup by exec_id per spec.md §4.4
		}

		qty, qtyErr := decimal.NewFromString(payload.Quantity)
		price, priceErr := decimal.NewFromString(payload.Price)
		if qtyErr != nil || priceErr != nil {
			result.Incomplete = append(result.Incomplete, payload.ExecID)
			continue
		}

		fill := &model.Fill{
			FillID:    payload.FillID,
			ExecID:    payload.ExecID,
			SessionID: sessionID,
			OrderID:   payload.OrderID,
			Quantity:  qty,
			Price:     price,
			Timestamp: entry.TS,
		}
		if order := store.GetOrder(payload.OrderID); order != nil {
			fill.Symbol = order.Symbol
			fill.Side = order.Side
			fill.ExchangeOrderID = order.ExchangeOrderID
		}
		store.AddFill(fill)
		result.FillsReplayed++
	}

	return result, nil
}
