// Package memstore implements MemoryStore from spec.md §4.4: the
// in-memory authoritative cache of orders, fills, and OHLC with
// deduplication indices and write-behind queues. Grounded on the
// teacher's fixclient/orderstore.go (sync.RWMutex + map indices,
// defensive-copy reads) and fixclient/tradestore.go (FIFO ring buffer for
// the write-behind queues).
package memstore

import (
	"sync"
	"time"

	"github.com/dundas/truex-mm/internal/model"
)

// Store is MemoryStore: single-writer-owned, protected by one RWMutex per
// spec.md §5. Reads return defensive copies so callers can't mutate
// internal state through a snapshot.
type Store struct {
	mu sync.RWMutex

	ordersByID         map[string]*model.Order
	ordersByExchangeID map[string]*model.Order
	fillsByExecID      map[string]*model.Fill
	seenExecIDs        map[string]struct{}

	pendingOrders []*model.Order
	pendingFills  []*model.Fill
	pendingOhlc   []*model.Candle

	ohlcBuffer []*model.Candle
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		ordersByID:         make(map[string]*model.Order),
		ordersByExchangeID: make(map[string]*model.Order),
		fillsByExecID:      make(map[string]*model.Fill),
		seenExecIDs:        make(map[string]struct{}),
	}
}

// ReserveExecID atomically checks-and-marks execID as seen. It reports true
// the first time execID is reserved and false on every subsequent call, so
// callers can dedup by exec_id before any side effect runs, per spec.md
// §4.3 step 2 — independent of whether that exec_id ever produces a fill
// (a duplicate ack or cancel report has no LastQty but must still be
// skipped).
func (s *Store) ReserveExecID(execID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.seenExecIDs[execID]; seen {
		return false
	}
	s.seenExecIDs[execID] = struct{}{}
	return true
}

// AddOrder inserts a new order, indexing by ClientOrderID and (once known)
// ExchangeOrderID, and enqueues it for the write-behind queue.
func (s *Store) AddOrder(o *model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := o.Clone()
	s.ordersByID[cp.ClientOrderID] = cp
	if cp.ExchangeOrderID != "" {
		s.ordersByExchangeID[cp.ExchangeOrderID] = cp
	}
	s.pendingOrders = append(s.pendingOrders, cp)
}

// UpdateOrder replaces the stored order by ClientOrderID, re-indexing its
// ExchangeOrderID if set, and re-queues it for downstream flush.
func (s *Store) UpdateOrder(o *model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := o.Clone()
	s.ordersByID[cp.ClientOrderID] = cp
	if cp.ExchangeOrderID != "" {
		s.ordersByExchangeID[cp.ExchangeOrderID] = cp
	}
	s.pendingOrders = append(s.pendingOrders, cp)
}

// GetOrder returns a defensive copy of the order, or nil if unknown.
func (s *Store) GetOrder(clientOrderID string) *model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ordersByID[clientOrderID].Clone()
}

// GetByExchangeID returns a defensive copy keyed by exchange order id.
func (s *Store) GetByExchangeID(exchangeOrderID string) *model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ordersByExchangeID[exchangeOrderID].Clone()
}

// AllOrders returns defensive copies of every known order.
func (s *Store) AllOrders() []*model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Order, 0, len(s.ordersByID))
	for _, o := range s.ordersByID {
		out = append(out, o.Clone())
	}
	return out
}

// AllFills returns defensive copies of every known fill, for the SQL
// migration pass.
func (s *Store) AllFills() []*model.Fill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Fill, 0, len(s.fillsByExecID))
	for _, f := range s.fillsByExecID {
		cp := *f
		out = append(out, &cp)
	}
	return out
}

// AddFill rejects duplicates by ExecID (returning nil, matching spec.md
// §4.4's "rejects duplicates by exec_id returning null"); otherwise stores
// the fill and enqueues it for flush.
func (s *Store) AddFill(f *model.Fill) *model.Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.fillsByExecID[f.ExecID]; exists {
		return nil
	}
	cp := *f
	s.fillsByExecID[f.ExecID] = &cp
	s.pendingFills = append(s.pendingFills, &cp)
	return &cp
}

// GetFillByExec returns the fill for execID, or nil if unknown.
func (s *Store) GetFillByExec(execID string) *model.Fill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fillsByExecID[execID]
	if !ok {
		return nil
	}
	cp := *f
	return &cp
}

// AddOhlc buffers a candle update for later aggregation/flush.
func (s *Store) AddOhlc(c *model.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.ohlcBuffer = append(s.ohlcBuffer, &cp)
	s.pendingOhlc = append(s.pendingOhlc, &cp)
}

// BufferOhlc returns and clears the accumulated candle buffer.
func (s *Store) BufferOhlc() []*model.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.ohlcBuffer
	s.ohlcBuffer = nil
	return out
}

// PendingOrders consumes up to limit entries from the order write-behind queue.
func (s *Store) PendingOrders(limit int) []*model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return drainOrders(&s.pendingOrders, limit)
}

// PendingFills consumes up to limit entries from the fill write-behind queue.
func (s *Store) PendingFills(limit int) []*model.Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	return drainFills(&s.pendingFills, limit)
}

// PendingOhlc consumes up to limit entries from the OHLC write-behind queue.
func (s *Store) PendingOhlc(limit int) []*model.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return drainCandles(&s.pendingOhlc, limit)
}

func drainOrders(q *[]*model.Order, limit int) []*model.Order {
	if limit <= 0 || limit > len(*q) {
		limit = len(*q)
	}
	out := (*q)[:limit]
	*q = (*q)[limit:]
	return out
}

func drainFills(q *[]*model.Fill, limit int) []*model.Fill {
	if limit <= 0 || limit > len(*q) {
		limit = len(*q)
	}
	out := (*q)[:limit]
	*q = (*q)[limit:]
	return out
}

func drainCandles(q *[]*model.Candle, limit int) []*model.Candle {
	if limit <= 0 || limit > len(*q) {
		limit = len(*q)
	}
	out := (*q)[:limit]
	*q = (*q)[limit:]
	return out
}

// Cleanup evicts orders in terminal states whose TerminalAt is older than
// maxAge, per spec.md §4.4.
func (s *Store) Cleanup(now time.Time, maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, o := range s.ordersByID {
		if o.Status.IsTerminal() && o.TerminalAt != nil && now.Sub(*o.TerminalAt) > maxAge {
			delete(s.ordersByID, id)
			if o.ExchangeOrderID != "" {
				delete(s.ordersByExchangeID, o.ExchangeOrderID)
			}
			removed++
		}
	}
	return removed
}
