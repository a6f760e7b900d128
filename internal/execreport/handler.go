// Package execreport implements spec.md §4.3: inbound execution-report
// handling — dedup by (session_id, exec_id), the OrdStatus/ExecType
// mapping tables from spec.md §7, fill creation, and the synchronous
// audit-before-expose ordering guarantee from spec.md §5.
package execreport

import (
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dundas/truex-mm/internal/audit"
	"github.com/dundas/truex-mm/internal/fixcodec"
	"github.com/dundas/truex-mm/internal/fixproto"
	"github.com/dundas/truex-mm/internal/memstore"
	"github.com/dundas/truex-mm/internal/model"
)

// OhlcTradeSink receives a normalized trade for candle aggregation; kept as
// a narrow interface so execreport doesn't import internal/ohlc directly.
type OhlcTradeSink interface {
	AddTrade(symbol string, price, size decimal.Decimal, ts int64)
}

// Handler processes inbound ExecutionReport (35=8) messages.
type Handler struct {
	store     *memstore.Store
	auditLog  *audit.Log
	ohlc      OhlcTradeSink
	sessionID string

	duplicateFillsSkipped int64
}

// New constructs a Handler wired to the session's MemoryStore, AuditLog,
// and OhlcBuilder.
func New(store *memstore.Store, auditLog *audit.Log, ohlc OhlcTradeSink, sessionID string) *Handler {
	return &Handler{store: store, auditLog: auditLog, ohlc: ohlc, sessionID: sessionID}
}

// DuplicateFillsSkipped returns the running dedup counter, per spec.md §8's
// boundary scenario 1.
func (h *Handler) DuplicateFillsSkipped() int64 {
	return atomic.LoadInt64(&h.duplicateFillsSkipped)
}

// parsedReport is the typed extraction of the wire fields spec.md §4.3 names.
type parsedReport struct {
	clOrdID         string
	execID          string
	execType        string
	ordStatus       string
	lastQty         decimal.Decimal
	lastPx          decimal.Decimal
	exchangeOrderID string
	side            string
	symbol          string
	msgSeqNum       int
}

func parseExecutionReport(msg *fixcodec.Message) parsedReport {
	get := func(tag fixproto.Tag) string {
		v, _ := msg.Get(tag)
		return v
	}
	lastQty, _ := decimal.NewFromString(get(fixproto.TagLastShares))
	lastPx, _ := decimal.NewFromString(get(fixproto.TagLastPx))
	seqNum, _ := msg.GetInt(fixproto.TagMsgSeqNum)
	return parsedReport{
		clOrdID:         get(fixproto.TagClOrdID),
		execID:          get(fixproto.TagExecID),
		execType:        get(fixproto.TagExecType),
		ordStatus:       get(fixproto.TagOrdStatus),
		lastQty:         lastQty,
		lastPx:          lastPx,
		exchangeOrderID: get(fixproto.TagOrderID),
		side:            get(fixproto.TagSide),
		symbol:          get(fixproto.TagSymbol),
		msgSeqNum:       seqNum,
	}
}

// Handle processes one inbound ExecutionReport per spec.md §4.3.
func (h *Handler) Handle(msg *fixcodec.Message) error {
	p := parseExecutionReport(msg)
	now := time.Now()

	// Reserve (session_id, exec_id) before any side effect: every inbound
	// report for an exec_id already seen is a duplicate — ack, cancel, or
	// fill alike — and is skipped here regardless of whether it carries a
	// fill, per spec.md §4.3 step 2.
	if !h.store.ReserveExecID(p.execID) {
		atomic.AddInt64(&h.duplicateFillsSkipped, 1)
		return nil
	}

	order := h.store.GetOrder(p.clOrdID)
	if order == nil {
		// Unknown order: record an error entry naming the client_order_id
		// and exec_id; there is nothing to transition or fill against.
		return h.auditLog.Append(audit.EntryError, map[string]string{
			"reason":          "exec report for unknown client_order_id",
			"client_order_id": p.clOrdID,
			"exec_id":         p.execID,
		})
	}

	if internalStatus, ok := fixproto.OrdStatusToInternal(p.ordStatus); ok {
		order.Touch(now, model.OrderStatus(internalStatus))
	}
	if p.exchangeOrderID != "" {
		order.ExchangeOrderID = p.exchangeOrderID
	}
	if p.msgSeqNum > 0 {
		order.MsgSeqNum = &p.msgSeqNum
	}
	execEntry := model.ExecutionReport{
		ExecID:          p.execID,
		ClientOrderID:   p.clOrdID,
		ExchangeOrderID: p.exchangeOrderID,
		ExecType:        model.ExecType(fixproto.ExecTypeToInternal(p.execType)),
		OrdStatus:       order.Status,
		Symbol:          p.symbol,
		Side:            model.Side(sideToInternal(p.side)),
		LastQty:         p.lastQty,
		LastPx:          p.lastPx,
		MsgSeqNum:       p.msgSeqNum,
		ReceivedAt:      now,
	}
	order.ExecReportTrail = append(order.ExecReportTrail, execEntry)

	// Audit the order transition synchronously before it is exposed
	// elsewhere, per spec.md §5's ordering guarantee.
	if err := h.auditLog.Append(audit.EntryOrderEvent, map[string]interface{}{
		"client_order_id":   order.ClientOrderID,
		"exchange_order_id": order.ExchangeOrderID,
		"status":            order.Status,
		"exec_id":           p.execID,
	}); err != nil {
		return err
	}
	h.store.UpdateOrder(order)

	if p.lastQty.IsPositive() {
		fill := &model.Fill{
			FillID:          model.FillID(order.ClientOrderID, p.execID),
			ExecID:          p.execID,
			SessionID:       h.sessionID,
			OrderID:         order.ClientOrderID,
			ExchangeOrderID: order.ExchangeOrderID,
			Symbol:          p.symbol,
			Side:            model.Side(sideToInternal(p.side)),
			Quantity:        p.lastQty,
			Price:           p.lastPx,
			Timestamp:       now,
		}
		stored := h.store.AddFill(fill)
		if stored != nil {
			if err := h.auditLog.Append(audit.EntryFillEvent, map[string]interface{}{
				"fill_id":  stored.FillID,
				"exec_id":  stored.ExecID,
				"order_id": stored.OrderID,
				"quantity": stored.Quantity.String(),
				"price":    stored.Price.String(),
			}); err != nil {
				return err
			}
			if h.ohlc != nil {
				h.ohlc.AddTrade(p.symbol, p.lastPx, p.lastQty, now.UnixMilli())
			}
		}
	}

	return nil
}

func sideToInternal(wire string) string {
	switch wire {
	case fixproto.SideBuy:
		return string(model.SideBuy)
	case fixproto.SideSell:
		return string(model.SideSell)
	default:
		return ""
	}
}
