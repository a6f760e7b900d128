// Package model defines the domain entities shared across every tier
// of the pipeline: orders, fills, execution reports, candles, and the
// per-symbol tick table. Money fields use decimal.Decimal throughout;
// nothing here uses float64 for a price or a size.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is buy or sell.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType distinguishes limit from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderStatus is a node in the monotone status DAG:
// created -> sent -> open -> {partially_filled, filled, cancelled, rejected}.
type OrderStatus string

const (
	StatusCreated         OrderStatus = "created"
	StatusSent            OrderStatus = "sent"
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
)

// terminalStatuses are write-once: once reached, status may never change again.
var terminalStatuses = map[OrderStatus]bool{
	StatusFilled:    true,
	StatusCancelled: true,
	StatusRejected:  true,
}

// IsTerminal reports whether s is a terminal order status.
func (s OrderStatus) IsTerminal() bool { return terminalStatuses[s] }

// statusRank encodes the monotone DAG as a partial order for transition validation.
var statusRank = map[OrderStatus]int{
	StatusCreated:         0,
	StatusSent:            1,
	StatusOpen:            2,
	StatusPartiallyFilled: 3,
	StatusFilled:          4,
	StatusCancelled:       4,
	StatusRejected:        4,
}

// CanTransition reports whether moving from `from` to `to` respects the
// monotone DAG: created -> sent -> open -> {partially_filled, filled,
// cancelled, rejected}, with terminal statuses write-once.
func CanTransition(from, to OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to {
		return true
	}
	fr, ok1 := statusRank[from]
	tr, ok2 := statusRank[to]
	if !ok1 || !ok2 {
		return false
	}
	if to == StatusPartiallyFilled && from == StatusPartiallyFilled {
		return true
	}
	return tr > fr || (from == StatusOpen && to == StatusPartiallyFilled)
}

// Order is the primary tradeable unit. ClientOrderID is its primary key
// and must be <=18 ASCII characters per the destination venue's wire limit.
type Order struct {
	ClientOrderID   string      `json:"client_order_id"`
	ExchangeOrderID string      `json:"exchange_order_id,omitempty"`
	Symbol          string      `json:"symbol"`
	Side            Side        `json:"side"`
	Type            OrderType   `json:"type"`
	Size            decimal.Decimal `json:"size"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Status          OrderStatus `json:"status"`
	FilledSize      decimal.Decimal `json:"filled_size"`
	AvgFillPrice    *decimal.Decimal `json:"avg_fill_price,omitempty"`
	MsgSeqNum       *int            `json:"msg_seq_num,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	AckAt      *time.Time `json:"ack_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
	TerminalAt *time.Time `json:"terminal_at,omitempty"`

	// Level and the side they were quoted at, for QuoteEngine reconciliation.
	Level int `json:"level,omitempty"`

	RawMessages    []RawFixMessage    `json:"raw_messages,omitempty"`
	ExecReportTrail []ExecutionReport `json:"exec_report_trail,omitempty"`
}

// RawFixMessage preserves an inbound or outbound wire message for audit fidelity.
type RawFixMessage struct {
	Direction string    `json:"direction"` // "in" | "out"
	Raw       string    `json:"raw"`
	At        time.Time `json:"at"`
}

// Clone returns a deep-enough copy of the order for defensive snapshot reads:
// callers must never see or mutate the store's own reference.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	if o.Price != nil {
		p := *o.Price
		cp.Price = &p
	}
	if o.AvgFillPrice != nil {
		p := *o.AvgFillPrice
		cp.AvgFillPrice = &p
	}
	if o.MsgSeqNum != nil {
		n := *o.MsgSeqNum
		cp.MsgSeqNum = &n
	}
	if o.SentAt != nil {
		t := *o.SentAt
		cp.SentAt = &t
	}
	if o.AckAt != nil {
		t := *o.AckAt
		cp.AckAt = &t
	}
	if o.TerminalAt != nil {
		t := *o.TerminalAt
		cp.TerminalAt = &t
	}
	cp.RawMessages = append([]RawFixMessage(nil), o.RawMessages...)
	cp.ExecReportTrail = append([]ExecutionReport(nil), o.ExecReportTrail...)
	return &cp
}

// Touch advances Status if the transition is valid, stamps UpdatedAt and,
// for a terminal status, TerminalAt (write-once). Returns false if the
// transition is invalid (caller should treat this as a ProtocolError).
func (o *Order) Touch(now time.Time, to OrderStatus) bool {
	if !CanTransition(o.Status, to) {
		return false
	}
	if o.Status.IsTerminal() {
		return o.Status == to
	}
	o.Status = to
	o.UpdatedAt = now
	if to.IsTerminal() && o.TerminalAt == nil {
		o.TerminalAt = &now
	}
	return true
}
