package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is a single execution against an order. (SessionID, ExecID) is
// the deduplication key: two fills with equal ExecID in the same
// session are the same event.
type Fill struct {
	FillID          string          `json:"fill_id"`
	ExecID          string          `json:"exec_id"`
	SessionID       string          `json:"session_id"`
	OrderID         string          `json:"order_id"`
	ExchangeOrderID string          `json:"exchange_order_id,omitempty"`
	Symbol          string          `json:"symbol"`
	Side            Side            `json:"side"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Fee             *decimal.Decimal `json:"fee,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// FillID derives the deterministic fill identifier order_id||'-'||exec_id.
func FillID(orderID, execID string) string {
	return orderID + "-" + execID
}

// ExecType mirrors FIX tag 150.
type ExecType string

const (
	ExecTypeNew    ExecType = "new"
	ExecTypePartial ExecType = "partial"
	ExecTypeFill   ExecType = "fill"
	ExecTypeCancel ExecType = "cancel"
	ExecTypeReject ExecType = "reject"
	ExecTypeOther  ExecType = "informational"
)

// ExecutionReport is the raw inbound 35=8 event, keyed by ExecID.
type ExecutionReport struct {
	ExecID          string      `json:"exec_id"`
	ClientOrderID   string      `json:"client_order_id"`
	ExchangeOrderID string      `json:"exchange_order_id,omitempty"`
	ExecType        ExecType    `json:"exec_type"`
	OrdStatus       OrderStatus `json:"ord_status"`
	Symbol          string      `json:"symbol"`
	Side            Side        `json:"side"`

	LastQty decimal.Decimal  `json:"last_qty"`
	LastPx  decimal.Decimal  `json:"last_px"`

	MsgSeqNum int       `json:"msg_seq_num"`
	RawMessage string   `json:"raw_message"`
	ReceivedAt time.Time `json:"received_at"`
}
