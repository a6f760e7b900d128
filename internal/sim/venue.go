// Package sim implements the TwoSidedSim harness SPEC_FULL.md's supplemented
// features section names: an in-process fake destination-venue FIX
// counterparty and a fake reference-feed publisher, wired against a real
// Orchestrator for end-to-end exercise of spec.md §8's boundary scenarios.
// The venue half below extends fixsession/session_test.go's minimal
// fakeCounterparty (Logon/Heartbeat only) with order acceptance and fills.
package sim

import (
	"net"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dundas/truex-mm/internal/fixcodec"
	"github.com/dundas/truex-mm/internal/fixproto"
)

// FakeVenue drives the acceptor side of a net.Pipe as a destination venue:
// it logs on, answers TestRequests with a Heartbeat, and on NewOrderSingle
// assigns an exchange order ID and (unless AutoAck is false) immediately
// acknowledges with an ExecutionReport(ExecType=New). Tests can drive
// further fills through Fill, keyed by the client order ID the strategy
// assigned; there is no method for sending a reject.
type FakeVenue struct {
	SenderCompID string // this venue's own CompID, e.g. "VENUE"
	TargetCompID string // the strategy's CompID, e.g. "TRUEX"
	AutoAck      bool

	mu          sync.Mutex
	conn        net.Conn
	seq         int
	exchSeq     int64
	exchByClOrd map[string]string
}

// NewFakeVenue returns a venue ready to Run against conn (the server half of
// a net.Pipe whose client half is handed to fixsession as its Dialer).
func NewFakeVenue(senderCompID, targetCompID string, conn net.Conn) *FakeVenue {
	return &FakeVenue{
		SenderCompID: senderCompID,
		TargetCompID: targetCompID,
		AutoAck:      true,
		conn:         conn,
		seq:          1,
		exchByClOrd:  make(map[string]string),
	}
}

// Run drives the read loop until conn is closed. Call it in a goroutine.
func (v *FakeVenue) Run() {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := v.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			msgs, consumed := fixcodec.SplitMessages(buf)
			buf = append([]byte(nil), buf[consumed:]...)
			for _, raw := range msgs {
				msg, decodeErr := fixcodec.Decode(raw)
				if decodeErr != nil {
					continue
				}
				v.handle(msg)
			}
		}
		if err != nil {
			return
		}
	}
}

func (v *FakeVenue) handle(msg *fixcodec.Message) {
	switch msg.MsgType() {
	case fixproto.MsgTypeLogon:
		v.sendLogon()
	case fixproto.MsgTypeTestRequest:
		testReqID, _ := msg.Get(fixproto.TagTestReqID)
		v.send(fixcodec.BuildHeartbeat(v.SenderCompID, v.TargetCompID, v.nextSeq(), time.Now(), testReqID))
	case fixproto.MsgTypeNewOrderSingle:
		v.handleNewOrder(msg)
	case fixproto.MsgTypeOrderCancelRequest:
		v.handleCancel(msg)
	}
}

func (v *FakeVenue) sendLogon() {
	v.send(fixcodec.BuildLogon(fixcodec.LogonParams{
		SenderCompID: v.SenderCompID, TargetCompID: v.TargetCompID,
		SeqNum: v.nextSeq(), HeartBtInt: "30", Now: time.Now(),
	}))
	v.send(fixcodec.BuildHeartbeat(v.SenderCompID, v.TargetCompID, v.nextSeq(), time.Now(), ""))
}

func (v *FakeVenue) handleNewOrder(msg *fixcodec.Message) {
	clOrdID, _ := msg.Get(fixproto.TagClOrdID)
	symbol, _ := msg.Get(fixproto.TagSymbol)
	side, _ := msg.Get(fixproto.TagSide)
	qty, _ := msg.Get(fixproto.TagOrderQty)
	price, _ := msg.Get(fixproto.TagPrice)

	v.mu.Lock()
	v.exchSeq++
	exchangeID := "X" + itoa(v.exchSeq)
	v.exchByClOrd[clOrdID] = exchangeID
	v.mu.Unlock()

	if !v.AutoAck {
		return
	}
	v.sendExecReport(execReportParams{
		ClOrdID:    clOrdID,
		ExchangeID: exchangeID,
		Symbol:     symbol,
		Side:       side,
		OrdStatus:  fixproto.OrdStatusNew,
		ExecType:   fixproto.ExecTypeNew,
		LastQty:    decimal.Zero,
		LastPx:     decimal.Zero,
		OrderQty:   qty,
		Price:      price,
	})
}

func (v *FakeVenue) handleCancel(msg *fixcodec.Message) {
	clOrdID, _ := msg.Get(fixproto.TagClOrdID)
	origClOrdID, _ := msg.Get(fixproto.TagOrigClOrdID)
	symbol, _ := msg.Get(fixproto.TagSymbol)

	v.mu.Lock()
	exchangeID := v.exchByClOrd[origClOrdID]
	v.mu.Unlock()

	v.sendExecReport(execReportParams{
		ClOrdID:    clOrdID,
		ExchangeID: exchangeID,
		Symbol:     symbol,
		OrdStatus:  fixproto.OrdStatusCanceled,
		ExecType:   fixproto.ExecTypeCanceled,
		LastQty:    decimal.Zero,
		LastPx:     decimal.Zero,
	})
}

// Fill sends an ExecutionReport for a previously-acked order identified by
// its original client order ID, with the given last-fill quantity/price.
// ordStatus should be fixproto.OrdStatusPartiallyFilled or OrdStatusFilled.
func (v *FakeVenue) Fill(clOrdID, execID string, lastQty, lastPx decimal.Decimal, ordStatus string) {
	v.mu.Lock()
	exchangeID := v.exchByClOrd[clOrdID]
	v.mu.Unlock()

	v.sendExecReport(execReportParams{
		ClOrdID:    clOrdID,
		ExecID:     execID,
		ExchangeID: exchangeID,
		OrdStatus:  ordStatus,
		ExecType:   fixproto.ExecTypeFilled,
		LastQty:    lastQty,
		LastPx:     lastPx,
	})
}

type execReportParams struct {
	ClOrdID    string
	ExecID     string
	ExchangeID string
	Symbol     string
	Side       string
	OrdStatus  string
	ExecType   string
	LastQty    decimal.Decimal
	LastPx     decimal.Decimal
	OrderQty   string
	Price      string
}

func (v *FakeVenue) sendExecReport(p execReportParams) {
	execID := p.ExecID
	if execID == "" {
		v.mu.Lock()
		v.exchSeq++
		execID = "E" + itoa(v.exchSeq)
		v.mu.Unlock()
	}

	m := fixcodec.NewMessage()
	now := time.Now()
	m.Set(fixproto.TagMsgType, fixproto.MsgTypeExecutionReport)
	m.Set(fixproto.TagSenderCompID, v.SenderCompID)
	m.Set(fixproto.TagTargetCompID, v.TargetCompID)
	m.Set(fixproto.TagMsgSeqNum, itoa(int64(v.nextSeq())))
	m.Set(fixproto.TagSendingTime, now.UTC().Format(fixproto.FixTimeFormat))
	m.Set(fixproto.TagClOrdID, p.ClOrdID)
	m.Set(fixproto.TagOrderID, p.ExchangeID)
	m.Set(fixproto.TagExecID, execID)
	m.Set(fixproto.TagExecType, p.ExecType)
	m.Set(fixproto.TagOrdStatus, p.OrdStatus)
	m.SetIfNotEmpty(fixproto.TagSymbol, p.Symbol)
	m.SetIfNotEmpty(fixproto.TagSide, p.Side)
	m.SetIfNotEmpty(fixproto.TagOrderQty, p.OrderQty)
	m.SetIfNotEmpty(fixproto.TagPrice, p.Price)
	m.Set(fixproto.TagLastShares, p.LastQty.String())
	m.Set(fixproto.TagLastPx, p.LastPx.String())
	v.send(m)
}

func (v *FakeVenue) send(m *fixcodec.Message) {
	raw := fixcodec.Encode(m, fixproto.FixBeginString)
	v.conn.Write(raw)
}

func (v *FakeVenue) nextSeq() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	return v.seq - 1
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
