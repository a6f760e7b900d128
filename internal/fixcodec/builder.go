package fixcodec

import (
	"time"

	"github.com/dundas/truex-mm/internal/fixproto"
)

// buildHeader sets the common header fields shared by every outbound
// message, mirroring gurre-prime-fix-md-go's buildHeader(header, msgType,
// sender, target) helper in builder/messages.go.
func buildHeader(m *Message, msgType, senderCompID, targetCompID string, seqNum int, sendingTime time.Time) *Message {
	m.Set(fixproto.TagMsgType, msgType)
	m.Set(fixproto.TagSenderCompID, senderCompID)
	m.Set(fixproto.TagTargetCompID, targetCompID)
	m.Set(fixproto.TagMsgSeqNum, itoa(seqNum))
	m.Set(fixproto.TagSendingTime, sendingTime.UTC().Format(fixproto.FixTimeFormat))
	return m
}

// LogonParams carries the fields BuildLogon needs; HeartBtInt is carried as
// a string so callers can pass the venue's configured interval directly.
type LogonParams struct {
	SenderCompID    string
	TargetCompID    string
	SeqNum          int
	HeartBtInt      string
	Username        string
	Password        string
	Signature       string // base64 HMAC, empty if the venue doesn't require one
	AccessKey       string
	ResetSeqNumFlag bool
	Now             time.Time
}

// BuildLogon constructs a 35=A message, optionally carrying an HMAC
// signature per spec.md §4.1's auth note. The signature always goes in
// TagHmacSignature and the access key in TagAccessKey; LogonParams supplies
// only their values, and each tag is omitted when its value is empty.
func BuildLogon(p LogonParams) *Message {
	m := NewMessage()
	buildHeader(m, fixproto.MsgTypeLogon, p.SenderCompID, p.TargetCompID, p.SeqNum, p.Now)
	m.Set(fixproto.TagEncryptMethod, fixproto.EncryptMethodNone)
	m.Set(fixproto.TagHeartBtInt, p.HeartBtInt)
	m.SetIfNotEmpty(fixproto.TagUsername, p.Username)
	m.SetIfNotEmpty(fixproto.TagPassword, p.Password)
	m.SetIfNotEmpty(fixproto.TagHmacSignature, p.Signature)
	m.SetIfNotEmpty(fixproto.TagAccessKey, p.AccessKey)
	if p.ResetSeqNumFlag {
		m.Set(fixproto.TagResetSeqNumFlag, "Y")
	}
	return m
}

// BuildLogout constructs a 35=5 message.
func BuildLogout(senderCompID, targetCompID string, seqNum int, now time.Time, text string) *Message {
	m := NewMessage()
	buildHeader(m, fixproto.MsgTypeLogout, senderCompID, targetCompID, seqNum, now)
	m.SetIfNotEmpty(fixproto.TagText, text)
	return m
}

// BuildHeartbeat constructs a 35=0 message, echoing TestReqID if answering a TestRequest.
func BuildHeartbeat(senderCompID, targetCompID string, seqNum int, now time.Time, testReqID string) *Message {
	m := NewMessage()
	buildHeader(m, fixproto.MsgTypeHeartbeat, senderCompID, targetCompID, seqNum, now)
	m.SetIfNotEmpty(fixproto.TagTestReqID, testReqID)
	return m
}

// BuildTestRequest constructs a 35=1 message with a unique TestReqID.
func BuildTestRequest(senderCompID, targetCompID string, seqNum int, now time.Time, testReqID string) *Message {
	m := NewMessage()
	buildHeader(m, fixproto.MsgTypeTestRequest, senderCompID, targetCompID, seqNum, now)
	m.Set(fixproto.TagTestReqID, testReqID)
	return m
}

// BuildResendRequest constructs a 35=2 message requesting [beginSeqNo, endSeqNo].
func BuildResendRequest(senderCompID, targetCompID string, seqNum int, now time.Time, beginSeqNo, endSeqNo int) *Message {
	m := NewMessage()
	buildHeader(m, fixproto.MsgTypeResendRequest, senderCompID, targetCompID, seqNum, now)
	m.Set(fixproto.TagBeginSeqNo, itoa(beginSeqNo))
	m.Set(fixproto.TagEndSeqNo, itoa(endSeqNo))
	return m
}

// BuildReject constructs a 35=3 session-level reject referencing the
// offending seq/tag, per spec.md §4.1's parse-error failure semantics.
func BuildReject(senderCompID, targetCompID string, seqNum int, now time.Time, refSeqNum int, refTagID fixproto.Tag, reason, text string) *Message {
	m := NewMessage()
	buildHeader(m, fixproto.MsgTypeReject, senderCompID, targetCompID, seqNum, now)
	m.Set(fixproto.TagRefSeqNum, itoa(refSeqNum))
	if refTagID != 0 {
		m.Set(fixproto.TagRefTagID, itoa(int(refTagID)))
	}
	m.SetIfNotEmpty(fixproto.TagSessionRejectReason, reason)
	m.SetIfNotEmpty(fixproto.TagText, text)
	return m
}

// NewOrderParams carries the fields a NewOrderSingle (35=D) needs, covering
// the required tag set from spec.md §6: 11/55/54/38/40/44/59.
type NewOrderParams struct {
	SenderCompID string
	TargetCompID string
	SeqNum       int
	ClOrdID      string
	Symbol       string
	Side         string // fixproto.SideBuy | SideSell
	OrderQty     string
	OrdType      string // fixproto.OrdTypeLimit | OrdTypeMarket
	Price        string // required if OrdType == limit
	TimeInForce  string
	Account      string
	Now          time.Time
}

// BuildNewOrderSingle constructs a 35=D message.
func BuildNewOrderSingle(p NewOrderParams) *Message {
	m := NewMessage()
	buildHeader(m, fixproto.MsgTypeNewOrderSingle, p.SenderCompID, p.TargetCompID, p.SeqNum, p.Now)
	m.Set(fixproto.TagClOrdID, p.ClOrdID)
	m.Set(fixproto.TagSymbol, p.Symbol)
	m.Set(fixproto.TagSide, p.Side)
	m.Set(fixproto.TagOrderQty, p.OrderQty)
	m.Set(fixproto.TagOrdType, p.OrdType)
	m.SetIfNotEmpty(fixproto.TagPrice, p.Price)
	m.SetIfNotEmpty(fixproto.TagTimeInForce, p.TimeInForce)
	m.SetIfNotEmpty(fixproto.TagAccount, p.Account)
	m.Set(fixproto.TagTransactTime, p.Now.UTC().Format(fixproto.FixTimeFormat))
	return m
}

// CancelOrderParams carries the fields an OrderCancelRequest (35=F) needs.
type CancelOrderParams struct {
	SenderCompID    string
	TargetCompID    string
	SeqNum          int
	ClOrdID         string // new ClOrdID for the cancel request itself
	OrigClOrdID     string // tag 41, the ClOrdID being cancelled
	Symbol          string
	Side            string
	OrderQty        string
	Now             time.Time
}

// BuildOrderCancelRequest constructs a 35=F message.
func BuildOrderCancelRequest(p CancelOrderParams) *Message {
	m := NewMessage()
	buildHeader(m, fixproto.MsgTypeOrderCancelRequest, p.SenderCompID, p.TargetCompID, p.SeqNum, p.Now)
	m.Set(fixproto.TagClOrdID, p.ClOrdID)
	m.Set(fixproto.TagOrigClOrdID, p.OrigClOrdID)
	m.Set(fixproto.TagSymbol, p.Symbol)
	m.Set(fixproto.TagSide, p.Side)
	m.SetIfNotEmpty(fixproto.TagOrderQty, p.OrderQty)
	m.Set(fixproto.TagTransactTime, p.Now.UTC().Format(fixproto.FixTimeFormat))
	return m
}

func itoa(n int) string {
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
