package fixsession

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/dundas/truex-mm/internal/fixcodec"
	"github.com/dundas/truex-mm/internal/fixproto"
)

// readLoop owns the socket read side: a dedicated I/O task per spec.md §5,
// handing decoded messages to the single consumer handleInbound.
func (s *Session) readLoop() {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			msgs, consumed := fixcodec.SplitMessages(buf)
			buf = append([]byte(nil), buf[consumed:]...)
			for _, raw := range msgs {
				s.handleRaw(raw)
			}
		}
		if err != nil {
			if err != io.EOF && s.logger != nil {
				s.logger.Warn("fix read error", zap.Error(err))
			}
			s.forceDisconnect()
			return
		}
	}
}

func (s *Session) handleRaw(raw []byte) {
	msg, err := fixcodec.Decode(raw)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("fix decode error, emitting session reject", zap.Error(err))
		}
		s.mu.Lock()
		seq := s.outSeq
		s.mu.Unlock()
		reject := fixcodec.BuildReject(s.cfg.SenderCompID, s.cfg.TargetCompID, seq, time.Now(), 0, 0,
			fixproto.SessionRejectReasonIncorrectDataFormat, err.Error())
		_ = s.writeAndAdvance(reject)
		return
	}
	s.handleInbound(msg)
}

// handleInbound applies the sequence-number discipline from spec.md §4.1,
// then dispatches admin messages internally and forwards application
// messages to onMessage.
func (s *Session) handleInbound(msg *fixcodec.Message) {
	recvSeq, hasSeq := msg.GetInt(fixproto.TagMsgSeqNum)
	msgType := msg.MsgType()
	possDup, _ := msg.Get(fixproto.TagPossDupFlag)

	s.mu.Lock()
	s.lastInbound = time.Now()
	expected := s.inSeq
	s.mu.Unlock()

	if hasSeq {
		switch {
		case recvSeq == expected:
			s.mu.Lock()
			s.inSeq++
			s.mu.Unlock()
		case recvSeq > expected:
			s.mu.Lock()
			seq := s.outSeq
			s.mu.Unlock()
			resend := fixcodec.BuildResendRequest(s.cfg.SenderCompID, s.cfg.TargetCompID, seq, time.Now(), expected, recvSeq-1)
			_ = s.writeAndAdvance(resend)
			// The gap-filling resend will carry the messages in
			// [expected, recvSeq-1]; this message is still processed
			// since many venues PossDup-replay it again during resend.
			s.mu.Lock()
			s.inSeq = recvSeq + 1
			s.mu.Unlock()
		case recvSeq < expected && possDup != "Y":
			if s.logger != nil {
				s.logger.Error("seq lower than expected and not PossDup, disconnecting",
					zap.Int("recvSeq", recvSeq), zap.Int("expected", expected))
			}
			s.forceDisconnect()
			return
		default:
			// recvSeq < expected and PossDup=Y: a resend replay, already seen. Skip further processing.
			return
		}
	}

	switch msgType {
	case fixproto.MsgTypeLogon:
		s.mu.Lock()
		if s.state == AwaitingLogon {
			s.setState(LoggedOn)
			s.lastInbound = time.Now()
		}
		s.mu.Unlock()
	case fixproto.MsgTypeHeartbeat:
		s.mu.Lock()
		testReqID, _ := msg.Get(fixproto.TagTestReqID)
		if s.state == TestPending && (s.testReqID == "" || testReqID == s.testReqID) {
			s.setState(LoggedOn)
			s.testReqID = ""
		}
		if s.firstHeartbeatCh != nil {
			select {
			case s.firstHeartbeatCh <- struct{}{}:
			default:
			}
		}
		s.mu.Unlock()
	case fixproto.MsgTypeTestRequest:
		testReqID, _ := msg.Get(fixproto.TagTestReqID)
		s.mu.Lock()
		seq := s.outSeq
		s.mu.Unlock()
		hb := fixcodec.BuildHeartbeat(s.cfg.SenderCompID, s.cfg.TargetCompID, seq, time.Now(), testReqID)
		_ = s.writeAndAdvance(hb)
	case fixproto.MsgTypeResendRequest:
		beginSeq, _ := msg.GetInt(fixproto.TagBeginSeqNo)
		s.mu.Lock()
		seq := s.outSeq
		s.mu.Unlock()
		// No persisted outbound message store in this simplified engine:
		// respond with a gap fill covering the full requested range so
		// the counterparty's sequence stays consistent, rather than
		// silently failing to answer ResendRequest.
		reset := fixcodec.NewMessage()
		reset.Set(fixproto.TagMsgType, fixproto.MsgTypeSequenceReset)
		reset.Set(fixproto.TagSenderCompID, s.cfg.SenderCompID)
		reset.Set(fixproto.TagTargetCompID, s.cfg.TargetCompID)
		reset.Set(fixproto.TagMsgSeqNum, itoaSmall(beginSeq))
		reset.Set(fixproto.TagGapFillFlag, "Y")
		// writeAndAdvance below consumes seq, so the next message goes out as seq+1.
		reset.Set(fixproto.TagNewSeqNo, itoaSmall(seq+1))
		reset.Set(fixproto.TagSendingTime, time.Now().UTC().Format(fixproto.FixTimeFormat))
		_ = s.writeAndAdvance(reset)
	case fixproto.MsgTypeSequenceReset:
		if newSeq, ok := msg.GetInt(fixproto.TagNewSeqNo); ok {
			s.mu.Lock()
			if newSeq > s.inSeq {
				s.inSeq = newSeq
			}
			s.mu.Unlock()
		}
	case fixproto.MsgTypeLogout:
		s.forceDisconnect()
	default:
		if s.onMessage != nil {
			s.onMessage(msg)
		}
	}
}
