package fixsession

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dundas/truex-mm/internal/fixcodec"
	"github.com/dundas/truex-mm/internal/fixproto"
)

// fakeCounterparty drives the other half of a net.Pipe as a minimal FIX
// acceptor: replies to Logon with Logon, and to TestRequest with Heartbeat.
func fakeCounterparty(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	seq := 1
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			msgs, consumed := fixcodec.SplitMessages(buf)
			buf = append([]byte(nil), buf[consumed:]...)
			for _, raw := range msgs {
				m, decodeErr := fixcodec.Decode(raw)
				if decodeErr != nil {
					continue
				}
				switch m.MsgType() {
				case fixproto.MsgTypeLogon:
					reply := fixcodec.BuildLogon(fixcodec.LogonParams{
						SenderCompID: "VENUE", TargetCompID: "TRUEX", SeqNum: seq, HeartBtInt: "30", Now: time.Now(),
					})
					conn.Write(fixcodec.Encode(reply, fixproto.FixBeginString))
					seq++
					hb := fixcodec.BuildHeartbeat("VENUE", "TRUEX", seq, time.Now(), "")
					conn.Write(fixcodec.Encode(hb, fixproto.FixBeginString))
					seq++
				case fixproto.MsgTypeTestRequest:
					testReqID, _ := m.Get(fixproto.TagTestReqID)
					hb := fixcodec.BuildHeartbeat("VENUE", "TRUEX", seq, time.Now(), testReqID)
					conn.Write(fixcodec.Encode(hb, fixproto.FixBeginString))
					seq++
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func TestConnectCompletesLogonAndHeartbeat(t *testing.T) {
	client, server := net.Pipe()
	go fakeCounterparty(t, server)

	sess := New(Config{
		SenderCompID: "TRUEX",
		TargetCompID: "VENUE",
		HeartBtInt:   200 * time.Millisecond,
	}, func(ctx context.Context) (net.Conn, error) {
		return client, nil
	}, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if sess.State() != LoggedOn {
		t.Fatalf("state = %v, want LoggedOn", sess.State())
	}
	if sess.OutSeq() != 2 {
		t.Errorf("OutSeq = %d, want 2 (one Logon sent)", sess.OutSeq())
	}
}

func TestSendFailsWhenNotConnected(t *testing.T) {
	sess := New(Config{SenderCompID: "TRUEX", TargetCompID: "VENUE"}, nil, nil, nil, nil)
	err := sess.Send(func(seq int, now time.Time) *fixcodec.Message {
		return fixcodec.BuildHeartbeat("TRUEX", "VENUE", seq, now, "")
	})
	if err == nil {
		t.Fatal("expected NotConnected error")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	sess := New(Config{SenderCompID: "TRUEX", TargetCompID: "VENUE"}, nil, nil, nil, nil)
	if err := sess.Disconnect("test"); err != nil {
		t.Fatalf("first Disconnect: %v", err)
	}
	if err := sess.Disconnect("test"); err != nil {
		t.Fatalf("second Disconnect (idempotent): %v", err)
	}
}

func TestOutboundSeqAdvancesByOneOnSuccessfulWrite(t *testing.T) {
	client, server := net.Pipe()
	go fakeCounterparty(t, server)

	sess := New(Config{
		SenderCompID: "TRUEX",
		TargetCompID: "VENUE",
		HeartBtInt:   200 * time.Millisecond,
	}, func(ctx context.Context) (net.Conn, error) {
		return client, nil
	}, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	before := sess.OutSeq()
	err := sess.Send(func(seq int, now time.Time) *fixcodec.Message {
		if seq != before {
			t.Errorf("build called with seq=%d, want %d", seq, before)
		}
		return fixcodec.BuildHeartbeat("TRUEX", "VENUE", seq, now, "")
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if sess.OutSeq() != before+1 {
		t.Errorf("OutSeq after send = %d, want %d", sess.OutSeq(), before+1)
	}
}
