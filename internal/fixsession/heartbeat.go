package fixsession

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dundas/truex-mm/internal/fixcodec"
)

// supervise runs the heartbeat/test-request state machine described in
// spec.md §4.1 for as long as the session stays LoggedOn/TestPending: if no
// inbound arrives within HeartBtInt+jitter, send a TestRequest; if no
// matching Heartbeat arrives within TestRequestGrace, declare the session
// stale and disconnect.
func (s *Session) supervise(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartBtInt / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closedChan():
			return
		case <-ticker.C:
			s.mu.Lock()
			state := s.state
			sinceInbound := time.Since(s.lastInbound)
			testReqID := s.testReqID
			s.mu.Unlock()

			switch state {
			case LoggedOn:
				if sinceInbound > s.cfg.HeartBtInt+s.cfg.HeartbeatJitter {
					id := newTestReqID()
					s.mu.Lock()
					s.testReqID = id
					s.setState(TestPending)
					seq := s.outSeq
					s.mu.Unlock()
					tr := fixcodec.BuildTestRequest(s.cfg.SenderCompID, s.cfg.TargetCompID, seq, time.Now(), id)
					_ = s.writeAndAdvance(tr)
				}
			case TestPending:
				if sinceInbound > s.cfg.HeartBtInt+s.cfg.HeartbeatJitter+s.cfg.TestRequestGrace {
					if s.logger != nil {
						s.logger.Warn("heartbeat starvation, declaring session stale", zap.String("testReqID", testReqID))
					}
					s.forceDisconnect()
					return
				}
			}
		}
	}
}

func (s *Session) closedChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return s.closed
}

var testReqCounter int64

func newTestReqID() string {
	testReqCounter++
	return "TR" + itoaSmall(int(testReqCounter)) + "-" + itoaSmall(int(time.Now().UnixNano()%1_000_000))
}

// Run connects, supervises heartbeats, and on disconnect reconnects with
// exponential backoff capped at cfg.MaxBackoff, per spec.md §4.1's failure
// semantics. It returns only when ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	backoff := s.cfg.MinBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.Connect(ctx); err != nil {
			if s.logger != nil {
				s.logger.Warn("fix connect failed, backing off", zap.Error(err), zap.Duration("backoff", backoff))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.cfg.MaxBackoff {
				backoff = s.cfg.MaxBackoff
			}
			continue
		}
		backoff = s.cfg.MinBackoff

		superviseCtx, cancel := context.WithCancel(ctx)
		s.supervise(superviseCtx)
		cancel()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// FixProtoBeginString exposes the configured begin string for callers
// constructing messages outside Send (e.g. the QuoteEngine's dispatcher).
func (s *Session) FixProtoBeginString() string {
	return s.cfg.BeginString
}
