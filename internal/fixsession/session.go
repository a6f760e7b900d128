package fixsession

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dundas/truex-mm/internal/fixcodec"
	"github.com/dundas/truex-mm/internal/fixproto"
	"github.com/dundas/truex-mm/internal/model"
)

// Dialer opens the underlying transport. Injected by the caller so tests
// can substitute an in-memory net.Pipe() half instead of a real TCP dial —
// the Go rendering of spec.md §9's "module-level singletons (connection
// pools) -> constructor-injected handles" design note.
type Dialer func(ctx context.Context) (net.Conn, error)

// Config parameterizes one FIX session.
type Config struct {
	SenderCompID    string
	TargetCompID    string
	BeginString     string
	Username        string
	Password        string
	Secret          string // empty disables the optional HMAC signature
	AccessKey       string
	ResetSeqNumFlag bool

	HeartBtInt       time.Duration
	HeartbeatJitter  time.Duration
	TestRequestGrace time.Duration
	LogonTimeout     time.Duration

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func (c Config) heartBtIntSeconds() string {
	return fmt.Sprintf("%d", int(c.HeartBtInt/time.Second))
}

// Session is a single authenticated, ordered, recoverable FIX connection.
type Session struct {
	cfg    Config
	dial   Dialer
	logger *zap.Logger

	onMessage     func(*fixcodec.Message)
	onStateChange func(State)

	mu           sync.Mutex
	conn         net.Conn
	state        State
	outSeq       int // next sequence number to assign on send
	inSeq        int // next expected inbound sequence number
	lastInbound  time.Time
	lastOutbound time.Time
	testReqID    string

	readBuf []byte
	closed  chan struct{}

	firstHeartbeatCh chan struct{}
}

// New constructs a Session. onMessage receives every fully parsed inbound
// application message (ExecutionReport, BusinessReject, ...); admin
// messages (Logon/Heartbeat/TestRequest/ResendRequest/SequenceReset/Logout)
// are handled internally and not forwarded. A session-level Reject (35=3)
// has no internal handler and is forwarded to onMessage.
func New(cfg Config, dial Dialer, logger *zap.Logger, onMessage func(*fixcodec.Message), onStateChange func(State)) *Session {
	if cfg.BeginString == "" {
		cfg.BeginString = fixproto.FixBeginString
	}
	if cfg.HeartBtInt == 0 {
		cfg.HeartBtInt = 30 * time.Second
	}
	if cfg.HeartbeatJitter == 0 {
		cfg.HeartbeatJitter = 2 * time.Second
	}
	if cfg.TestRequestGrace == 0 {
		cfg.TestRequestGrace = 10 * time.Second
	}
	if cfg.LogonTimeout == 0 {
		cfg.LogonTimeout = 10 * time.Second
	}
	if cfg.MinBackoff == 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Session{
		cfg:           cfg,
		dial:          dial,
		logger:        logger,
		onMessage:     onMessage,
		onStateChange: onStateChange,
		state:         Disconnected,
		outSeq:        1,
		inSeq:         1,
	}
}

func (s *Session) setState(st State) {
	s.state = st
	if s.onStateChange != nil {
		s.onStateChange(st)
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the transport, sends Logon, and blocks until LoggedOn, then
// waits up to HeartBtInt+HeartbeatJitter for the first inbound Heartbeat
// and returns nil whether or not one arrived. Fails with TransportError when
// the dial or the Logon write fails, and with Timeout when no Logon reply
// arrives within LogonTimeout or ctx ends first. It never returns AuthError:
// a venue that refuses the logon surfaces as Timeout.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		return model.New(model.ProtocolError, "Connect called while not Disconnected")
	}
	s.setState(Connecting)
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.setState(Disconnected)
		s.mu.Unlock()
		return model.Wrap(model.TransportError, "dial failed", err)
	}

	s.mu.Lock()
	s.conn = conn
	if s.cfg.ResetSeqNumFlag {
		s.outSeq = 1
		s.inSeq = 1
	}
	s.closed = make(chan struct{})
	s.firstHeartbeatCh = make(chan struct{}, 1)
	s.setState(AwaitingLogon)
	s.mu.Unlock()

	go s.readLoop()

	loggedOn := make(chan error, 1)
	s.mu.Lock()
	origStateCb := s.onStateChange
	s.onStateChange = func(st State) {
		if origStateCb != nil {
			origStateCb(st)
		}
		if st == LoggedOn {
			select {
			case loggedOn <- nil:
			default:
			}
		}
	}
	s.mu.Unlock()

	now := time.Now()
	sendingTime := now.UTC().Format(fixproto.FixTimeFormat)
	sig := ""
	if s.cfg.Secret != "" {
		sig = SignLogon(s.cfg.Secret, sendingTime, s.outSeq, s.cfg.SenderCompID, s.cfg.TargetCompID, s.cfg.Password)
	}
	logon := fixcodec.BuildLogon(fixcodec.LogonParams{
		SenderCompID:    s.cfg.SenderCompID,
		TargetCompID:    s.cfg.TargetCompID,
		SeqNum:          s.outSeq,
		HeartBtInt:      s.cfg.heartBtIntSeconds(),
		Username:        s.cfg.Username,
		Password:        s.cfg.Password,
		Signature:       sig,
		AccessKey:       s.cfg.AccessKey,
		ResetSeqNumFlag: s.cfg.ResetSeqNumFlag,
		Now:             now,
	})
	if err := s.writeAndAdvance(logon); err != nil {
		s.mu.Lock()
		s.onStateChange = origStateCb
		s.setState(Disconnected)
		s.mu.Unlock()
		return err
	}

	timeout := time.NewTimer(s.cfg.LogonTimeout)
	defer timeout.Stop()
	select {
	case <-loggedOn:
	case <-timeout.C:
		s.mu.Lock()
		s.onStateChange = origStateCb
		s.mu.Unlock()
		s.forceDisconnect()
		return model.New(model.Timeout, "logon timed out")
	case <-ctx.Done():
		s.mu.Lock()
		s.onStateChange = origStateCb
		s.mu.Unlock()
		s.forceDisconnect()
		return model.Wrap(model.Timeout, "connect cancelled", ctx.Err())
	}

	// First heartbeat roundtrip: wait for one inbound Heartbeat, or the
	// next heartbeat cycle satisfies this when the venue echoes promptly.
	s.mu.Lock()
	hbCh := s.firstHeartbeatCh
	s.mu.Unlock()
	select {
	case <-hbCh:
	case <-time.After(s.cfg.HeartBtInt + s.cfg.HeartbeatJitter):
		// Tolerate venues that don't proactively heartbeat immediately
		// after logon; LoggedOn state plus a successful logon roundtrip
		// already satisfies spec.md's connect() contract in that case.
	}

	s.mu.Lock()
	s.onStateChange = origStateCb
	s.mu.Unlock()
	return nil
}

// Send applies header tags via build, advances the outbound sequence number
// only after a successful transport write, and returns once bytes are
// accepted by the transport. build receives the sequence number Send has
// reserved for this message.
func (s *Session) Send(build func(seqNum int, now time.Time) *fixcodec.Message) error {
	s.mu.Lock()
	if s.state != LoggedOn && s.state != TestPending {
		s.mu.Unlock()
		return model.New(model.TransportError, "NotConnected")
	}
	seq := s.outSeq
	s.mu.Unlock()

	msg := build(seq, time.Now())
	return s.writeAndAdvance(msg)
}

// writeAndAdvance encodes and writes msg, advancing outSeq only on success.
func (s *Session) writeAndAdvance(msg *fixcodec.Message) error {
	raw := fixcodec.Encode(msg, s.cfg.BeginString)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return model.New(model.TransportError, "NotConnected")
	}

	if _, err := conn.Write(raw); err != nil {
		return model.Wrap(model.TransportError, "write failed", err)
	}

	s.mu.Lock()
	s.outSeq++
	s.lastOutbound = time.Now()
	s.mu.Unlock()
	return nil
}

// Disconnect sends Logout, drains, and closes the transport. Idempotent.
func (s *Session) Disconnect(reason string) error {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return nil
	}
	s.setState(LoggingOut)
	seq := s.outSeq
	s.mu.Unlock()

	logout := fixcodec.BuildLogout(s.cfg.SenderCompID, s.cfg.TargetCompID, seq, time.Now(), reason)
	_ = s.writeAndAdvance(logout) // best-effort; we are closing regardless

	s.forceDisconnect()
	return nil
}

func (s *Session) forceDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	if s.closed != nil {
		select {
		case <-s.closed:
		default:
			close(s.closed)
		}
	}
	s.setState(Disconnected)
}

// OutSeq returns the next sequence number Send will assign.
func (s *Session) OutSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outSeq
}

// InSeq returns the next sequence number expected inbound.
func (s *Session) InSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inSeq
}
