// Package wsfeed implements the reference-venue feed adapter from spec.md
// §4.8/§6: a WebSocket connection that normalizes inbound JSON frames into
// model.BookSnapshot, model.BookDelta, and model.Trade and hands them to
// callback functions supplied by the caller. Grounded on
// 0xtitan6-polymarket-mm's internal/exchange/ws.go dial/ping/backoff/dispatch
// harness, generalized from Polymarket's book/price_change/trade/order event
// set down to the three normalized shapes spec.md §6 names; the reference
// venue's own wire format is out of scope, so the frames this package
// decodes are already assumed to carry the normalized snapshot/delta/trade
// shape.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dundas/truex-mm/internal/model"
)

const (
	pingInterval     = 30 * time.Second
	readTimeout      = 90 * time.Second
	writeTimeout     = 10 * time.Second
	minBackoff       = time.Second
	maxBackoff       = 30 * time.Second
)

// wireLevel is one {price, size} pair in a snapshot frame.
type wireLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// wireFrame is the envelope every inbound message is peeked at through
// before being unmarshaled into its specific shape.
type wireFrame struct {
	Type string `json:"type"`

	// snapshot
	Symbol string      `json:"symbol"`
	Bids   []wireLevel `json:"bids"`
	Asks   []wireLevel `json:"asks"`

	// delta
	Side  string          `json:"side"`
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`

	// trade
	TS int64 `json:"ts"`
}

// Handlers receives the normalized events. Any nil handler drops that
// event kind silently.
type Handlers struct {
	OnSnapshot func(model.BookSnapshot)
	OnDelta    func(model.BookDelta)
	OnTrade    func(model.Trade)
}

// Feed manages one WebSocket connection to the reference venue, with
// auto-reconnect and exponential backoff.
type Feed struct {
	url      string
	symbols  []string
	handlers Handlers
	logger   *zap.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
}

// New constructs a Feed that subscribes to symbols on connect.
func New(url string, symbols []string, handlers Handlers, logger *zap.Logger) *Feed {
	return &Feed{url: url, symbols: symbols, handlers: handlers, logger: logger}
}

// Run connects and maintains the connection with exponential backoff
// (1s -> 30s max) until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := minBackoff

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("reference feed disconnected, reconnecting",
			zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Close closes the underlying connection, unblocking a pending read.
func (f *Feed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("reference feed connected", zap.String("url", f.url))

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatch(msg)
	}
}

func (f *Feed) subscribe() error {
	return f.writeJSON(struct {
		Op      string   `json:"op"`
		Symbols []string `json:"symbols"`
	}{Op: "subscribe", Symbols: f.symbols})
}

func (f *Feed) dispatch(data []byte) {
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		f.logger.Debug("ignoring non-json reference feed message", zap.ByteString("data", data))
		return
	}

	switch frame.Type {
	case "snapshot":
		if f.handlers.OnSnapshot == nil {
			return
		}
		f.handlers.OnSnapshot(model.BookSnapshot{
			Symbol: frame.Symbol,
			Bids:   toLevels(frame.Bids),
			Asks:   toLevels(frame.Asks),
			TS:     frame.TS,
		})

	case "delta":
		if f.handlers.OnDelta == nil {
			return
		}
		f.handlers.OnDelta(model.BookDelta{
			Symbol: frame.Symbol,
			Side:   model.Side(frame.Side),
			Price:  frame.Price,
			Size:   frame.Size,
			TS:     frame.TS,
		})

	case "trade":
		if f.handlers.OnTrade == nil {
			return
		}
		f.handlers.OnTrade(model.Trade{
			Symbol: frame.Symbol,
			Price:  frame.Price,
			Size:   frame.Size,
			Side:   model.Side(frame.Side),
			TS:     frame.TS,
		})

	default:
		f.logger.Debug("unknown reference feed event type", zap.String("type", frame.Type))
	}
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("reference feed ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (f *Feed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *Feed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}

func toLevels(wire []wireLevel) []model.BookLevel {
	levels := make([]model.BookLevel, len(wire))
	for i, w := range wire {
		levels[i] = model.BookLevel{Price: w.Price, Size: w.Size}
	}
	return levels
}
