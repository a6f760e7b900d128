package sim

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// FakeFeed is an in-process stand-in for the reference venue's WebSocket
// feed (internal/wsfeed's counterparty), serving the same snapshot/delta/
// trade JSON envelope wsfeed.Feed decodes so a TwoSidedSim can drive book
// and OHLC updates through the real wsfeed client code.
type FakeFeed struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewFakeFeed starts an httptest server upgrading every connection to a
// WebSocket and stores the most recent one for Push* calls to write to.
func NewFakeFeed() *FakeFeed {
	f := &FakeFeed{}
	f.server = httptest.NewServer(http.HandlerFunc(f.handleUpgrade))
	return f
}

// URL returns the ws:// URL wsfeed.Feed should dial.
func (f *FakeFeed) URL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

// Close shuts down the underlying HTTP server and any open connection.
func (f *FakeFeed) Close() {
	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.mu.Unlock()
	f.server.Close()
}

func (f *FakeFeed) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	// Drain the subscribe frame (and any further reads) so the peer's
	// writes never block on an unread socket buffer.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type wireLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type wireFrame struct {
	Type   string          `json:"type"`
	Symbol string          `json:"symbol"`
	Bids   []wireLevel     `json:"bids,omitempty"`
	Asks   []wireLevel     `json:"asks,omitempty"`
	Side   string          `json:"side,omitempty"`
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
	TS     int64           `json:"ts"`
}

// PushSnapshot writes a full order book snapshot frame to the connected
// client, blocking briefly until a subscriber has connected.
func (f *FakeFeed) PushSnapshot(symbol string, bids, asks [][2]string, ts int64) error {
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		connected := f.conn != nil
		f.mu.Unlock()
		if connected || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return f.write(wireFrame{
		Type: "snapshot", Symbol: symbol, TS: ts,
		Bids: toWireLevels(bids), Asks: toWireLevels(asks),
	})
}

// PushDelta writes a single price-level update frame.
func (f *FakeFeed) PushDelta(symbol, side, price, size string, ts int64) error {
	return f.write(wireFrame{
		Type: "delta", Symbol: symbol, Side: side, TS: ts,
		Price: decimal.RequireFromString(price), Size: decimal.RequireFromString(size),
	})
}

// PushTrade writes a single executed-trade frame.
func (f *FakeFeed) PushTrade(symbol, side, price, size string, ts int64) error {
	return f.write(wireFrame{
		Type: "trade", Symbol: symbol, Side: side, TS: ts,
		Price: decimal.RequireFromString(price), Size: decimal.RequireFromString(size),
	})
}

func (f *FakeFeed) write(frame wireFrame) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return errNoSubscriber
	}
	return conn.WriteJSON(frame)
}

func toWireLevels(levels [][2]string) []wireLevel {
	out := make([]wireLevel, len(levels))
	for i, l := range levels {
		out[i] = wireLevel{Price: decimal.RequireFromString(l[0]), Size: decimal.RequireFromString(l[1])}
	}
	return out
}

var errNoSubscriber = &simError{"fake feed: no subscriber connected yet"}

type simError struct{ msg string }

func (e *simError) Error() string { return e.msg }
