package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dundas/truex-mm/internal/model"
)

// serveOnce starts a test WebSocket server that writes frames to the
// first client that connects, then holds the connection open briefly.
func serveOnce(t *testing.T, frames []string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeedDispatchesSnapshotDeltaAndTrade(t *testing.T) {
	url := serveOnce(t, []string{
		`{"type":"snapshot","symbol":"BTC-PYUSD","bids":[{"price":"100","size":"1"}],"asks":[{"price":"101","size":"1"}],"ts":1}`,
		`{"type":"delta","symbol":"BTC-PYUSD","side":"buy","price":"99","size":"2","ts":2}`,
		`{"type":"trade","symbol":"BTC-PYUSD","side":"sell","price":"100.5","size":"0.5","ts":3}`,
	})

	var mu sync.Mutex
	var snapshots []model.BookSnapshot
	var deltas []model.BookDelta
	var trades []model.Trade

	f := New(url, []string{"BTC-PYUSD"}, Handlers{
		OnSnapshot: func(s model.BookSnapshot) { mu.Lock(); snapshots = append(snapshots, s); mu.Unlock() },
		OnDelta:    func(d model.BookDelta) { mu.Lock(); deltas = append(deltas, d); mu.Unlock() },
		OnTrade:    func(tr model.Trade) { mu.Lock(); trades = append(trades, tr); mu.Unlock() },
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = f.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(snapshots) != 1 || snapshots[0].Symbol != "BTC-PYUSD" || len(snapshots[0].Bids) != 1 {
		t.Fatalf("got snapshots=%+v, want one BTC-PYUSD snapshot with one bid", snapshots)
	}
	if len(deltas) != 1 || deltas[0].Side != model.SideBuy || deltas[0].Price.String() != "99" {
		t.Fatalf("got deltas=%+v, want one buy-side delta at price 99", deltas)
	}
	if len(trades) != 1 || trades[0].Side != model.SideSell {
		t.Fatalf("got trades=%+v, want one sell-side trade", trades)
	}
}

func TestFeedIgnoresUnknownEventType(t *testing.T) {
	url := serveOnce(t, []string{`{"type":"heartbeat"}`})

	called := false
	f := New(url, nil, Handlers{
		OnSnapshot: func(model.BookSnapshot) { called = true },
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = f.Run(ctx)

	if called {
		t.Fatal("unknown event type must not invoke OnSnapshot")
	}
}
