package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/payback159/raidsplit/pkg/export"
	"github.com/payback159/raidsplit/pkg/logging"
)

func init() {
	logging.InitLogger()
}

func newHubServer(t *testing.T, hub *Hub) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			return
		}
		hub.Serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev map[string]any
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return ev
}

func TestBroadcast_ReachesClient(t *testing.T) {
	hub := NewHub()
	conn := dial(t, newHubServer(t, hub))
	waitFor(t, func() bool { return hub.Clients() == 1 })

	if n := hub.Broadcast(EventToast, map[string]string{"text": "hello"}); n != 1 {
		t.Fatalf("want 1 recipient, got %d", n)
	}
	ev := readEvent(t, conn)
	if ev["type"] != EventToast {
		t.Errorf("unexpected event: %v", ev)
	}
	data := ev["data"].(map[string]any)
	if data["text"] != "hello" {
		t.Errorf("unexpected data: %v", data)
	}
}

func TestInbound_ForwardedToHandler(t *testing.T) {
	hub := NewHub()
	got := make(chan Inbound, 1)
	hub.OnMessage(func(in Inbound) { got <- in })

	conn := dial(t, newHubServer(t, hub))
	if err := conn.WriteJSON(Inbound{Type: InboundKey, Key: "Escape"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case in := <-got:
		if in.Type != InboundKey || in.Key != "Escape" {
			t.Errorf("unexpected inbound: %+v", in)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestClipboard_NoClient(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	if err := hub.WriteRich(ctx, "<table></table>", ""); !errors.Is(err, export.ErrUnsupported) {
		t.Errorf("rich without client: want ErrUnsupported, got %v", err)
	}
	if err := hub.WriteText(ctx, "x"); !errors.Is(err, ErrNoClient) {
		t.Errorf("text without client: want ErrNoClient, got %v", err)
	}
	if err := hub.CopySelection(ctx, "x"); !errors.Is(err, ErrNoClient) {
		t.Errorf("selection without client: want ErrNoClient, got %v", err)
	}
}

func TestClipboard_RichNeedsCapability(t *testing.T) {
	hub := NewHub()
	hello := make(chan struct{}, 1)
	hub.OnMessage(func(in Inbound) {
		if in.Type == InboundHello {
			hello <- struct{}{}
		}
	})
	conn := dial(t, newHubServer(t, hub))
	waitFor(t, func() bool { return hub.Clients() == 1 })

	if err := hub.WriteRich(context.Background(), "<b>x</b>", "x"); !errors.Is(err, export.ErrUnsupported) {
		t.Fatalf("rich before hello: want ErrUnsupported, got %v", err)
	}

	_ = conn.WriteJSON(Inbound{Type: InboundHello, Capabilities: []string{CapabilityRichClipboard}})
	<-hello

	if err := hub.WriteRich(context.Background(), "<b>x</b>", "x"); err != nil {
		t.Fatalf("rich after hello failed: %v", err)
	}
	ev := readEvent(t, conn)
	raw, _ := json.Marshal(ev["data"])
	var p ClipboardPayload
	_ = json.Unmarshal(raw, &p)
	if ev["type"] != EventClipboard || p.Mode != "rich" || p.HTML != "<b>x</b>" || p.Text != "x" {
		t.Errorf("unexpected clipboard event: %v", ev)
	}
}

func TestClipboard_CancelledContext(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hub.WriteText(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

func TestClose_DisconnectsClients(t *testing.T) {
	hub := NewHub()
	conn := dial(t, newHubServer(t, hub))
	waitFor(t, func() bool { return hub.Clients() == 1 })

	hub.Close()
	if hub.Clients() != 0 {
		t.Error("clients should be dropped")
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection should be closed")
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://console.local:8080", true},
		{"http://evil.example", false},
		{"::bad", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "http://console.local:8080/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := sameOrigin(r); got != tt.want {
			t.Errorf("origin %q: want %v, got %v", tt.origin, tt.want, got)
		}
	}
}
