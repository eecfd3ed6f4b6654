package world

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestVec3Add(t *testing.T) {
	got := Vec3{X: 1, Y: 2, Z: 3}.Add(Vec3{X: -1, Y: 0.5, Z: 10})
	want := Vec3{X: 0, Y: 2.5, Z: 13}
	if got != want {
		t.Errorf("Add = %v, want %v", got, want)
	}
}

func TestVec3DistanceTo(t *testing.T) {
	tests := []struct {
		name string
		a, b Vec3
		want float64
	}{
		{"same point", Vec3{X: 5, Y: 5, Z: 5}, Vec3{X: 5, Y: 5, Z: 5}, 0},
		{"axis aligned", Vec3{}, Vec3{X: 7}, 7},
		{"pythagorean", Vec3{}, Vec3{X: 3, Y: 4}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.DistanceTo(tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DistanceTo = %v, want %v", got, tt.want)
			}
			// Distance is symmetric.
			if got := tt.b.DistanceTo(tt.a); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("reverse DistanceTo = %v, want %v", got, tt.want)
			}
		})
	}
}

// testBridge is a scripted websocket server standing in for the
// mineflayer bridge. Each registered method returns a fixed result;
// events can be pushed to the connected client.
type testBridge struct {
	t       *testing.T
	srv     *httptest.Server
	results map[string]any
	errors  map[string]*wsError
	hang    map[string]bool
	conns   chan *websocket.Conn
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	b := &testBridge{
		t:       t,
		results: make(map[string]any),
		errors:  make(map[string]*wsError),
		hang:    make(map[string]bool),
		conns:   make(chan *websocket.Conn, 1),
	}

	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		b.conns <- conn

		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if b.hang[msg.Method] {
				continue
			}
			reply := wsMessage{ID: msg.ID, Type: "result"}
			if wsErr, ok := b.errors[msg.Method]; ok {
				reply.Error = wsErr
			} else if result, ok := b.results[msg.Method]; ok {
				raw, _ := json.Marshal(result)
				reply.Result = raw
			}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBridge) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

// pushEvent sends an event frame to the connected client.
func (b *testBridge) pushEvent(event string, data any) {
	b.t.Helper()
	select {
	case conn := <-b.conns:
		raw, _ := json.Marshal(data)
		if err := conn.WriteJSON(wsMessage{Type: "event", Event: event, Data: raw}); err != nil {
			b.t.Errorf("push event: %v", err)
		}
		b.conns <- conn
	case <-time.After(time.Second):
		b.t.Fatal("no bridge connection to push event to")
	}
}

func connect(t *testing.T, b *testBridge) *Client {
	t.Helper()
	c := NewClient(b.url(), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientCalls(t *testing.T) {
	b := newTestBridge(t)
	b.results["position"] = Vec3{X: 1, Y: 64, Z: -3}
	b.results["isRaining"] = true
	b.results["inventory"] = []Item{{Name: "stone_axe", Count: 1, Slot: 2}}
	b.results["findBlocks"] = []Block{{Name: "oak_log", Position: Vec3{X: 5, Y: 70, Z: 5}}}

	c := connect(t, b)
	ctx := context.Background()

	pos, err := c.Position(ctx)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if pos != (Vec3{X: 1, Y: 64, Z: -3}) {
		t.Errorf("Position = %v", pos)
	}

	raining, err := c.IsRaining(ctx)
	if err != nil {
		t.Fatalf("IsRaining: %v", err)
	}
	if !raining {
		t.Error("IsRaining = false, want true")
	}

	items, err := c.Inventory(ctx)
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if len(items) != 1 || items[0].Name != "stone_axe" {
		t.Errorf("Inventory = %v", items)
	}

	blocks, err := c.FindBlocks(ctx, BlockQuery{Names: []string{"oak_log"}, MaxDistance: 20, Count: 5})
	if err != nil {
		t.Fatalf("FindBlocks: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Name != "oak_log" {
		t.Errorf("FindBlocks = %v", blocks)
	}

	// Calls without results still round-trip cleanly.
	if err := c.Chat(ctx, "hello"); err != nil {
		t.Errorf("Chat: %v", err)
	}
}

func TestClientCallError(t *testing.T) {
	b := newTestBridge(t)
	b.errors["dig"] = &wsError{Code: "unreachable", Message: "block out of range"}

	c := connect(t, b)

	err := c.Dig(context.Background(), Vec3{X: 0, Y: 63, Z: 0})
	if err == nil {
		t.Fatal("expected bridge error")
	}
	if !strings.Contains(err.Error(), "block out of range") {
		t.Errorf("error = %v, want bridge message included", err)
	}
}

func TestClientCallContextDeadline(t *testing.T) {
	b := newTestBridge(t)
	b.hang["position"] = true
	c := connect(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.Position(ctx); err == nil {
		t.Error("expected context deadline error")
	}
}

func TestClientChatEvents(t *testing.T) {
	b := newTestBridge(t)
	c := connect(t, b)

	b.pushEvent("chat", ChatEvent{PlayerName: "steve", Message: "hello bot"})

	select {
	case ev := <-c.Chats():
		if ev.PlayerName != "steve" || ev.Message != "hello bot" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no chat event received")
	}
}

func TestClientIgnoresUnknownEvents(t *testing.T) {
	b := newTestBridge(t)
	c := connect(t, b)

	b.pushEvent("rain", map[string]bool{"raining": true})
	b.pushEvent("chat", ChatEvent{PlayerName: "alex", Message: "hi"})

	select {
	case ev := <-c.Chats():
		if ev.PlayerName != "alex" {
			t.Errorf("event = %+v, want the chat event only", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no chat event received")
	}
}

func TestClientNotConnected(t *testing.T) {
	c := NewClient("ws://localhost:1", nil)
	if err := c.Chat(context.Background(), "hi"); err == nil {
		t.Error("expected error before Connect")
	}
}
