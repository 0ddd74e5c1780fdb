package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// wsTestServer is a minimal stand-in for the service's event endpoint: it
// records inbound frames and can push frames to the connected client.
type wsTestServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	inbound  []frame
	connects int
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	ws := &wsTestServer{}
	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.mu.Lock()
		ws.conn = conn
		ws.connects++
		ws.mu.Unlock()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			ws.mu.Lock()
			ws.inbound = append(ws.inbound, f)
			ws.mu.Unlock()
		}
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(ws.srv.URL, "http")
}

func (ws *wsTestServer) push(t *testing.T, event string, data any) {
	t.Helper()
	ws.mu.Lock()
	conn := ws.conn
	ws.mu.Unlock()
	require.NotNil(t, conn)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(frame{Event: event, Data: b}))
}

func (ws *wsTestServer) frames() []frame {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([]frame(nil), ws.inbound...)
}

func (ws *wsTestServer) dropClient() {
	ws.mu.Lock()
	conn := ws.conn
	ws.conn = nil
	ws.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (ws *wsTestServer) connectCount() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.connects
}

func startTransport(t *testing.T, ws *wsTestServer) (*WSTransport, <-chan Event, context.CancelFunc) {
	t.Helper()
	transport, err := NewWSTransport(WSTransportConfig{URL: ws.url(), Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := transport.Events(ctx)
	require.NoError(t, err)

	events := make(chan Event, 32)
	go func() {
		for msg := range sub {
			ev, err := DecodeEvent(msg.Payload)
			msg.Ack()
			if err == nil {
				events <- ev
			}
		}
		close(events)
	}()
	go func() { _ = transport.Run(ctx) }()
	return transport, events, cancel
}

func waitForEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event stream closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestWSTransportLifecycleAndInboundFrames(t *testing.T) {
	ws := newWSTestServer(t)
	_, events, cancel := startTransport(t, ws)
	defer cancel()

	waitForEvent(t, events, EventConnected)

	ws.push(t, "new_message", Message{
		ID: "m1", ConversationID: "c1", SenderID: "u2",
		SenderUsername: "bob", Content: "hi", MessageType: MessageTypeText,
	})
	ev := waitForEvent(t, events, EventNewMessage)
	require.NotNil(t, ev.Message)
	require.Equal(t, "m1", ev.Message.ID)
	require.Equal(t, "c1", ev.Message.ConversationID)

	ws.push(t, "user_typing", TypingSignal{ConversationID: "c1", UserID: "u2", Username: "bob", Typing: true})
	ev = waitForEvent(t, events, EventUserTyping)
	require.NotNil(t, ev.Typing)
	require.True(t, ev.Typing.Typing)
}

func TestWSTransportOutboundFrames(t *testing.T) {
	ws := newWSTestServer(t)
	transport, events, cancel := startTransport(t, ws)
	defer cancel()

	waitForEvent(t, events, EventConnected)

	require.NoError(t, transport.Join("c1"))
	require.NoError(t, transport.EmitTypingStart(TypingSignal{ConversationID: "c1", UserID: "u1", Username: "alice"}))
	require.NoError(t, transport.EmitTypingStop(TypingSignal{ConversationID: "c1", UserID: "u1"}))
	require.NoError(t, transport.Leave("c1"))

	require.Eventually(t, func() bool { return len(ws.frames()) == 4 }, 3*time.Second, 10*time.Millisecond)
	frames := ws.frames()
	require.Equal(t, frameJoinConversation, frames[0].Event)
	require.Equal(t, frameTypingStart, frames[1].Event)
	require.Equal(t, frameTypingStop, frames[2].Event)
	require.Equal(t, frameLeaveConversation, frames[3].Event)

	var join map[string]string
	require.NoError(t, json.Unmarshal(frames[0].Data, &join))
	require.Equal(t, "c1", join["conversation_id"])

	var stop map[string]string
	require.NoError(t, json.Unmarshal(frames[2].Data, &stop))
	_, hasUsername := stop["username"]
	require.False(t, hasUsername, "typing_stop omits the username")
}

func TestWSTransportReconnectsAndSignalsLifecycle(t *testing.T) {
	ws := newWSTestServer(t)
	_, events, cancel := startTransport(t, ws)
	defer cancel()

	waitForEvent(t, events, EventConnected)
	ws.dropClient()
	waitForEvent(t, events, EventDisconnected)
	waitForEvent(t, events, EventConnected)

	require.GreaterOrEqual(t, ws.connectCount(), 2)
}

func TestWSTransportEmitWhileDisconnectedIsDropped(t *testing.T) {
	transport, err := NewWSTransport(WSTransportConfig{URL: "ws://127.0.0.1:1/ws", Logger: zerolog.Nop()})
	require.NoError(t, err)

	// never connected: emits are silently dropped, not errors
	require.NoError(t, transport.Join("c1"))
	require.NoError(t, transport.EmitTypingStart(TypingSignal{ConversationID: "c1", UserID: "u1"}))
}
