package chatclient

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// WSTransportConfig configures a websocket transport.
type WSTransportConfig struct {
	// URL is the websocket endpoint, e.g. ws://host:8000/ws.
	URL    string
	Logger zerolog.Logger
	// DialTimeout bounds a single connection attempt. Defaults to 10s.
	DialTimeout time.Duration
}

// WSTransport implements Transport over a single gorilla websocket
// connection with exponential-backoff reconnects.
type WSTransport struct {
	url    string
	bus    *eventBus
	logger zerolog.Logger
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	// newBackoff is a test hook; defaults to an exponential policy with no
	// elapsed-time cap.
	newBackoff func() backoff.BackOff
}

var _ Transport = (*WSTransport)(nil)

func NewWSTransport(cfg WSTransportConfig) (*WSTransport, error) {
	if cfg.URL == "" {
		return nil, errors.New("transport URL is empty")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &WSTransport{
		url:    cfg.URL,
		bus:    newEventBus(cfg.Logger),
		logger: cfg.Logger.With().Str("component", "transport").Str("url", cfg.URL).Logger(),
		dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
		newBackoff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 0
			return bo
		},
	}, nil
}

// Run dials, pumps inbound frames onto the bus, and reconnects until ctx
// is cancelled. Connection loss is a Disconnected event, not an error.
func (t *WSTransport) Run(ctx context.Context) error {
	defer func() { _ = t.bus.close() }()
	for {
		conn, err := t.dial(ctx)
		if err != nil {
			// dial only fails permanently on ctx cancellation
			return ctx.Err()
		}

		t.setConn(conn)
		if err := t.bus.publish(Event{Kind: EventConnected}); err != nil {
			t.logger.Warn().Err(err).Msg("failed to publish connected event")
		}
		t.logger.Info().Msg("channel established")

		t.readLoop(ctx, conn)

		t.setConn(nil)
		_ = conn.Close()
		if err := t.bus.publish(Event{Kind: EventDisconnected}); err != nil {
			t.logger.Warn().Err(err).Msg("failed to publish disconnected event")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			t.logger.Info().Msg("channel lost, reconnecting")
		}
	}
}

func (t *WSTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	op := func() error {
		c, _, err := t.dialer.DialContext(ctx, t.url, nil)
		if err != nil {
			t.logger.Debug().Err(err).Msg("dial failed")
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(t.newBackoff(), ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}

func (t *WSTransport) readLoop(ctx context.Context, conn *websocket.Conn) {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.logger.Debug().Err(err).Msg("read loop end")
			return
		}
		ev, ok, err := decodeFrame(raw)
		if err != nil {
			t.logger.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		if !ok {
			t.logger.Debug().Str("frame", string(raw)).Msg("ignoring unknown frame")
			continue
		}
		if err := t.bus.publish(ev); err != nil {
			t.logger.Warn().Err(err).Msg("failed to publish event")
		}
	}
}

func (t *WSTransport) Events(ctx context.Context) (<-chan *message.Message, error) {
	return t.bus.subscribe(ctx)
}

func (t *WSTransport) Join(conversationID string) error {
	return t.emit(frameJoinConversation, map[string]string{"conversation_id": conversationID})
}

func (t *WSTransport) Leave(conversationID string) error {
	return t.emit(frameLeaveConversation, map[string]string{"conversation_id": conversationID})
}

func (t *WSTransport) EmitTypingStart(sig TypingSignal) error {
	return t.emit(frameTypingStart, map[string]string{
		"conversation_id": sig.ConversationID,
		"user_id":         sig.UserID,
		"username":        sig.Username,
	})
}

func (t *WSTransport) EmitTypingStop(sig TypingSignal) error {
	return t.emit(frameTypingStop, map[string]string{
		"conversation_id": sig.ConversationID,
		"user_id":         sig.UserID,
	})
}

// emit is fire-and-forget: while disconnected the frame is dropped, since
// presence signals are ephemeral and joins are replayed on reconnect.
func (t *WSTransport) emit(event string, data any) error {
	b, err := encodeFrame(event, data)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		t.logger.Debug().Str("event", event).Msg("dropping emit while disconnected")
		return nil
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.logger.Warn().Err(err).Str("event", event).Msg("emit failed")
		return errors.Wrapf(err, "emit %s", event)
	}
	return nil
}

func (t *WSTransport) setConn(conn *websocket.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
}
