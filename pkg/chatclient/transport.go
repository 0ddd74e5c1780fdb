package chatclient

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// eventsTopic is the single in-process bus topic the transport publishes
// decoded events to and the session store consumes from.
const eventsTopic = "chat:events"

// Transport is the bidirectional event channel to the service. Run owns
// the connection for its lifetime; emits are fire-and-forget (dropped
// while disconnected) and never block the caller on I/O completion.
type Transport interface {
	// Run connects and keeps the channel alive until ctx is cancelled,
	// reconnecting with backoff. Lifecycle transitions surface as
	// Connected/Disconnected events on the bus, never as errors.
	Run(ctx context.Context) error
	// Events returns the FIFO event subscription consumed by the store.
	Events(ctx context.Context) (<-chan *message.Message, error)

	// Join registers interest in a conversation so the service routes its
	// events to this connection. Room membership is per-connection: the
	// store re-joins after every reconnect.
	Join(conversationID string) error
	Leave(conversationID string) error

	EmitTypingStart(sig TypingSignal) error
	EmitTypingStop(sig TypingSignal) error
}

// eventBus wraps the watermill gochannel Pub/Sub that decouples the
// websocket read loop from the store's dispatch loop while preserving
// receipt order.
type eventBus struct {
	pubsub *gochannel.GoChannel
}

func newEventBus(logger zerolog.Logger) *eventBus {
	return &eventBus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			newWatermillLogger(logger),
		),
	}
}

func (b *eventBus) publish(ev Event) error {
	if b == nil || b.pubsub == nil {
		return errors.New("event bus is not initialized")
	}
	payload, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return errors.Wrap(b.pubsub.Publish(eventsTopic, msg), "publish event")
}

func (b *eventBus) subscribe(ctx context.Context) (<-chan *message.Message, error) {
	if b == nil || b.pubsub == nil {
		return nil, errors.New("event bus is not initialized")
	}
	ch, err := b.pubsub.Subscribe(ctx, eventsTopic)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe events")
	}
	return ch, nil
}

func (b *eventBus) close() error {
	if b == nil || b.pubsub == nil {
		return nil
	}
	return b.pubsub.Close()
}
