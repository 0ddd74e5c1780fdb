package chatclient

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// EventKind tags the transport event union.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventNewMessage   EventKind = "new_message"
	EventUserTyping   EventKind = "user_typing"
	EventJoined       EventKind = "joined_conversation"
	EventUserStatus   EventKind = "user_status_changed"
)

// Event is the tagged union carried on the dispatch bus between the
// transport read loop and the session store. Exactly one payload field is
// set, matching Kind. Connected/Disconnected are synthesized locally by
// the transport; the rest arrive on the wire.
type Event struct {
	Kind EventKind `json:"kind"`

	Message    *Message          `json:"message,omitempty"`
	Typing     *TypingSignal     `json:"typing,omitempty"`
	JoinedConv string            `json:"joined_conv,omitempty"`
	Status     *UserStatusChange `json:"status,omitempty"`
}

// EncodeEvent serializes an event for the watermill bus.
func EncodeEvent(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "encode event")
	}
	return b, nil
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	if ev.Kind == "" {
		return Event{}, errors.New("decode event: missing kind")
	}
	return ev, nil
}

// frame is the wire envelope exchanged with the service over the
// websocket: {"event": <name>, "data": <payload>}.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound frame names.
const (
	frameJoinConversation  = "join_conversation"
	frameLeaveConversation = "leave_conversation"
	frameTypingStart       = "typing_start"
	frameTypingStop        = "typing_stop"
)

// decodeFrame maps an inbound wire frame to a bus event. Unknown frame
// names return ok=false and are skipped by the read loop.
func decodeFrame(raw []byte) (Event, bool, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Event{}, false, errors.Wrap(err, "decode frame")
	}
	switch f.Event {
	case "new_message":
		var msg Message
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return Event{}, false, errors.Wrap(err, "decode new_message")
		}
		return Event{Kind: EventNewMessage, Message: &msg}, true, nil
	case "user_typing":
		var sig TypingSignal
		if err := json.Unmarshal(f.Data, &sig); err != nil {
			return Event{}, false, errors.Wrap(err, "decode user_typing")
		}
		return Event{Kind: EventUserTyping, Typing: &sig}, true, nil
	case "joined_conversation":
		var data struct {
			ConversationID string `json:"conversation_id"`
		}
		if err := json.Unmarshal(f.Data, &data); err != nil {
			return Event{}, false, errors.Wrap(err, "decode joined_conversation")
		}
		return Event{Kind: EventJoined, JoinedConv: data.ConversationID}, true, nil
	case "user_status_changed":
		var sc UserStatusChange
		if err := json.Unmarshal(f.Data, &sc); err != nil {
			return Event{}, false, errors.Wrap(err, "decode user_status_changed")
		}
		return Event{Kind: EventUserStatus, Status: &sc}, true, nil
	}
	return Event{}, false, nil
}

// encodeFrame builds an outbound wire frame.
func encodeFrame(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s payload", event)
		}
		raw = b
	}
	b, err := json.Marshal(frame{Event: event, Data: raw})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s frame", event)
	}
	return b, nil
}
