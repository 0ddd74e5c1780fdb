package chatclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeFrameUnknownEventIsSkipped(t *testing.T) {
	_, ok, err := decodeFrame([]byte(`{"event":"server_maintenance","data":{}}`))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecodeFrameMalformedPayload(t *testing.T) {
	_, _, err := decodeFrame([]byte(`{"event":"new_message","data":"not an object"}`))
	require.Error(t, err)

	_, _, err = decodeFrame([]byte(`not json`))
	require.Error(t, err)
}

func TestDecodeFrameJoinedAck(t *testing.T) {
	ev, ok, err := decodeFrame([]byte(`{"event":"joined_conversation","data":{"conversation_id":"c1"}}`))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, EventJoined, ev.Kind)
	require.Equal(t, "c1", ev.JoinedConv)
}

func TestEventBusRoundTrip(t *testing.T) {
	m := msg("m1", "c1", "hello")
	b, err := EncodeEvent(Event{Kind: EventNewMessage, Message: &m})
	require.NoError(t, err)

	ev, err := DecodeEvent(b)
	require.NoError(t, err)
	require.Equal(t, EventNewMessage, ev.Kind)
	require.Equal(t, "m1", ev.Message.ID)
}

func TestDecodeEventMissingKind(t *testing.T) {
	_, err := DecodeEvent([]byte(`{}`))
	require.Error(t, err)
}

func TestSummarizeMessage(t *testing.T) {
	require.Equal(t, "short", summarizeMessage(Message{Content: "short", MessageType: MessageTypeText}))

	long := make([]rune, 0, 60)
	for i := 0; i < 60; i++ {
		long = append(long, 'x')
	}
	got := summarizeMessage(Message{Content: string(long), MessageType: MessageTypeText})
	require.Len(t, []rune(got), summaryMaxRunes+3)
	require.Equal(t, "...", got[len(got)-3:])

	require.Equal(t, "AI: hi", summarizeMessage(Message{Content: "hi", MessageType: MessageTypeAI}))
}
