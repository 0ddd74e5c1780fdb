package chatclient

import (
	"time"
	"unicode/utf8"
)

// Message types assigned by the service.
const (
	MessageTypeText     = "text"
	MessageTypeAI       = "ai_response"
	MessageTypeSystem   = "system"
	AIAssistantSenderID = "ai-assistant"
)

// User statuses carried by user_status_changed events.
const (
	UserStatusOnline  = "online"
	UserStatusOffline = "offline"
	UserStatusTyping  = "typing"
)

// User is a chat participant. Created once at session setup and immutable
// for the local session; Status is the only field updated afterwards.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Conversation is a named room. LastMessage is a derived summary cache,
// eventually consistent with the most recent message observed for it.
type Conversation struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	LastMessage  string    `json:"last_message,omitempty"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

// Message is immutable once created; ID and Timestamp are assigned by the
// service. Local log order is arrival order, never a timestamp re-sort.
type Message struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversation_id"`
}

// MessageDraft is the outbound shape for PostMessage and RequestAIReply.
type MessageDraft struct {
	Content        string `json:"content"`
	SenderID       string `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	ConversationID string `json:"conversation_id"`
	MessageType    string `json:"message_type,omitempty"`
}

// TypingSignal is an ephemeral presence assertion. It carries no sequence
// number; only the latest signal per (conversation, user) pair is
// meaningful. The service omits Username on stop signals.
type TypingSignal struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Username       string `json:"username,omitempty"`
	Typing         bool   `json:"typing"`
}

// UserStatusChange mirrors the user_status_changed event payload.
type UserStatusChange struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

const summaryMaxRunes = 50

// summarizeMessage derives the conversation list preview the same way the
// service does: truncate at 50 runes with an ellipsis, AI replies prefixed.
func summarizeMessage(msg Message) string {
	content := msg.Content
	if utf8.RuneCountInString(content) > summaryMaxRunes {
		runes := []rune(content)
		content = string(runes[:summaryMaxRunes]) + "..."
	}
	if msg.MessageType == MessageTypeAI {
		return "AI: " + content
	}
	return content
}
