package chatclient

import (
	"sort"
)

// Snapshot is an immutable copy of the session state, safe to hand to a
// render loop. Conversations keep insertion order; typing users are
// sorted by username for stable rendering.
type Snapshot struct {
	User                 User
	Conversations        []Conversation
	ActiveConversationID string
	Messages             []Message
	TypingUsers          []TypingSignal
	UserStatuses         map[string]string
	Connected            bool
}

// Snapshot returns the current render-ready state.
func (s *SessionStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs := make([]Conversation, 0, len(s.convOrder))
	for _, id := range s.convOrder {
		if c, ok := s.convs[id]; ok {
			convs = append(convs, *c)
		}
	}
	typing := make([]TypingSignal, 0, len(s.typing))
	for _, sig := range s.typing {
		typing = append(typing, sig)
	}
	sort.Slice(typing, func(i, j int) bool {
		if typing[i].Username != typing[j].Username {
			return typing[i].Username < typing[j].Username
		}
		return typing[i].UserID < typing[j].UserID
	})
	statuses := make(map[string]string, len(s.statuses))
	for k, v := range s.statuses {
		statuses[k] = v
	}
	return Snapshot{
		User:                 s.user,
		Conversations:        convs,
		ActiveConversationID: s.activeID,
		Messages:             append([]Message(nil), s.messages...),
		TypingUsers:          typing,
		UserStatuses:         statuses,
		Connected:            s.connected,
	}
}

// Updates returns a coalescing change-notification channel: at least one
// tick is observable after every applied transition, consecutive ticks may
// be merged. The renderer reads the channel and pulls a fresh Snapshot.
func (s *SessionStore) Updates() <-chan struct{} {
	return s.updates
}

func (s *SessionStore) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
