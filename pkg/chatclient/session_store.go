package chatclient

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// historyFetcher is the slice of the Gateway the store depends on.
type historyFetcher interface {
	FetchMessages(ctx context.Context, conversationID string) ([]Message, error)
}

// SessionStoreConfig configures a session store.
type SessionStoreConfig struct {
	Fetcher   historyFetcher
	Transport Transport
	Logger    zerolog.Logger
}

// SessionStore is the client-side state machine: it projects transport
// events and gateway results into one render-ready session state.
//
// The Run loop is the only consumer of transport events, so events apply
// in receipt order. Intent methods mutate under the same lock; history
// fetches never hold it. A fetch generation counter invalidates in-flight
// fetches when the active conversation changes underneath them.
type SessionStore struct {
	fetcher   historyFetcher
	transport Transport
	logger    zerolog.Logger

	mu        sync.Mutex
	user      User
	convs     map[string]*Conversation
	convOrder []string
	activeID  string
	messages  []Message
	typing    map[string]TypingSignal
	statuses  map[string]string
	joined    map[string]bool
	connected bool
	fetchGen  uint64

	updates chan struct{}
}

func NewSessionStore(cfg SessionStoreConfig) (*SessionStore, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("session store fetcher is nil")
	}
	if cfg.Transport == nil {
		return nil, errors.New("session store transport is nil")
	}
	return &SessionStore{
		fetcher:   cfg.Fetcher,
		transport: cfg.Transport,
		logger:    cfg.Logger.With().Str("component", "session").Logger(),
		convs:     map[string]*Conversation{},
		typing:    map[string]TypingSignal{},
		statuses:  map[string]string{},
		joined:    map[string]bool{},
		updates:   make(chan struct{}, 1),
	}, nil
}

// Run consumes a transport event subscription until ctx is cancelled or
// the channel closes. Subscribe before starting the transport so the
// initial connected event cannot be missed:
//
//	events, _ := transport.Events(ctx)
//	g.Go(func() error { return transport.Run(ctx) })
//	g.Go(func() error { return store.Run(ctx, events) })
func (s *SessionStore) Run(ctx context.Context, ch <-chan *message.Message) error {
	if ch == nil {
		return errors.New("event subscription is nil")
	}
	for msg := range ch {
		ev, err := DecodeEvent(msg.Payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("dropping undecodable bus event")
			msg.Ack()
			continue
		}
		s.apply(ctx, ev)
		msg.Ack()
	}
	return ctx.Err()
}

// apply dispatches one event. Handlers must not block: any follow-up I/O
// (the reconnect history refresh) runs on its own goroutine.
func (s *SessionStore) apply(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventConnected:
		s.applyConnection(ctx, true)
	case EventDisconnected:
		s.applyConnection(ctx, false)
	case EventNewMessage:
		if ev.Message != nil {
			s.applyNewMessage(*ev.Message)
		}
	case EventUserTyping:
		if ev.Typing != nil {
			s.applyTyping(*ev.Typing)
		}
	case EventJoined:
		s.applyJoined(ev.JoinedConv)
	case EventUserStatus:
		if ev.Status != nil {
			s.applyUserStatus(*ev.Status)
		}
	default:
		s.logger.Debug().Str("kind", string(ev.Kind)).Msg("ignoring unknown event kind")
	}
}

// InitializeSession seeds identity and the initial conversation, joins it
// and installs its history. Joining happens before the fetch so a message
// event arriving mid-fetch is still captured and merged.
func (s *SessionStore) InitializeSession(ctx context.Context, user User, conv Conversation) error {
	if user.ID == "" {
		return errors.New("user id is empty")
	}
	if conv.ID == "" {
		return errors.New("conversation id is empty")
	}
	s.mu.Lock()
	s.user = user
	s.upsertConversationLocked(conv)
	s.activeID = conv.ID
	s.messages = nil
	s.typing = map[string]TypingSignal{}
	s.joined[conv.ID] = true
	gen := s.bumpGenLocked()
	s.mu.Unlock()
	s.notify()

	if err := s.transport.Join(conv.ID); err != nil {
		s.logger.Warn().Err(err).Str("conv_id", conv.ID).Msg("join failed")
	}
	return s.installHistory(ctx, conv.ID, gen)
}

// SwitchConversation atomically discards the current log and typing set,
// activates the target and installs its freshly fetched history. A switch
// to the already-active conversation is a no-op. On fetch failure the
// previous state is restored and the error returned.
func (s *SessionStore) SwitchConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if s.user.ID == "" {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if conversationID == s.activeID {
		s.mu.Unlock()
		return nil
	}
	if _, ok := s.convs[conversationID]; !ok {
		s.mu.Unlock()
		return errors.Wrap(ErrUnknownConversation, conversationID)
	}
	prevActive := s.activeID
	prevMessages := s.messages
	prevTyping := s.typing
	s.activeID = conversationID
	s.messages = nil
	s.typing = map[string]TypingSignal{}
	needJoin := !s.joined[conversationID]
	s.joined[conversationID] = true
	gen := s.bumpGenLocked()
	s.mu.Unlock()
	s.notify()

	if needJoin {
		if err := s.transport.Join(conversationID); err != nil {
			s.logger.Warn().Err(err).Str("conv_id", conversationID).Msg("join failed")
		}
	}
	if err := s.installHistory(ctx, conversationID, gen); err != nil {
		s.mu.Lock()
		if s.fetchGen == gen {
			s.activeID = prevActive
			s.messages = prevMessages
			s.typing = prevTyping
		}
		s.mu.Unlock()
		s.notify()
		return err
	}
	return nil
}

// installHistory fetches a conversation's log and installs it under the
// replace-then-merge rule: the fetch snapshot is authoritative, then any
// event-appended message missing from it (by id) is re-appended once in
// arrival order. Stale generations are dropped entirely.
func (s *SessionStore) installHistory(ctx context.Context, conversationID string, gen uint64) error {
	history, err := s.fetcher.FetchMessages(ctx, conversationID)
	if err != nil {
		return errors.Wrapf(err, "fetch history for %s", conversationID)
	}

	s.mu.Lock()
	if s.fetchGen != gen || s.activeID != conversationID {
		s.mu.Unlock()
		s.logger.Debug().Str("conv_id", conversationID).Msg("dropping stale history fetch")
		return nil
	}
	seen := make(map[string]bool, len(history))
	merged := make([]Message, 0, len(history)+len(s.messages))
	for _, m := range history {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		merged = append(merged, m)
	}
	for _, m := range s.messages {
		if m.ConversationID != conversationID || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		merged = append(merged, m)
	}
	s.messages = merged
	if len(merged) > 0 {
		if conv, ok := s.convs[conversationID]; ok {
			last := merged[len(merged)-1]
			conv.LastMessage = summarizeMessage(last)
			conv.LastActivity = last.Timestamp
		}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// applyNewMessage appends to the visible log only for the active
// conversation and only once per message id; the summary cache of the
// message's conversation is updated regardless so the list view reflects
// background activity.
func (s *SessionStore) applyNewMessage(msg Message) {
	s.mu.Lock()
	if conv, ok := s.convs[msg.ConversationID]; ok {
		conv.LastMessage = summarizeMessage(msg)
		conv.LastActivity = msg.Timestamp
	} else {
		s.logger.Debug().Str("conv_id", msg.ConversationID).Msg("message for unknown conversation")
	}
	if msg.ConversationID == s.activeID && !s.containsMessageLocked(msg.ID) {
		s.messages = append(s.messages, msg)
	}
	s.mu.Unlock()
	s.notify()
}

// applyTyping upserts or removes a typing-set entry. Signals for inactive
// conversations and the local user's own echo are ignored.
func (s *SessionStore) applyTyping(sig TypingSignal) {
	s.mu.Lock()
	if sig.ConversationID != s.activeID || sig.UserID == "" || sig.UserID == s.user.ID {
		s.mu.Unlock()
		return
	}
	if sig.Typing {
		if sig.Username == "" {
			if prev, ok := s.typing[sig.UserID]; ok {
				sig.Username = prev.Username
			}
		}
		s.typing[sig.UserID] = sig
	} else {
		delete(s.typing, sig.UserID)
	}
	s.mu.Unlock()
	s.notify()
}

// applyConnection tracks channel lifecycle. Disconnect clears the typing
// set (stale assertions cannot be trusted) but never the log or the
// conversation list. Reconnect re-joins the active conversation (room
// membership is per-connection) and refreshes its history off-loop.
func (s *SessionStore) applyConnection(ctx context.Context, connected bool) {
	s.mu.Lock()
	s.connected = connected
	var rejoin string
	var gen uint64
	if !connected {
		s.typing = map[string]TypingSignal{}
		s.joined = map[string]bool{}
	} else if s.activeID != "" {
		rejoin = s.activeID
		s.joined[rejoin] = true
		gen = s.bumpGenLocked()
	}
	s.mu.Unlock()
	s.notify()

	if rejoin == "" {
		return
	}
	if err := s.transport.Join(rejoin); err != nil {
		s.logger.Warn().Err(err).Str("conv_id", rejoin).Msg("rejoin failed")
	}
	go func() {
		if err := s.installHistory(ctx, rejoin, gen); err != nil {
			s.logger.Warn().Err(err).Str("conv_id", rejoin).Msg("history refresh after reconnect failed")
		}
	}()
}

func (s *SessionStore) applyJoined(conversationID string) {
	if conversationID == "" {
		return
	}
	s.mu.Lock()
	s.joined[conversationID] = true
	s.mu.Unlock()
	s.logger.Debug().Str("conv_id", conversationID).Msg("join acknowledged")
}

func (s *SessionStore) applyUserStatus(sc UserStatusChange) {
	if sc.UserID == "" {
		return
	}
	s.mu.Lock()
	s.statuses[sc.UserID] = sc.Status
	s.mu.Unlock()
	s.notify()
}

// AddConversation registers a conversation (typically just created via the
// gateway) in the list without activating it.
func (s *SessionStore) AddConversation(conv Conversation) {
	if conv.ID == "" {
		return
	}
	s.mu.Lock()
	s.upsertConversationLocked(conv)
	s.mu.Unlock()
	s.notify()
}

// SetConversations installs the full conversation list, preserving the
// given order. Existing summary caches win over zero-valued incoming ones.
func (s *SessionStore) SetConversations(convs []Conversation) {
	s.mu.Lock()
	for _, conv := range convs {
		if conv.ID == "" {
			continue
		}
		s.upsertConversationLocked(conv)
	}
	s.mu.Unlock()
	s.notify()
}

func (s *SessionStore) CurrentUser() User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *SessionStore) ActiveConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

func (s *SessionStore) upsertConversationLocked(conv Conversation) {
	if existing, ok := s.convs[conv.ID]; ok {
		if conv.LastMessage == "" {
			conv.LastMessage = existing.LastMessage
		}
		if conv.LastActivity.IsZero() {
			conv.LastActivity = existing.LastActivity
		}
		*existing = conv
		return
	}
	c := conv
	s.convs[conv.ID] = &c
	s.convOrder = append(s.convOrder, conv.ID)
}

func (s *SessionStore) containsMessageLocked(id string) bool {
	for _, m := range s.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *SessionStore) bumpGenLocked() uint64 {
	s.fetchGen++
	return s.fetchGen
}
