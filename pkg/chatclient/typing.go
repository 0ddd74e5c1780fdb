package chatclient

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultQuietPeriod is how long after the last keystroke typing is
// presumed stopped. Tunable, not a contract.
const DefaultQuietPeriod = 1000 * time.Millisecond

// typingEmitter is the slice of the Transport the debouncer needs.
type typingEmitter interface {
	EmitTypingStart(sig TypingSignal) error
	EmitTypingStop(sig TypingSignal) error
}

// TypingDebouncer converts raw local keystroke activity into at most one
// typing-start per continuous burst and one typing-stop once the quiet
// period elapses. Two states per active conversation: idle and typing.
type TypingDebouncer struct {
	emitter typingEmitter
	user    User
	quiet   time.Duration
	logger  zerolog.Logger

	mu       sync.Mutex
	convID   string
	typing   bool
	timer    debounceTimer
	timerSeq uint64

	// afterFunc is a test hook; defaults to time.AfterFunc.
	afterFunc func(d time.Duration, f func()) debounceTimer
}

type debounceTimer interface {
	Stop() bool
}

// TypingDebouncerConfig configures a debouncer for the local user.
type TypingDebouncerConfig struct {
	Emitter typingEmitter
	User    User
	Logger  zerolog.Logger
	// QuietPeriod defaults to DefaultQuietPeriod.
	QuietPeriod time.Duration
}

func NewTypingDebouncer(cfg TypingDebouncerConfig) *TypingDebouncer {
	quiet := cfg.QuietPeriod
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &TypingDebouncer{
		emitter: cfg.Emitter,
		user:    cfg.User,
		quiet:   quiet,
		logger:  cfg.Logger.With().Str("component", "typing").Logger(),
		afterFunc: func(d time.Duration, f func()) debounceTimer {
			return time.AfterFunc(d, f)
		},
	}
}

// SetConversation retargets the debouncer. Switching while typing emits a
// typing-stop for the old conversation before going idle on the new one.
func (d *TypingDebouncer) SetConversation(conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if conversationID == d.convID {
		return
	}
	d.stopLocked()
	d.convID = conversationID
}

// Activity records one keystroke: the first in a burst emits typing-start
// and arms the quiet timer, subsequent ones only restart the timer.
func (d *TypingDebouncer) Activity() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.convID == "" || d.emitter == nil {
		return
	}
	if !d.typing {
		d.typing = true
		if err := d.emitter.EmitTypingStart(d.signalLocked()); err != nil {
			d.logger.Debug().Err(err).Msg("typing start emit failed")
		}
	}
	d.armLocked()
}

// Flush is called when the local user sends a message: the pending timer
// is cancelled and typing-stop emitted immediately.
func (d *TypingDebouncer) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// IsTyping reports whether a burst is in progress.
func (d *TypingDebouncer) IsTyping() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typing
}

func (d *TypingDebouncer) armLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timerSeq++
	seq := d.timerSeq
	d.timer = d.afterFunc(d.quiet, func() { d.expire(seq) })
}

func (d *TypingDebouncer) expire(seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// a newer timer or an explicit stop won the race
	if seq != d.timerSeq || !d.typing {
		return
	}
	d.timer = nil
	d.stopLocked()
}

// stopLocked leaves the typing state, cancelling the timer and emitting
// typing-stop for the current conversation if a burst was in progress.
func (d *TypingDebouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.timerSeq++
	if !d.typing {
		return
	}
	d.typing = false
	if d.emitter == nil {
		return
	}
	if err := d.emitter.EmitTypingStop(d.signalLocked()); err != nil {
		d.logger.Debug().Err(err).Msg("typing stop emit failed")
	}
}

func (d *TypingDebouncer) signalLocked() TypingSignal {
	return TypingSignal{
		ConversationID: d.convID,
		UserID:         d.user.ID,
		Username:       d.user.Username,
	}
}
