package chatclient

import (
	"github.com/pkg/errors"
)

// Error taxonomy for gateway calls. All are matched with errors.Is; call
// sites wrap them with request context. None of these are fatal to the
// session: a failed intent leaves prior state untouched.
var (
	// ErrValidation marks a malformed creation/post payload (HTTP 400/422).
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a duplicate identity (HTTP 409).
	ErrConflict = errors.New("already exists")
	// ErrNotFound marks a fetch against an unknown conversation (HTTP 404).
	ErrNotFound = errors.New("not found")
	// ErrRequestFailed marks a transport-level request/response failure.
	ErrRequestFailed = errors.New("request failed")

	// ErrNotInitialized is returned by store intents before InitializeSession.
	ErrNotInitialized = errors.New("session is not initialized")
	// ErrUnknownConversation is returned when switching to a conversation the
	// store has never seen.
	ErrUnknownConversation = errors.New("unknown conversation")
)
