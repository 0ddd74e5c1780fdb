package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// GatewayConfig configures the REST request gateway.
type GatewayConfig struct {
	// BaseURL is the service root, e.g. http://host:8000. The /api prefix
	// is appended per call.
	BaseURL string
	Logger  zerolog.Logger
	// Client defaults to an http.Client with a 15s timeout.
	Client *http.Client
}

// Gateway issues request/response calls against the service. It is
// stateless beyond in-flight requests and never retries implicitly; the
// caller decides whether to retry or surface the failure.
type Gateway struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("gateway base URL is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, errors.Wrap(err, "parse gateway base URL")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Gateway{
		baseURL: base,
		client:  client,
		logger:  cfg.Logger.With().Str("component", "gateway").Logger(),
	}, nil
}

// CreateUser registers a new identity. Duplicate identities map to
// ErrConflict, malformed fields to ErrValidation.
func (g *Gateway) CreateUser(ctx context.Context, username, email string) (User, error) {
	var user User
	body := map[string]string{"username": username, "email": email}
	err := g.do(ctx, http.MethodPost, "/api/users", body, nil, &user)
	return user, err
}

func (g *Gateway) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := g.do(ctx, http.MethodGet, "/api/users", nil, nil, &users)
	return users, err
}

func (g *Gateway) CreateConversation(ctx context.Context, name string, participants []string) (Conversation, error) {
	var conv Conversation
	body := map[string]any{"name": name, "participants": participants}
	err := g.do(ctx, http.MethodPost, "/api/conversations", body, nil, &conv)
	return conv, err
}

func (g *Gateway) ListConversations(ctx context.Context) ([]Conversation, error) {
	var convs []Conversation
	err := g.do(ctx, http.MethodGet, "/api/conversations", nil, nil, &convs)
	return convs, err
}

// FetchMessages returns a conversation's history in server-assigned
// order. The result is an authoritative snapshot: the store installs it
// as a full replacement, never a merge.
func (g *Gateway) FetchMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id is empty")
	}
	var msgs []Message
	path := fmt.Sprintf("/api/conversations/%s/messages", url.PathEscape(conversationID))
	err := g.do(ctx, http.MethodGet, path, nil, nil, &msgs)
	return msgs, err
}

// PostMessage persists a message. The service broadcasts it back as a
// new_message event to every subscriber including the sender; that event
// is the sole local append path, so the returned Message is an ack only.
// An Idempotency-Key header guards caller-driven retries.
func (g *Gateway) PostMessage(ctx context.Context, draft MessageDraft) (Message, error) {
	var msg Message
	headers := map[string]string{"Idempotency-Key": uuid.NewString()}
	err := g.do(ctx, http.MethodPost, "/api/messages", draft, headers, &msg)
	return msg, err
}

// RequestAIReply triggers asynchronous AI-response generation. The reply
// arrives solely as a new_message event with type ai_response.
func (g *Gateway) RequestAIReply(ctx context.Context, draft MessageDraft) error {
	return g.do(ctx, http.MethodPost, "/api/ai/chat", draft, nil, nil)
}

func (g *Gateway) UpdateUserStatus(ctx context.Context, userID, status string) error {
	if userID == "" {
		return errors.New("user id is empty")
	}
	path := fmt.Sprintf("/api/users/%s/status?status=%s", url.PathEscape(userID), url.QueryEscape(status))
	return g.do(ctx, http.MethodPut, path, nil, nil, nil)
}

func (g *Gateway) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return errors.Wrapf(ErrRequestFailed, "%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		g.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("request rejected")
		return errors.Wrapf(taxonomyForStatus(resp.StatusCode),
			"%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(ErrRequestFailed, "%s %s: decode response: %v", method, path, err)
	}
	return nil
}

func taxonomyForStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusConflict:
		return ErrConflict
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrRequestFailed
	}
}
