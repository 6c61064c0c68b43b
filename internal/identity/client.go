// Package identity is the HTTP client for accounts and sessions. It holds the
// signed-in session and notifies subscribers about auth state changes.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Session is the client-side view of an authenticated session.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// EventType marks a change in auth state.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is delivered to subscribers on every auth state change. Session is
// nil for EventSignedOut.
type Event struct {
	Type    EventType
	Session *Session
}

const defaultTimeout = 10 * time.Second

// Client talks to the auth endpoints of the API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration

	mu       sync.Mutex
	session  *Session
	handlers map[int]func(Event)
	nextID   int
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		timeout:  defaultTimeout,
		handlers: make(map[int]func(Event)),
	}
}

// Subscribe registers a handler for auth events and returns an unsubscribe
// function. Handlers run synchronously on the goroutine that changed state.
func (c *Client) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Session returns a copy of the current session, or nil when signed out.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	copied := *c.session
	return &copied
}

// Token returns the current access token, or empty when signed out.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// Restore installs a previously saved session without emitting an event.
// Used on startup before validating the session against the server.
func (c *Client) Restore(session Session) {
	c.mu.Lock()
	c.session = &session
	c.mu.Unlock()
}

// SignUp creates an account and signs in.
func (c *Client) SignUp(ctx context.Context, email, password string) (Session, error) {
	var session Session
	err := c.post(ctx, "/api/auth/signup", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	if err != nil {
		return Session{}, err
	}
	c.setSession(session, EventSignedIn)
	return session, nil
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var session Session
	err := c.post(ctx, "/api/auth/signin", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	if err != nil {
		return Session{}, err
	}
	c.setSession(session, EventSignedIn)
	return session, nil
}

// SignOut revokes the current session. Local state is cleared even when the
// server is unreachable.
func (c *Client) SignOut(ctx context.Context) error {
	current := c.Session()
	var refresh string
	if current != nil {
		refresh = current.RefreshToken
	}
	err := c.post(ctx, "/api/auth/signout", map[string]string{
		"refreshToken": refresh,
	}, nil)

	c.mu.Lock()
	c.session = nil
	handlers := c.snapshotHandlersLocked()
	c.mu.Unlock()
	emit(handlers, Event{Type: EventSignedOut})
	return err
}

// Refresh rotates the session using the stored refresh token.
func (c *Client) Refresh(ctx context.Context) (Session, error) {
	current := c.Session()
	if current == nil || current.RefreshToken == "" {
		return Session{}, &Error{Kind: KindUnauthorized, Message: "no session to refresh"}
	}
	var session Session
	err := c.post(ctx, "/api/session/refresh", map[string]string{
		"refreshToken": current.RefreshToken,
	}, &session)
	if err != nil {
		return Session{}, err
	}
	c.setSession(session, EventTokenRefreshed)
	return session, nil
}

// CheckSession asks the server whether the stored access token is still
// valid and updates the cached profile fields if it is.
func (c *Client) CheckSession(ctx context.Context) (bool, error) {
	token := c.Token()
	if token == "" {
		return false, nil
	}

	var payload struct {
		Authenticated bool   `json:"authenticated"`
		UserID        string `json:"userId"`
		Email         string `json:"email"`
		DisplayName   string `json:"displayName"`
	}
	if err := c.get(ctx, "/api/session", token, &payload); err != nil {
		return false, err
	}
	if !payload.Authenticated {
		return false, nil
	}

	c.mu.Lock()
	changed := false
	if c.session != nil && (c.session.Email != payload.Email || c.session.DisplayName != payload.DisplayName) {
		c.session.Email = payload.Email
		c.session.DisplayName = payload.DisplayName
		changed = true
	}
	var updated *Session
	if c.session != nil {
		copied := *c.session
		updated = &copied
	}
	handlers := c.snapshotHandlersLocked()
	c.mu.Unlock()
	if changed {
		emit(handlers, Event{Type: EventUserUpdated, Session: updated})
	}
	return true, nil
}

// BeginOAuth asks the server for a provider consent URL and a state token.
func (c *Client) BeginOAuth(ctx context.Context, provider string) (url, state string, err error) {
	var payload struct {
		URL   string `json:"url"`
		State string `json:"state"`
	}
	if err := c.get(ctx, "/api/auth/oauth/"+provider, "", &payload); err != nil {
		return "", "", err
	}
	return payload.URL, payload.State, nil
}

// CompleteOAuth finishes the consent flow with the code the user brought
// back from the provider.
func (c *Client) CompleteOAuth(ctx context.Context, provider, state, code string) (Session, error) {
	var session Session
	err := c.post(ctx, "/api/auth/oauth/"+provider+"/complete", map[string]string{
		"state": state,
		"code":  code,
	}, &session)
	if err != nil {
		return Session{}, err
	}
	c.setSession(session, EventSignedIn)
	return session, nil
}

// RequestPasswordReset asks the server to send a reset email. It returns the
// dev bypass token when the server is running without SMTP.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var payload struct {
		DevResetToken string `json:"devResetToken"`
	}
	err := c.post(ctx, "/api/auth/reset-password/request", map[string]string{
		"email": email,
	}, &payload)
	return payload.DevResetToken, err
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.post(ctx, "/api/auth/reset-password", map[string]string{
		"token":       token,
		"newPassword": newPassword,
	}, nil)
}

func (c *Client) setSession(session Session, eventType EventType) {
	c.mu.Lock()
	c.session = &session
	handlers := c.snapshotHandlersLocked()
	c.mu.Unlock()
	copied := session
	emit(handlers, Event{Type: eventType, Session: &copied})
}

func (c *Client) snapshotHandlersLocked() []func(Event) {
	handlers := make([]func(Event), 0, len(c.handlers))
	for _, fn := range c.handlers {
		handlers = append(handlers, fn)
	}
	return handlers
}

func emit(handlers []func(Event), event Event) {
	for _, fn := range handlers {
		fn(event)
	}
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("identity: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path, token string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return FromTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return FromResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindUnknown, Message: "malformed server response", cause: err}
	}
	return nil
}
