package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	authstate "github.com/loudkitchen/go-authstate"
)

// Client talks to a GoTrue-compatible auth API and implements
// authstate.IdentityClient. Session-change notifications are emitted on
// subscriptions whenever the client's own operations (sign-in, sign-out,
// token refresh) change the session.
type Client struct {
	config Config
	http   *http.Client
	logger authstate.Logger

	mu      sync.Mutex
	session *sessionState
	subs    map[int]*subscription
	nextSub int
	closed  bool

	refreshCancel context.CancelFunc
}

var _ authstate.IdentityClient = (*Client)(nil)

type sessionState struct {
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	identity     authstate.Session
}

// NewClient creates a GoTrue client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Client{
		config: cfg,
		http:   cfg.httpClient(),
		logger: logger,
		subs:   map[int]*subscription{},
	}, nil
}

// GetSession returns the currently held session, or nil when signed out.
func (c *Client) GetSession(ctx context.Context) (*authstate.Session, error) {
	c.mu.Lock()
	state := c.session
	c.mu.Unlock()

	if state == nil {
		return nil, nil
	}

	if time.Now().After(state.expiresAt) && state.refreshToken != "" {
		if err := c.refreshSession(ctx); err != nil {
			return nil, fmt.Errorf("gotrue: session expired and refresh failed: %w", err)
		}
		c.mu.Lock()
		state = c.session
		c.mu.Unlock()
		if state == nil {
			return nil, nil
		}
	}

	identity := state.identity
	return &identity, nil
}

// SignInWithPassword performs the password grant. The resulting session is
// stored and a SIGNED_IN event is emitted to subscribers; errors carry the
// service's own message text so callers can match cases like
// "Email not confirmed".
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*authstate.Session, error) {
	payload := map[string]string{"email": email, "password": password}

	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=password", payload, "", &resp); err != nil {
		return nil, err
	}

	state, err := c.stateFromToken(resp)
	if err != nil {
		return nil, err
	}

	c.setSession(state, authstate.EventSignedIn)

	identity := state.identity
	return &identity, nil
}

// SignOut revokes the session remotely and clears it locally. The local
// clear and the SIGNED_OUT event happen even when revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	state := c.session
	c.mu.Unlock()

	var err error
	if state != nil && state.accessToken != "" {
		err = c.post(ctx, "/logout", nil, state.accessToken, nil)
	}

	c.setSession(nil, authstate.EventSignedOut)
	return err
}

// ResendVerificationEmail asks the service to resend the signup
// confirmation email.
func (c *Client) ResendVerificationEmail(ctx context.Context, email string) error {
	payload := map[string]string{"type": "signup", "email": email}
	return c.post(ctx, "/resend", payload, "", nil)
}

// OnSessionChange subscribes to session lifecycle notifications. Events are
// delivered in emission order; the channel is closed on Unsubscribe or when
// the client is closed.
func (c *Client) OnSessionChange() (authstate.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("gotrue: client is closed")
	}

	id := c.nextSub
	c.nextSub++

	sub := &subscription{
		client: c,
		id:     id,
		events: make(chan authstate.SessionEvent, 32),
	}
	c.subs[id] = sub
	return sub, nil
}

// StartAutoRefresh runs a background loop renewing the access token shortly
// before expiry, emitting TOKEN_REFRESHED events. Stops when ctx is
// cancelled or the client is closed.
func (c *Client) StartAutoRefresh(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.refreshCancel != nil {
		c.refreshCancel()
	}
	c.refreshCancel = cancel
	c.mu.Unlock()

	go c.refreshLoop(runCtx)
}

// Close stops the refresh loop and closes all subscriptions.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.refreshCancel
	subs := c.subs
	c.subs = map[int]*subscription{}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, sub := range subs {
		sub.shutdown()
	}
}

func (c *Client) refreshLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		state := c.session
		c.mu.Unlock()

		var wait time.Duration
		if state == nil || state.refreshToken == "" {
			// Nothing to renew yet; poll until a session appears.
			wait = 5 * time.Second
		} else {
			wait = time.Until(state.expiresAt) - c.config.refreshLeeway()
			if wait < 0 {
				wait = 0
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		state = c.session
		c.mu.Unlock()
		if state == nil || state.refreshToken == "" {
			continue
		}

		if err := c.refreshSession(ctx); err != nil {
			c.logger.Warn("gotrue: token refresh failed: %v", err)
			// Back off before the next attempt instead of hot-looping.
			timer := time.NewTimer(10 * time.Second)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func (c *Client) refreshSession(ctx context.Context) error {
	c.mu.Lock()
	state := c.session
	c.mu.Unlock()
	if state == nil || state.refreshToken == "" {
		return fmt.Errorf("gotrue: no refresh token")
	}

	payload := map[string]string{"refresh_token": state.refreshToken}

	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=refresh_token", payload, "", &resp); err != nil {
		return err
	}

	next, err := c.stateFromToken(resp)
	if err != nil {
		return err
	}

	c.setSession(next, authstate.EventTokenRefreshed)
	return nil
}

func (c *Client) setSession(state *sessionState, kind authstate.EventKind) {
	var session *authstate.Session
	if state != nil {
		identity := state.identity
		session = &identity
	}

	c.mu.Lock()
	c.session = state
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	event := authstate.SessionEvent{Kind: kind, Session: session}
	for _, sub := range subs {
		if sub.send(event) {
			c.logger.Warn("gotrue: session event buffer full, evicted oldest for slow subscriber")
		}
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type apiError struct {
	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e apiError) text() string {
	for _, candidate := range []string{e.ErrorDescription, e.Msg, e.Message, e.ErrorCode} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func (c *Client) stateFromToken(resp tokenResponse) (*sessionState, error) {
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("gotrue: token response missing access token")
	}

	identity := authstate.Session{
		UserID: resp.User.ID,
		Email:  resp.User.Email,
	}

	// Some deployments omit the user object; fall back to token claims.
	if identity.UserID == "" {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, claims); err != nil {
			return nil, fmt.Errorf("gotrue: failed to parse access token: %w", err)
		}
		if sub, err := claims.GetSubject(); err == nil {
			identity.UserID = sub
		}
		if email, ok := claims["email"].(string); ok {
			identity.Email = email
		}
	}

	if identity.UserID == "" {
		return nil, fmt.Errorf("gotrue: token response carries no user identifier")
	}

	expiresIn := resp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	return &sessionState{
		accessToken:  resp.AccessToken,
		refreshToken: resp.RefreshToken,
		expiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
		identity:     identity,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, bearer string, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("gotrue: failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("gotrue: failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("apikey", c.config.APIKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gotrue: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		data, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(data, &apiErr)
		if text := apiErr.text(); text != "" {
			return fmt.Errorf("gotrue: %s", text)
		}
		return fmt.Errorf("gotrue: request failed with status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gotrue: failed to decode response: %w", err)
	}
	return nil
}

type subscription struct {
	client *Client
	id     int

	mu     sync.Mutex
	closed bool
	events chan authstate.SessionEvent
}

func (s *subscription) Events() <-chan authstate.SessionEvent {
	return s.events
}

func (s *subscription) Unsubscribe() {
	s.client.mu.Lock()
	delete(s.client.subs, s.id)
	s.client.mu.Unlock()
	s.shutdown()
}

// shutdown closes the event channel under the subscription lock, so a close
// can never land between send's liveness check and its channel send.
func (s *subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// send delivers the event without blocking. When the buffer is full the
// oldest buffered event is evicted, never the incoming one, so the stream
// converges on the current session state and a sign-out is never lost.
// Reports whether an eviction happened.
func (s *subscription) send(event authstate.SessionEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	evicted := false
	for {
		select {
		case s.events <- event:
			return evicted
		default:
		}

		select {
		case <-s.events:
			evicted = true
		default:
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
