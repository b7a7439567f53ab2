package authstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// AuthStore is the canonical holder of {user, role, status} for the process.
// The session bootstrapper and the session event listener both write into
// it; route guards and admin gating only read from it via Snapshot.
//
// The store is built once per application lifetime: New seeds the provisional
// role from the cache synchronously, Start runs the bootstrap and begins
// consuming session events, Close tears everything down. After Close every
// in-flight continuation becomes a no-op, so consumers never observe writes
// from a torn-down store.
type AuthStore struct {
	identity IdentityClient
	resolver *RoleResolver
	cache    *RoleCache
	logger   Logger
	sink     ActivitySink

	mu     sync.Mutex
	user   *Session
	role   Role
	status AuthStatus
	errMsg string
	closed bool

	// seq tags each triggering event (bootstrap, session event, manual
	// refresh); applied is the tag of the last resolution folded in. A
	// background resolution older than applied is stale and discarded.
	seq     uint64
	applied uint64

	started bool
	cancel  context.CancelFunc
	sub     Subscription
	done    chan struct{}
}

// StoreOption customizes AuthStore construction.
type StoreOption func(*AuthStore)

// WithStoreLogger overrides the store logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *AuthStore) {
		s.logger = normalizeLogger(logger)
	}
}

// WithStoreActivitySink sets the sink notified on every state transition.
func WithStoreActivitySink(sink ActivitySink) StoreOption {
	return func(s *AuthStore) {
		s.sink = normalizeActivitySink(sink)
	}
}

// New builds an AuthStore over its collaborators. The role cache is consulted
// exactly once, synchronously, so a provisional role is in place before any
// network call completes. Call Start to run the session bootstrap.
func New(identity IdentityClient, resolver *RoleResolver, cache *RoleCache, opts ...StoreOption) *AuthStore {
	s := &AuthStore{
		identity: identity,
		resolver: resolver,
		cache:    cache,
		logger:   defLogger{},
		sink:     noopActivitySink{},
		status:   StatusInitializing,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.cache != nil {
		if role, ok := s.cache.Read(); ok {
			s.role = role
		}
	}

	return s
}

// Snapshot returns the current state with all derived fields computed
// atomically.
func (s *AuthStore) Snapshot() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deriveState(s.user, s.role, s.status, s.errMsg)
}

// Start subscribes to session events and runs the bootstrap once. The given
// context scopes every background task the store spawns; Close cancels it.
func (s *AuthStore) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.started {
		s.mu.Unlock()
		return goerrors.New("auth store already started", goerrors.CategoryOperation).
			WithCode(goerrors.CodeConflict)
	}
	s.started = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)

	sub, err := s.identity.OnSessionChange()
	if err != nil {
		cancel()
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to subscribe to session events")
	}

	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.sub = sub
	s.done = done
	s.mu.Unlock()

	go s.listen(runCtx, sub, done)

	s.bootstrap(runCtx)
	return nil
}

// Close tears the store down: the event subscription is cancelled and every
// in-flight state write becomes a no-op. Safe to call more than once.
func (s *AuthStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	sub := s.sub
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
	if done != nil {
		<-done
	}
}

// SignIn delegates credential verification to the identity collaborator. On
// success it does not mutate state: the listener's sign-in notification is
// the sole transition path, which avoids double-transition races between a
// direct update and the listener's own. Credential failures surface to the
// caller so it can render a specific message.
func (s *AuthStore) SignIn(ctx context.Context, email, password string) error {
	err := validation.Errors{
		"email":    validation.Validate(email, validation.Required, is.Email),
		"password": validation.Validate(password, validation.Required),
	}.Filter()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sign in payload").
			WithCode(goerrors.CodeBadRequest)
	}

	if _, err := s.identity.SignInWithPassword(ctx, email, password); err != nil {
		s.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventSignInFailure,
			Metadata:  map[string]any{"email": email, "error": err.Error()},
		})

		if IsEmailNotConfirmedError(err) {
			return goerrors.Wrap(err, goerrors.CategoryAuth, "email not confirmed").
				WithTextCode(textCodeEmailNotConfirmed).
				WithCode(goerrors.CodeUnauthorized)
		}
		if IsInvalidCredentialsError(err) {
			return ErrInvalidCredentials
		}
		return goerrors.Wrap(err, goerrors.CategoryAuth, "sign in failed").
			WithCode(goerrors.CodeUnauthorized)
	}

	return nil
}

// SignOut requests remote sign-out and unconditionally clears local state:
// whatever the network call does, local state must never remain
// authenticated after a user-initiated sign-out. The remote error, if any,
// is returned after the local clear for the caller to log.
func (s *AuthStore) SignOut(ctx context.Context) error {
	err := s.identity.SignOut(ctx)
	if err != nil {
		s.logger.Warn("remote sign out failed, clearing local state anyway: %v", err)
	}

	s.applySignedOut(ctx)
	return err
}

// RefreshRole re-runs the role resolver for the current user and overwrites
// the cached role. The status is left untouched; this exists for manual
// cache busting after a role change.
func (s *AuthStore) RefreshRole(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.user == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	s.seq++
	seq := s.seq
	userID := s.user.UserID
	s.mu.Unlock()

	role := s.resolver.Resolve(ctx, userID)
	s.applyResolvedRole(ctx, seq, userID, role, false)
	return nil
}

// ResendVerificationEmail proxies to the identity collaborator.
func (s *AuthStore) ResendVerificationEmail(ctx context.Context, email string) error {
	return s.identity.ResendVerificationEmail(ctx, email)
}

// bootstrap queries the collaborator for an existing session and produces
// the initial state. Infrastructure failure is treated as logged-out rather
// than erroring the app: failing open would be unsafe, failing closed is
// merely inconvenient. Anything unclassified lands in StatusError.
func (s *AuthStore) bootstrap(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.applyError(ctx, fmt.Sprintf("session bootstrap panic: %v", r))
		}
	}()

	session, err := s.identity.GetSession(ctx)
	if err != nil {
		s.logger.Warn("session query failed, treating as signed out: %v", err)
		s.applyUnauthenticated(ctx, false)
		return
	}

	if session == nil {
		s.applyUnauthenticated(ctx, true)
		return
	}

	s.handleSession(ctx, session)
}

// listen consumes the subscription until it is cancelled. Events are folded
// in strictly in delivery order; the synchronous portion of event n (the
// cached-vs-fresh branch decision) always completes before event n+1 is
// read, while background refreshes may still overlap.
func (s *AuthStore) listen(ctx context.Context, sub Subscription, done chan struct{}) {
	defer close(done)

	for event := range sub.Events() {
		s.handleEvent(ctx, event)
	}
}

func (s *AuthStore) handleEvent(ctx context.Context, event SessionEvent) {
	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSessionEvent,
		Metadata:  map[string]any{"kind": string(event.Kind)},
	})

	switch {
	case event.Session != nil:
		s.handleSession(ctx, event.Session)
	case event.Kind == EventSignedOut:
		s.applySignedOut(ctx)
	default:
		// Transient null-session notifications must not flap the UI.
		s.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventSessionIgnored,
			Metadata:  map[string]any{"kind": string(event.Kind)},
		})
	}
}

// handleSession applies the cached-vs-fresh branching shared by the
// bootstrapper and the listener. Fast path: a role is already cached, so the
// status moves to AUTHENTICATED immediately and the authoritative role is
// refreshed in the background without touching the status. Slow path: no
// cached role, so the status holds at LOADING_PROFILE until resolution
// completes.
func (s *AuthStore) handleSession(ctx context.Context, session *Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	// The user is set before any await so it is never stale relative to
	// what the collaborator reported.
	s.user = session
	s.errMsg = ""
	s.seq++
	seq := s.seq

	if s.role != "" {
		s.setStatusLocked(ctx, StatusAuthenticated)
		s.mu.Unlock()

		go func() {
			role := s.resolver.Resolve(ctx, session.UserID)
			s.applyResolvedRole(ctx, seq, session.UserID, role, false)
		}()
		return
	}

	s.setStatusLocked(ctx, StatusLoadingProfile)
	s.mu.Unlock()

	role := s.resolver.Resolve(ctx, session.UserID)
	s.applyResolvedRole(ctx, seq, session.UserID, role, true)
}

// applyResolvedRole folds a completed resolution into the store. Stale
// resolutions (an older event's refresh finishing after a newer one already
// applied) are discarded via the sequence tag, and nothing is applied after
// teardown or sign-out.
func (s *AuthStore) applyResolvedRole(ctx context.Context, seq uint64, userID string, role Role, promote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.user == nil {
		return
	}
	if seq < s.applied {
		s.logger.Debug("discarding stale role resolution for %s (seq %d < %d)", userID, seq, s.applied)
		return
	}
	s.applied = seq

	s.role = role
	if s.cache != nil {
		s.cache.Write(role)
	}

	if promote && s.status == StatusLoadingProfile {
		s.setStatusLocked(ctx, StatusAuthenticated)
	}

	s.recordActivityLocked(ctx, ActivityEvent{
		EventType: ActivityEventRoleResolved,
		UserID:    userID,
		Role:      role,
	})
}

func (s *AuthStore) applySignedOut(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.user = nil
	s.role = ""
	s.errMsg = ""
	if s.cache != nil {
		s.cache.Clear()
	}
	s.setStatusLocked(ctx, StatusUnauthenticated)

	s.recordActivityLocked(ctx, ActivityEvent{EventType: ActivityEventSignOut})
}

// applyUnauthenticated handles the no-session bootstrap outcomes. The cache
// is only cleared when the collaborator positively reported no session;
// a failed query leaves the provisional cache intact for the next attempt.
func (s *AuthStore) applyUnauthenticated(ctx context.Context, clearCache bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.user = nil
	if clearCache {
		s.role = ""
		if s.cache != nil {
			s.cache.Clear()
		}
	}
	s.setStatusLocked(ctx, StatusUnauthenticated)
}

func (s *AuthStore) applyError(ctx context.Context, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.errMsg = message
	s.setStatusLocked(ctx, StatusError)
	s.logger.Error("auth store entered error state: %s", message)
}

// setStatusLocked mutates the status and emits the transition. Callers hold
// the store mutex.
func (s *AuthStore) setStatusLocked(ctx context.Context, status AuthStatus) {
	if s.status == status {
		return
	}

	from := s.status
	s.status = status

	event := ActivityEvent{
		EventType:  ActivityEventStatusChanged,
		FromStatus: from,
		ToStatus:   status,
		Role:       s.role,
	}
	if s.user != nil {
		event.UserID = s.user.UserID
	}
	s.recordActivityLocked(ctx, event)
}

func (s *AuthStore) recordActivity(ctx context.Context, event ActivityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordActivityLocked(ctx, event)
}

func (s *AuthStore) recordActivityLocked(ctx context.Context, event ActivityEvent) {
	if s.closed {
		return
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := s.sink.Record(ctx, event); err != nil {
		s.logger.Warn("auth store activity sink error: %v", err)
	}
}
