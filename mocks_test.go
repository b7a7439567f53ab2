package authstate_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	authstate "github.com/loudkitchen/go-authstate"
)

var errAccessDenied = errors.New("storage access denied")

// MockRoleProvider implements authstate.RoleProvider
type MockRoleProvider struct {
	mock.Mock
}

func (m *MockRoleProvider) RoleByUserID(ctx context.Context, userID string) (authstate.Role, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(authstate.Role), args.Error(1)
}

// scriptedRoles is a RoleProvider with controllable latency for timing tests.
type scriptedRoles struct {
	mu    sync.Mutex
	role  authstate.Role
	err   error
	delay time.Duration
	block chan struct{}
	calls int
}

func (p *scriptedRoles) RoleByUserID(ctx context.Context, userID string) (authstate.Role, error) {
	p.mu.Lock()
	p.calls++
	role, err, delay, block := p.role, p.err, p.delay, p.block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return role, err
}

func (p *scriptedRoles) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedRoles) setRole(role authstate.Role) {
	p.mu.Lock()
	p.role = role
	p.mu.Unlock()
}

// fakeIdentity is a scriptable authstate.IdentityClient with an event stream.
type fakeIdentity struct {
	mu sync.Mutex

	session    *authstate.Session
	sessionErr error
	panicOnGet bool

	signInSession *authstate.Session
	signInErr     error
	signOutErr    error

	signInCalls  int
	signOutCalls int
	resendCalls  []string

	sub    *fakeSubscription
	subErr error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		sub: &fakeSubscription{ch: make(chan authstate.SessionEvent, 16)},
	}
}

func (f *fakeIdentity) GetSession(ctx context.Context) (*authstate.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnGet {
		panic("identity transport exploded")
	}
	return f.session, f.sessionErr
}

func (f *fakeIdentity) SignInWithPassword(ctx context.Context, email, password string) (*authstate.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signInCalls++
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.signInSession, nil
}

func (f *fakeIdentity) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	return f.signOutErr
}

func (f *fakeIdentity) OnSessionChange() (authstate.Subscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	return f.sub, nil
}

func (f *fakeIdentity) ResendVerificationEmail(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resendCalls = append(f.resendCalls, email)
	return nil
}

func (f *fakeIdentity) emit(event authstate.SessionEvent) {
	f.sub.ch <- event
}

func (f *fakeIdentity) signInCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signInCalls
}

type fakeSubscription struct {
	ch   chan authstate.SessionEvent
	once sync.Once
}

func (s *fakeSubscription) Events() <-chan authstate.SessionEvent {
	return s.ch
}

func (s *fakeSubscription) Unsubscribe() {
	s.once.Do(func() { close(s.ch) })
}

// captureSink records activity events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []authstate.ActivityEvent
}

func (s *captureSink) Record(ctx context.Context, event authstate.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) all() []authstate.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]authstate.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

// statuses returns the ordered ToStatus values of status transitions.
func (s *captureSink) statuses() []authstate.AuthStatus {
	out := []authstate.AuthStatus{}
	for _, event := range s.all() {
		if event.EventType == authstate.ActivityEventStatusChanged {
			out = append(out, event.ToStatus)
		}
	}
	return out
}

func (s *captureSink) count(eventType authstate.ActivityEventType) int {
	n := 0
	for _, event := range s.all() {
		if event.EventType == eventType {
			n++
		}
	}
	return n
}

// spyCookieStore wraps a MemoryCookieStore counting mutations.
type spyCookieStore struct {
	*authstate.MemoryCookieStore
	mu      sync.Mutex
	writes  int
	deletes int
}

func newSpyCookieStore() *spyCookieStore {
	return &spyCookieStore{MemoryCookieStore: authstate.NewMemoryCookieStore()}
}

func (s *spyCookieStore) Set(name, value string, ttl time.Duration) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.MemoryCookieStore.Set(name, value, ttl)
}

func (s *spyCookieStore) Delete(name string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.MemoryCookieStore.Delete(name)
}

func (s *spyCookieStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// failingCookieStore errors on every access.
type failingCookieStore struct{}

func (failingCookieStore) Get(string) (string, error) {
	return "", errAccessDenied
}

func (failingCookieStore) Set(string, string, time.Duration) error {
	return errAccessDenied
}

func (failingCookieStore) Delete(string) error {
	return errAccessDenied
}
