package authstate_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authstate "github.com/loudkitchen/go-authstate"
)

type storeFixture struct {
	identity *fakeIdentity
	roles    *scriptedRoles
	cookies  *spyCookieStore
	durable  *authstate.MemoryStore
	cache    *authstate.RoleCache
	sink     *captureSink
	store    *authstate.AuthStore
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()

	f := &storeFixture{
		identity: newFakeIdentity(),
		roles:    &scriptedRoles{role: authstate.RoleUser},
		cookies:  newSpyCookieStore(),
		durable:  authstate.NewMemoryStore(),
		sink:     &captureSink{},
	}
	f.cache = authstate.NewRoleCache(f.cookies, f.durable)

	return f
}

func (f *storeFixture) build(t *testing.T, opts ...authstate.ResolverOption) *authstate.AuthStore {
	t.Helper()

	resolverOpts := append([]authstate.ResolverOption{
		authstate.WithResolveTimeout(2 * time.Second),
	}, opts...)

	resolver := authstate.NewRoleResolver(f.roles, resolverOpts...)
	f.store = authstate.New(f.identity, resolver, f.cache,
		authstate.WithStoreActivitySink(f.sink),
	)
	t.Cleanup(f.store.Close)
	return f.store
}

func (f *storeFixture) seedCookieRole(t *testing.T, role authstate.Role) {
	t.Helper()
	require.NoError(t, f.cookies.MemoryCookieStore.Set(authstate.RoleStorageKey, string(role), time.Hour))
}

func testSession() *authstate.Session {
	return &authstate.Session{UserID: uuid.New().String(), Email: "chef@loudkitchen.test"}
}

func TestBootstrapNoSessionEndsUnauthenticated(t *testing.T) {
	f := newStoreFixture(t)
	f.seedCookieRole(t, authstate.RoleAdmin)

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))

	state := store.Snapshot()
	assert.Equal(t, authstate.StatusUnauthenticated, state.Status)
	assert.Nil(t, state.User)
	assert.False(t, state.IsAdmin)
	assert.False(t, state.IsLoading)

	// A positive "no session" answer clears the provisional cache.
	_, ok := f.cache.Read()
	assert.False(t, ok)
}

func TestBootstrapSessionQueryFailureFailsClosed(t *testing.T) {
	f := newStoreFixture(t)
	f.seedCookieRole(t, authstate.RoleAdmin)
	f.identity.sessionErr = errors.New("transport down")

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))

	state := store.Snapshot()
	assert.Equal(t, authstate.StatusUnauthenticated, state.Status)
	assert.Nil(t, state.User)
	assert.Empty(t, state.Err, "infrastructure failure must not surface as ERROR")

	// A failed query leaves the cache intact for the next attempt.
	role, ok := f.cache.Read()
	assert.True(t, ok)
	assert.Equal(t, authstate.RoleAdmin, role)
}

func TestBootstrapCachedRoleFastPath(t *testing.T) {
	f := newStoreFixture(t)
	f.seedCookieRole(t, authstate.RoleAdmin)
	f.identity.session = testSession()

	release := make(chan struct{})
	f.roles.block = release
	f.roles.role = authstate.RoleAdmin

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))

	// Status settles without waiting on the lookup.
	state := store.Snapshot()
	assert.Equal(t, authstate.StatusAuthenticated, state.Status)
	assert.True(t, state.IsAdmin)
	assert.Equal(t, f.identity.session.UserID, state.User.UserID)
	assert.NotContains(t, f.sink.statuses(), authstate.StatusLoadingProfile)

	close(release)

	assert.Eventually(t, func() bool {
		return f.sink.count(authstate.ActivityEventRoleResolved) == 1
	}, time.Second, 5*time.Millisecond)

	// Background refresh never moves status backward.
	state = store.Snapshot()
	assert.Equal(t, authstate.StatusAuthenticated, state.Status)
	assert.True(t, state.IsAdmin)
	assert.NotContains(t, f.sink.statuses(), authstate.StatusLoadingProfile)
}

func TestBootstrapNoCachedRoleBlocksOnResolution(t *testing.T) {
	f := newStoreFixture(t)
	f.identity.session = testSession()
	f.roles.role = authstate.RoleSuperAdmin
	f.roles.delay = 50 * time.Millisecond

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))

	state := store.Snapshot()
	assert.Equal(t, authstate.StatusAuthenticated, state.Status)
	assert.True(t, state.IsSuperAdmin)

	assert.Equal(t, []authstate.AuthStatus{
		authstate.StatusLoadingProfile,
		authstate.StatusAuthenticated,
	}, f.sink.statuses())

	// The authoritative role is written through to both stores.
	role, ok := f.cache.Read()
	require.True(t, ok)
	assert.Equal(t, authstate.RoleSuperAdmin, role)
}

func TestBootstrapPanicSetsErrorStatus(t *testing.T) {
	f := newStoreFixture(t)
	f.identity.panicOnGet = true

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))

	state := store.Snapshot()
	assert.Equal(t, authstate.StatusError, state.Status)
	assert.Contains(t, state.Err, "identity transport exploded")
}

func TestSignOutClearsLocalStateWhenRemoteFails(t *testing.T) {
	f := newStoreFixture(t)
	f.identity.session = testSession()
	f.roles.role = authstate.RoleAdmin

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))
	require.Equal(t, authstate.StatusAuthenticated, store.Snapshot().Status)

	f.identity.signOutErr = errors.New("network down")

	err := store.SignOut(context.Background())
	assert.Error(t, err)

	state := store.Snapshot()
	assert.Equal(t, authstate.StatusUnauthenticated, state.Status)
	assert.Nil(t, state.User)
	assert.Empty(t, state.Role)

	_, ok := f.cache.Read()
	assert.False(t, ok)
}

func TestListenerSignInEventAuthenticates(t *testing.T) {
	f := newStoreFixture(t)
	f.roles.role = authstate.RoleUser

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))
	require.Equal(t, authstate.StatusUnauthenticated, store.Snapshot().Status)

	session := testSession()
	f.identity.emit(authstate.SessionEvent{Kind: authstate.EventSignedIn, Session: session})

	assert.Eventually(t, func() bool {
		state := store.Snapshot()
		return state.Status == authstate.StatusAuthenticated && state.User != nil
	}, time.Second, 5*time.Millisecond)

	state := store.Snapshot()
	assert.Equal(t, session.UserID, state.User.UserID)
	assert.Equal(t, authstate.RoleUser, state.Role)
	assert.False(t, state.IsAdmin)
}

func TestListenerSignOutEventClearsState(t *testing.T) {
	f := newStoreFixture(t)
	f.identity.session = testSession()
	f.roles.role = authstate.RoleAdmin

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))
	require.True(t, store.Snapshot().IsAuthenticated)

	f.identity.emit(authstate.SessionEvent{Kind: authstate.EventSignedOut})

	assert.Eventually(t, func() bool {
		return store.Snapshot().Status == authstate.StatusUnauthenticated
	}, time.Second, 5*time.Millisecond)

	state := store.Snapshot()
	assert.Nil(t, state.User)
	assert.Empty(t, state.Role)

	_, ok := f.cache.Read()
	assert.False(t, ok)
}

func TestListenerIgnoresTransientNullSessionEvents(t *testing.T) {
	f := newStoreFixture(t)
	f.identity.session = testSession()
	f.roles.role = authstate.RoleAdmin

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))
	before := store.Snapshot()
	require.Equal(t, authstate.StatusAuthenticated, before.Status)

	f.identity.emit(authstate.SessionEvent{Kind: authstate.EventTokenRefreshed})

	assert.Eventually(t, func() bool {
		return f.sink.count(authstate.ActivityEventSessionIgnored) == 1
	}, time.Second, 5*time.Millisecond)

	state := store.Snapshot()
	assert.Equal(t, before.Status, state.Status)
	assert.Equal(t, before.Role, state.Role)
	assert.Equal(t, before.User.UserID, state.User.UserID)
}

func TestSessionCarryingEventRefreshesRole(t *testing.T) {
	f := newStoreFixture(t)
	session := testSession()
	f.identity.session = session
	f.roles.role = authstate.RoleUser

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))
	require.Equal(t, authstate.RoleUser, store.Snapshot().Role)

	f.roles.setRole(authstate.RoleAdmin)
	f.identity.emit(authstate.SessionEvent{Kind: authstate.EventTokenRefreshed, Session: session})

	assert.Eventually(t, func() bool {
		return store.Snapshot().Role == authstate.RoleAdmin
	}, time.Second, 5*time.Millisecond)

	// Fast path: a cached role means no dip back into LOADING_PROFILE.
	statuses := f.sink.statuses()
	assert.Equal(t, authstate.StatusAuthenticated, statuses[len(statuses)-1])
	assert.Equal(t, 1, countStatus(statuses, authstate.StatusLoadingProfile))
}

func TestSignInSurfacesEmailNotConfirmed(t *testing.T) {
	f := newStoreFixture(t)
	f.identity.signInErr = errors.New("Email not confirmed")

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))

	err := store.SignIn(context.Background(), "chef@loudkitchen.test", "secret123")
	require.Error(t, err)
	assert.True(t, authstate.IsEmailNotConfirmedError(err))

	assert.Equal(t, authstate.StatusUnauthenticated, store.Snapshot().Status)
}

func TestSignInSurfacesInvalidCredentials(t *testing.T) {
	f := newStoreFixture(t)
	f.identity.signInErr = errors.New("Invalid login credentials")

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))

	err := store.SignIn(context.Background(), "chef@loudkitchen.test", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, authstate.ErrInvalidCredentials)
}

func TestSignInValidatesPayload(t *testing.T) {
	f := newStoreFixture(t)

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))

	err := store.SignIn(context.Background(), "not-an-email", "secret123")
	require.Error(t, err)
	assert.Equal(t, 0, f.identity.signInCallCount())

	err = store.SignIn(context.Background(), "chef@loudkitchen.test", "")
	require.Error(t, err)
	assert.Equal(t, 0, f.identity.signInCallCount())
}

func TestSignInSuccessDoesNotMutateState(t *testing.T) {
	f := newStoreFixture(t)
	f.identity.signInSession = testSession()

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))

	require.NoError(t, store.SignIn(context.Background(), "chef@loudkitchen.test", "secret123"))

	// The listener's notification is the sole transition path.
	state := store.Snapshot()
	assert.Equal(t, authstate.StatusUnauthenticated, state.Status)
	assert.Nil(t, state.User)
}

func TestRefreshRoleRequiresSession(t *testing.T) {
	f := newStoreFixture(t)

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))

	err := store.RefreshRole(context.Background())
	assert.ErrorIs(t, err, authstate.ErrNoSession)
}

func TestRefreshRoleOverwritesCachedRole(t *testing.T) {
	f := newStoreFixture(t)
	f.identity.session = testSession()
	f.roles.role = authstate.RoleUser

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))
	require.Equal(t, authstate.RoleUser, store.Snapshot().Role)

	f.roles.setRole(authstate.RoleAdmin)
	require.NoError(t, store.RefreshRole(context.Background()))

	state := store.Snapshot()
	assert.Equal(t, authstate.RoleAdmin, state.Role)
	assert.Equal(t, authstate.StatusAuthenticated, state.Status)

	role, ok := f.cache.Read()
	require.True(t, ok)
	assert.Equal(t, authstate.RoleAdmin, role)
}

func TestCloseMakesInFlightResolutionNoOp(t *testing.T) {
	f := newStoreFixture(t)
	f.seedCookieRole(t, authstate.RoleAdmin)
	f.identity.session = testSession()

	release := make(chan struct{})
	f.roles.block = release
	f.roles.role = authstate.RoleUser

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))
	require.Equal(t, authstate.StatusAuthenticated, store.Snapshot().Status)

	writesBefore := f.cookies.writeCount()
	eventsBefore := len(f.sink.all())

	store.Close()
	close(release)

	// Give the in-flight continuation a chance to (wrongly) fire.
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, writesBefore, f.cookies.writeCount(), "no cache writes after teardown")
	assert.Equal(t, eventsBefore, len(f.sink.all()), "no sink events after teardown")
	assert.Equal(t, authstate.RoleAdmin, store.Snapshot().Role)
}

func TestStaleBackgroundResolutionIsDiscarded(t *testing.T) {
	f := newStoreFixture(t)
	session := testSession()
	f.identity.session = session
	f.seedCookieRole(t, authstate.RoleUser)

	var calls int32
	releaseFirst := make(chan struct{})
	provider := authstate.RoleProviderFunc(func(ctx context.Context, userID string) (authstate.Role, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-releaseFirst
			return authstate.RoleStaff, nil
		}
		return authstate.RoleAdmin, nil
	})

	resolver := authstate.NewRoleResolver(provider, authstate.WithResolveTimeout(2*time.Second))
	store := authstate.New(f.identity, resolver, f.cache, authstate.WithStoreActivitySink(f.sink))
	t.Cleanup(store.Close)

	require.NoError(t, store.Start(context.Background()))

	// Wait for the bootstrap's background refresh to be the blocked call.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, time.Millisecond)

	// A newer session event triggers a second resolution that wins first.
	f.identity.emit(authstate.SessionEvent{Kind: authstate.EventTokenRefreshed, Session: session})

	assert.Eventually(t, func() bool {
		return store.Snapshot().Role == authstate.RoleAdmin
	}, time.Second, 5*time.Millisecond)

	close(releaseFirst)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, authstate.RoleAdmin, store.Snapshot().Role,
		"older resolution must not clobber the newer one")
}

func TestStartTwiceFails(t *testing.T) {
	f := newStoreFixture(t)

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))
	assert.Error(t, store.Start(context.Background()))
}

func TestStartAfterCloseFails(t *testing.T) {
	f := newStoreFixture(t)

	store := f.build(t)
	store.Close()
	assert.ErrorIs(t, store.Start(context.Background()), authstate.ErrStoreClosed)
}

func TestResendVerificationEmailProxies(t *testing.T) {
	f := newStoreFixture(t)

	store := f.build(t)
	require.NoError(t, store.Start(context.Background()))

	require.NoError(t, store.ResendVerificationEmail(context.Background(), "chef@loudkitchen.test"))
	assert.Equal(t, []string{"chef@loudkitchen.test"}, f.identity.resendCalls)
}

func countStatus(statuses []authstate.AuthStatus, status authstate.AuthStatus) int {
	n := 0
	for _, s := range statuses {
		if s == status {
			n++
		}
	}
	return n
}
