package authstate

import (
	"context"
	"time"
)

// DefaultResolveTimeout bounds how long a role lookup may run before the
// resolver falls back to the default role.
const DefaultResolveTimeout = 10 * time.Second

// RoleResolver resolves the authoritative role for a user from the remote
// role lookup collaborator, racing the fetch against a timeout. Resolution
// is total: any failure or timeout degrades to the least-privilege default
// instead of surfacing an error, so a slow or unreachable collaborator can
// lower the effective permission level but never hang the caller.
type RoleResolver struct {
	provider RoleProvider
	timeout  time.Duration
	fallback Role
	logger   Logger
	sink     ActivitySink
}

// ResolverOption customizes RoleResolver construction.
type ResolverOption func(*RoleResolver)

// WithResolveTimeout overrides the lookup deadline.
func WithResolveTimeout(timeout time.Duration) ResolverOption {
	return func(r *RoleResolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithResolverFallback overrides the role returned on failure or timeout.
func WithResolverFallback(role Role) ResolverOption {
	return func(r *RoleResolver) {
		if role != "" {
			r.fallback = role
		}
	}
}

// WithResolverLogger overrides the resolver logger.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *RoleResolver) {
		r.logger = normalizeLogger(logger)
	}
}

// WithResolverActivitySink sets the sink notified when resolution defaults.
func WithResolverActivitySink(sink ActivitySink) ResolverOption {
	return func(r *RoleResolver) {
		r.sink = normalizeActivitySink(sink)
	}
}

// NewRoleResolver builds a resolver over the given provider.
func NewRoleResolver(provider RoleProvider, opts ...ResolverOption) *RoleResolver {
	r := &RoleResolver{
		provider: provider,
		timeout:  DefaultResolveTimeout,
		fallback: DefaultRole,
		logger:   defLogger{},
		sink:     noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

type roleResult struct {
	role Role
	err  error
}

// Resolve returns the authoritative role for userID, or the fallback role
// when the lookup errors, returns an empty role, or misses the deadline.
func (r *RoleResolver) Resolve(ctx context.Context, userID string) Role {
	if r.provider == nil || userID == "" {
		return r.fallback
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Buffered so a late lookup completing after the deadline does not
	// leak the goroutine.
	results := make(chan roleResult, 1)

	go func() {
		role, err := r.provider.RoleByUserID(ctx, userID)
		results <- roleResult{role: role, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			r.logger.Debug("role resolve failed for %s, defaulting to %s: %v", userID, r.fallback, res.err)
			r.recordDefault(ctx, userID, "lookup_error", res.err)
			return r.fallback
		}
		role := NormalizeRole(string(res.role))
		if role == "" {
			return r.fallback
		}
		return role
	case <-ctx.Done():
		r.logger.Warn("role resolve timed out for %s, defaulting to %s", userID, r.fallback)
		r.recordDefault(ctx, userID, "timeout", ctx.Err())
		return r.fallback
	}
}

func (r *RoleResolver) recordDefault(ctx context.Context, userID, reason string, cause error) {
	event := ActivityEvent{
		EventType:  ActivityEventRoleDefaulted,
		UserID:     userID,
		Role:       r.fallback,
		OccurredAt: time.Now(),
		Metadata:   map[string]any{"reason": reason},
	}
	if cause != nil {
		event.Metadata["error"] = cause.Error()
	}
	if err := r.sink.Record(ctx, event); err != nil {
		r.logger.Warn("resolver activity sink error: %v", err)
	}
}
