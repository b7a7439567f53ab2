package authstate

import "context"

var stateCtxKey = &contextKey{"auth_state"}

type contextKey struct {
	name string
}

// WithStateContext stores the auth snapshot in the given context.
func WithStateContext(ctx context.Context, state AuthState) context.Context {
	return context.WithValue(ctx, stateCtxKey, state)
}

// StateFromContext finds the auth snapshot set by a route guard.
func StateFromContext(ctx context.Context) (AuthState, bool) {
	state, ok := ctx.Value(stateCtxKey).(AuthState)
	return state, ok
}

// IsAdminFromContext is a convenience check for handlers gating admin UI.
func IsAdminFromContext(ctx context.Context) bool {
	state, ok := StateFromContext(ctx)
	return ok && state.IsAdmin
}
