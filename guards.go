package authstate

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// StateReader is the read surface guards need; satisfied by *AuthStore.
type StateReader interface {
	Snapshot() AuthState
}

// RouteGuard gates routes on the auth store's snapshot. Guards never consult
// the network: they read whatever view the store currently exposes, so a
// cached-role fast path renders admin routes without waiting on a lookup.
type RouteGuard struct {
	store        StateReader
	logger       Logger
	signInPath   string
	ErrorHandler func(c router.Context, err error) error
}

// GuardOption customizes RouteGuard construction.
type GuardOption func(*RouteGuard)

// WithGuardLogger overrides the guard logger.
func WithGuardLogger(logger Logger) GuardOption {
	return func(g *RouteGuard) {
		g.logger = normalizeLogger(logger)
	}
}

// WithGuardSignInPath overrides where unauthenticated GETs are redirected.
func WithGuardSignInPath(path string) GuardOption {
	return func(g *RouteGuard) {
		if path != "" {
			g.signInPath = path
		}
	}
}

// WithGuardErrorHandler overrides how guard rejections are rendered.
func WithGuardErrorHandler(handler func(c router.Context, err error) error) GuardOption {
	return func(g *RouteGuard) {
		if handler != nil {
			g.ErrorHandler = handler
		}
	}
}

// NewRouteGuard creates a guard over the given state reader.
func NewRouteGuard(store StateReader, opts ...GuardOption) *RouteGuard {
	g := &RouteGuard{
		store:      store,
		logger:     defLogger{},
		signInPath: "/signin",
	}

	g.ErrorHandler = g.defaultErrorHandler

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// RequireAuthenticated admits any authenticated session.
func (g *RouteGuard) RequireAuthenticated() router.MiddlewareFunc {
	return g.require("")
}

// RequireAdmin admits admin and superadmin sessions.
func (g *RouteGuard) RequireAdmin() router.MiddlewareFunc {
	return g.require(RoleAdmin)
}

// RequireSuperAdmin admits superadmin sessions only.
func (g *RouteGuard) RequireSuperAdmin() router.MiddlewareFunc {
	return g.require(RoleSuperAdmin)
}

func (g *RouteGuard) require(minRole Role) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			state := g.store.Snapshot()

			if err := EvaluateGuard(state, minRole); err != nil {
				return g.ErrorHandler(c, err)
			}

			c.SetContext(WithStateContext(c.Context(), state))
			return next(c)
		}
	}
}

// EvaluateGuard is the guard decision core: given a snapshot and a minimum
// role (empty for authentication-only), it returns nil when the request may
// proceed. A store still loading counts as unauthenticated; it is the
// caller's choice to retry once the bootstrap settles.
func EvaluateGuard(state AuthState, minRole Role) error {
	if !state.IsAuthenticated {
		return guardError(ErrAuthRequired, map[string]any{
			"status": string(state.Status),
		})
	}

	if minRole != "" && !state.Role.IsAtLeast(minRole) {
		return guardError(ErrRoleForbidden, map[string]any{
			"role":     string(state.Role),
			"required": string(minRole),
		})
	}

	return nil
}

func guardError(sentinel *goerrors.Error, metadata map[string]any) error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = sentinel
	return clone.WithMetadata(metadata)
}

func (g *RouteGuard) defaultErrorHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "route guard rejected request").
			WithCode(goerrors.CodeUnauthorized)
	}

	g.logger.Info(
		"Route guard rejected %s: %s (%s) %s",
		c.OriginalURL(),
		richErr.Message,
		richErr.TextCode,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	if richErr.TextCode == textCodeAuthRequired && c.Method() == string(router.GET) {
		return c.Redirect(g.signInPath, http.StatusFound)
	}

	return c.Status(richErr.Code).SendString(richErr.Message)
}
