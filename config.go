package authstate

import (
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// Config carries the tunables hosts usually set from the environment. Zero
// values fall back to the package defaults, so an empty Config is usable.
type Config struct {
	// StorageKey is the slot the cached role is persisted under.
	StorageKey string `env:"AUTH_STORAGE_KEY" envDefault:"loudkitchen_user_role"`

	// CookieTTL is the role cookie lifetime.
	CookieTTL time.Duration `env:"AUTH_COOKIE_TTL" envDefault:"168h"`

	// ResolveTimeout bounds the authoritative role lookup.
	ResolveTimeout time.Duration `env:"AUTH_RESOLVE_TIMEOUT" envDefault:"10s"`

	// FallbackRole is the least-privilege role used when resolution fails.
	FallbackRole string `env:"AUTH_FALLBACK_ROLE" envDefault:"user"`

	// SignInPath is where route guards redirect unauthenticated GETs.
	SignInPath string `env:"AUTH_SIGNIN_PATH" envDefault:"/signin"`

	// DurableStorePath, if set, enables the file-backed durable store.
	DurableStorePath string `env:"AUTH_DURABLE_STORE_PATH"`

	// AuthBaseURL is the identity service endpoint (provider/gotrue).
	AuthBaseURL string `env:"AUTH_BASE_URL"`

	// AuthAPIKey is the public API key sent with identity requests.
	AuthAPIKey string `env:"AUTH_API_KEY"`
}

// LoadConfig reads Config from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to parse auth config from env")
	}
	return cfg, nil
}

// CacheOptions translates the config into RoleCache options.
func (c Config) CacheOptions() []RoleCacheOption {
	opts := []RoleCacheOption{}
	if c.StorageKey != "" {
		opts = append(opts, WithCacheKey(c.StorageKey))
	}
	if c.CookieTTL > 0 {
		opts = append(opts, WithCacheTTL(c.CookieTTL))
	}
	return opts
}

// ResolverOptions translates the config into RoleResolver options.
func (c Config) ResolverOptions() []ResolverOption {
	opts := []ResolverOption{}
	if c.ResolveTimeout > 0 {
		opts = append(opts, WithResolveTimeout(c.ResolveTimeout))
	}
	if role, ok := ParseRole(c.FallbackRole); ok {
		opts = append(opts, WithResolverFallback(role))
	}
	return opts
}
