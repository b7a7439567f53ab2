// Package gotrue implements authstate.IdentityClient against a
// GoTrue-compatible authentication API: password sign-in, sign-out, session
// tracking, and a token-refresh loop that feeds the session event stream.
package gotrue

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	authstate "github.com/loudkitchen/go-authstate"
)

// Config configures the GoTrue client.
type Config struct {
	// BaseURL is the auth API root, e.g. https://project.example.co/auth/v1.
	BaseURL string

	// APIKey is the public (anon) API key sent with every request.
	APIKey string

	// JWKSURL overrides the JWKS endpoint used by the token validator.
	// Defaults to BaseURL + "/.well-known/jwks.json".
	JWKSURL string

	// JWTSecret enables HS256 validation of access tokens issued with a
	// shared secret. When empty, the validator uses JWKS.
	JWTSecret string

	// HTTPClient overrides the transport; defaults to a 30s-timeout client.
	HTTPClient *http.Client

	// Logger overrides the client logger.
	Logger authstate.Logger

	// RefreshLeeway is how long before access-token expiry the refresh
	// loop renews the session.
	RefreshLeeway time.Duration

	// JWKSRefreshInterval is how often the validator re-fetches key
	// material.
	JWKSRefreshInterval time.Duration
}

func (c Config) validate() error {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return fmt.Errorf("gotrue: base URL is required")
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("gotrue: invalid base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("gotrue: invalid base URL: %s", base)
	}

	return nil
}

func (c Config) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func (c Config) jwksURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return c.endpoint("/.well-known/jwks.json")
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c Config) refreshLeeway() time.Duration {
	if c.RefreshLeeway > 0 {
		return c.RefreshLeeway
	}
	return 60 * time.Second
}
