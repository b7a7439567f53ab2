package gotrue

import (
	"context"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	authstate "github.com/loudkitchen/go-authstate"
)

// Claims are the validated access-token claims this package cares about.
type Claims struct {
	UserID    string
	Email     string
	Role      authstate.Role
	ExpiresAt time.Time
}

// TokenValidator validates GoTrue-issued access tokens, either against the
// service's JWKS endpoint or, for deployments signing with a shared secret,
// via HS256.
type TokenValidator struct {
	config Config
	jwks   *keyfunc.JWKS
}

// NewTokenValidator creates a validator. When the config carries a
// JWTSecret the JWKS endpoint is never contacted.
func NewTokenValidator(ctx context.Context, cfg Config) (*TokenValidator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	v := &TokenValidator{config: cfg}

	if cfg.JWTSecret != "" {
		return v, nil
	}

	refreshInterval := cfg.JWKSRefreshInterval
	if refreshInterval == 0 {
		refreshInterval = time.Hour
	}

	jwks, err := keyfunc.Get(cfg.jwksURL(), keyfunc.Options{
		Ctx:             ctx,
		RefreshInterval: refreshInterval,
		RefreshErrorHandler: func(err error) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("gotrue: JWKS refresh failed: %v", err)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gotrue: failed to fetch JWKS: %w", err)
	}

	v.jwks = jwks
	return v, nil
}

// Validate parses and verifies a token string, returning its claims.
func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	var token *jwt.Token
	var err error

	claims := jwt.MapClaims{}

	if v.config.JWTSecret != "" {
		token, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			return []byte(v.config.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
	} else {
		token, err = jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc,
			jwt.WithValidMethods([]string{"RS256", "ES256"}))
	}
	if err != nil {
		return nil, fmt.Errorf("gotrue: token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("gotrue: token is not valid")
	}

	return claimsFromMap(claims)
}

// Close stops the background JWKS refresh, if any.
func (v *TokenValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func claimsFromMap(claims jwt.MapClaims) (*Claims, error) {
	out := &Claims{}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("gotrue: token is missing subject claim")
	}
	out.UserID = sub

	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}

	// GoTrue puts application data under app_metadata; a role claim there
	// is advisory only, the authoritative role comes from the profile row.
	if meta, ok := claims["app_metadata"].(map[string]any); ok {
		if role, ok := meta["role"].(string); ok {
			out.Role = authstate.NormalizeRole(role)
		}
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	return out, nil
}
