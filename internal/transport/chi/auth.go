package chi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
	logpkg "github.com/kira-labs/kira/internal/logger"
)

// Roles carried in the JWT role claim.
const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
	RoleUser    = "user"
)

var knownRoles = map[string]struct{}{RoleAdmin: {}, RoleAnalyst: {}, RoleUser: {}}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    string
}

// devPrincipal is attached to requests when authentication is disabled.
var devPrincipal = Principal{Subject: "dev", Role: RoleAdmin}

// apiKeyPrincipal is attached to requests authenticated by a static API key.
var apiKeyPrincipal = Principal{Subject: "api-key", Role: RoleAdmin}

type principalKey struct{}

// ContextWithPrincipal stores the caller in the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller set by RequireRoles.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Claims is the expected JWT payload: sub, role, iss, aud, exp.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthError is an authentication failure carrying its client-facing message.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return domain.ErrUnauthorized }

var (
	errMissingToken = &AuthError{Message: "Missing bearer token"}
	errInvalidToken = &AuthError{Message: "Invalid token"}
	errTokenExpired = &AuthError{Message: "Token expired"}
)

// AuthConfig configures the Authenticator.
type AuthConfig struct {
	APIKeys   []string
	JWTSecret string
	Issuer    string
	Audience  string
	// Disabled lets every request through as an admin. Used by the dev environment.
	Disabled bool
}

// Authenticator validates Bearer tokens: static API keys first, then HS256 JWTs.
type Authenticator struct {
	apiKeys  map[string]struct{}
	secret   []byte
	parser   *jwt.Parser
	disabled bool
}

// NewAuthenticator creates an Authenticator. With no API keys and no JWT secret,
// authentication is disabled.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		apiKeys:  keys,
		secret:   []byte(cfg.JWTSecret),
		parser:   jwt.NewParser(opts...),
		disabled: cfg.Disabled || (len(keys) == 0 && cfg.JWTSecret == ""),
	}
}

// Disabled reports whether every request is let through.
func (a *Authenticator) Disabled() bool { return a.disabled }

// Authenticate resolves a raw token to a Principal.
func (a *Authenticator) Authenticate(token string) (Principal, error) {
	if token == "" {
		return Principal{}, errMissingToken
	}
	if _, ok := a.apiKeys[token]; ok {
		return apiKeyPrincipal, nil
	}
	if len(a.secret) == 0 {
		return Principal{}, errInvalidToken
	}

	var claims Claims
	_, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Principal{}, errTokenExpired
	case err != nil:
		return Principal{}, errInvalidToken
	}

	if claims.Subject == "" {
		return Principal{}, errInvalidToken
	}
	if _, ok := knownRoles[claims.Role]; !ok {
		return Principal{}, errInvalidToken
	}
	return Principal{Subject: claims.Subject, Role: claims.Role}, nil
}

// RequireRoles returns a middleware that admits only callers holding one of roles.
func (a *Authenticator) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.disabled {
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), devPrincipal)))
				return
			}

			p, err := a.Authenticate(bearerToken(r))
			if err != nil {
				var ae *AuthError
				msg := errInvalidToken.Message
				if errors.As(err, &ae) {
					msg = ae.Message
				}
				writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, msg)
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				writeError(w, r, http.StatusForbidden, CodeForbidden, msgInsufficientRoles)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), p)
			reqLogger := logpkg.FromContext(ctx).With(zap.String("subject", p.Subject), zap.String("role", p.Role))
			ctx = logpkg.ContextWithLogger(ctx, reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token of a "Bearer" Authorization header, or "".
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
