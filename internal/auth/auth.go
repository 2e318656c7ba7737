// Package auth enforces bearer JWT authentication on the HTTP API.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Error texts are returned to clients as the response detail.
var (
	ErrMissingToken       = errors.New("Missing bearer token")
	ErrInvalidToken       = errors.New("Invalid or expired token")
	ErrInvalidAudience    = errors.New("Invalid token audience")
	ErrInvalidIssuer      = errors.New("Invalid token issuer")
	ErrInsufficientAccess = errors.New("Insufficient permissions")
)

// Config holds authentication configuration.
type Config struct {
	Enabled       bool
	Secret        []byte
	Algorithm     string // HS256, HS384 or HS512
	Audience      string
	Issuer        string
	RequiredRoles []string
	// ExemptPaths are always public regardless of auth configuration.
	ExemptPaths map[string]bool
}

// Claims is the token payload the API understands.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// User is the authenticated principal attached to the request context.
type User struct {
	Subject string
	Roles   []string
}

type ctxKey struct{}

// UserFromContext returns the principal stored by Middleware.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok
}

// Verifier validates bearer tokens against a Config.
type Verifier struct {
	cfg    Config
	parser *jwt.Parser
}

// NewVerifier builds a verifier restricted to the configured algorithm.
func NewVerifier(cfg Config) *Verifier {
	alg := strings.ToUpper(cfg.Algorithm)
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{alg})}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	cfg.Algorithm = alg
	return &Verifier{cfg: cfg, parser: jwt.NewParser(opts...)}
}

// Verify parses token and checks its signature, expiry, audience and issuer.
func (v *Verifier) Verify(token string) (User, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return User{}, ErrInvalidAudience
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return User{}, ErrInvalidIssuer
	default:
		return User{}, ErrInvalidToken
	}
	return User{Subject: claims.Subject, Roles: claims.Roles}, nil
}

// Authorize checks that user holds every required role.
func (v *Verifier) Authorize(user User) error {
	if len(v.cfg.RequiredRoles) == 0 {
		return nil
	}
	held := make(map[string]bool, len(user.Roles))
	for _, r := range user.Roles {
		held[r] = true
	}
	for _, r := range v.cfg.RequiredRoles {
		if !held[r] {
			return ErrInsufficientAccess
		}
	}
	return nil
}

// Sign issues a token for claims. Used by tooling and tests.
func (v *Verifier) Sign(claims Claims) (string, error) {
	method := jwt.GetSigningMethod(v.cfg.Algorithm)
	if method == nil {
		return "", ErrInvalidToken
	}
	return jwt.NewWithClaims(method, claims).SignedString(v.cfg.Secret)
}

// Middleware returns an HTTP middleware enforcing bearer auth on non-exempt
// paths. Every authenticated request needs a valid token; write methods
// additionally need the configured roles.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	v := NewVerifier(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, User{Subject: "anonymous"})))
				return
			}
			if cfg.ExemptPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				deny(w, http.StatusUnauthorized, ErrMissingToken)
				return
			}
			user, err := v.Verify(token)
			if err != nil {
				deny(w, http.StatusUnauthorized, err)
				return
			}
			if isWrite(r.Method) {
				if err := v.Authorize(user); err != nil {
					deny(w, http.StatusForbidden, err)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
		})
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers
// on WebSocket handshakes, so upgrades may pass ?access_token= instead.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		token := r.URL.Query().Get("access_token")
		return token, token != ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func deny(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": err.Error()})
}
