package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
	"github.com/kkkkikiki/surveyreview/internal/model"
)

type principalKey struct{}

// Claims is the JWT payload issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewAuthenticator creates an Authenticator. An empty secret rejects every token.
func NewAuthenticator(secret, issuer, audience string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Parse validates a token and returns the caller.
func (a *Authenticator) Parse(token string) (model.Principal, error) {
	if len(a.secret) == 0 {
		return model.Principal{}, errors.New("authentication is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return model.Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return model.Principal{}, errors.New("token has no subject")
	}
	switch claims.Role {
	case model.RoleAdmin, model.RoleShopOwner:
	default:
		return model.Principal{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return model.Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

// Middleware rejects requests without a valid bearer token and stores the caller in the context.
func (a *Authenticator) Middleware(h *Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				h.writeError(w, r, apperr.Unauthorized("missing bearer token"))
				return
			}
			p, err := a.Parse(strings.TrimSpace(token))
			if err != nil {
				h.writeError(w, r, apperr.New(apperr.KindUnauthorized, "authenticate", err))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
		})
	}
}

// RequireRole allows only the listed roles through. It must run after Middleware.
func RequireRole(h *Handler, roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok || !slices.Contains(roles, p.Role) {
				h.writeError(w, r, apperr.Forbidden("role not allowed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFrom returns the authenticated caller stored by Middleware.
func PrincipalFrom(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(model.Principal)
	return p, ok
}
