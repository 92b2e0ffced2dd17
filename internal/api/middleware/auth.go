package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/CaioWing/apkharbor/internal/auth"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	CIKey     contextKey = "ci_token"
)

func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", `{"error":"missing authorization header"}`
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return "", `{"error":"invalid authorization format"}`
	}
	return token, ""
}

func ManagementAuth(jwtMgr *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, problem := bearerToken(r)
			if problem != "" {
				http.Error(w, problem, http.StatusUnauthorized)
				return
			}

			claims, err := jwtMgr.Validate(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CIAuth accepts requests carrying one of the configured CI tokens.
func CIAuth(tokens *auth.TokenSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, problem := bearerToken(r)
			if problem != "" {
				http.Error(w, problem, http.StatusUnauthorized)
				return
			}

			id, ok := tokens.Match(token)
			if !ok {
				http.Error(w, `{"error":"invalid CI token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CIKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Actor returns who is making the request and whether it came through the
// management or the CI API.
func Actor(ctx context.Context) (name, actorType string) {
	if uid, ok := ctx.Value(UserIDKey).(string); ok && uid != "" {
		return uid, "management"
	}
	if id, ok := ctx.Value(CIKey).(string); ok && id != "" {
		return id, "ci"
	}
	return "anonymous", "system"
}
