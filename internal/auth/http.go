// ABOUTME: HTTP middleware for bearer-token authentication on API endpoints
// ABOUTME: Resolves the member, stamps last activity and adds the identity to context

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ActivityRecorder stamps a member's last activity time.
// store.MemberStore satisfies it.
type ActivityRecorder interface {
	TouchMember(ctx context.Context, id string, at time.Time) error
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// HTTPAuthMiddleware creates an HTTP middleware that resolves the caller's
// identity and adds an AuthContext to the request context. When activity is
// non-nil every authenticated request stamps the member's last activity;
// failures there are logged and never block the request.
func HTTPAuthMiddleware(resolver IdentityResolver, activity ActivityRecorder, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeAuthError(w, errMsg, http.StatusUnauthorized)
				return
			}

			memberID, err := resolver.ResolveIdentity(r.Context(), Credentials{Token: token})
			if err != nil {
				logger.Debug("rejected api request", "path", r.URL.Path, "error", err)
				writeAuthError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			if activity != nil {
				if err := activity.TouchMember(r.Context(), memberID, time.Now()); err != nil {
					logger.Debug("failed to stamp last activity", "member_id", memberID, "error", err)
				}
			}

			ctx := WithAuth(r.Context(), &AuthContext{MemberID: memberID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
