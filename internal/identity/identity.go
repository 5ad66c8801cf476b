// Package identity provides anonymous per-browser chat session identity.
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SessionCookieName = "lawaid_session"
	SessionHeaderName = "X-LawAid-Session-ID"
	sessionCookieAge  = 30 * 24 * time.Hour
)

type contextKey int

const (
	sessionIDKey contextKey = iota
)

// SessionIDFromContext extracts the chat session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID returns a context carrying id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

func isValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func setSessionCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionCookieAge.Seconds()),
		Expires:  time.Now().Add(sessionCookieAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func sessionIDFromRequest(r *http.Request) string {
	if sid := strings.TrimSpace(r.Header.Get(SessionHeaderName)); isValidSessionID(sid) {
		return sid
	}
	if c, err := r.Cookie(SessionCookieName); err == nil && isValidSessionID(c.Value) {
		return c.Value
	}
	return ""
}

// Middleware assigns every browser a session ID cookie and puts the ID into
// the request context. An explicit session header takes precedence for
// non-browser clients.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := sessionIDFromRequest(r)
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			setSessionCookie(w, sessionID, isDev)

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
