package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/recophone/api/internal/platform/httpx"
	"github.com/recophone/api/internal/platform/requestctx"
)

type adminKey struct{}

// WithAdmin stores the authenticated admin and records the subject for request logs.
func WithAdmin(ctx context.Context, admin Admin) context.Context {
	requestctx.SetSubject(ctx, admin.Email)
	return context.WithValue(ctx, adminKey{}, admin)
}

// AdminFromContext returns the authenticated admin.
func AdminFromContext(ctx context.Context) (Admin, bool) {
	if ctx == nil {
		return Admin{}, false
	}
	admin, ok := ctx.Value(adminKey{}).(Admin)
	return admin, ok
}

// Cookies writes and reads the session cookie.
type Cookies struct {
	Name   string
	Secure bool
}

// Set writes the session cookie.
func (c Cookies) Set(w http.ResponseWriter, token string, expires time.Time, now time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(expires.Sub(now).Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Token returns the cookie value or "".
func (c Cookies) Token(r *http.Request) string {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Authenticate resolves the admin of r, if any.
func Authenticate(r *http.Request, sessions *Sessions, cookies Cookies) (Admin, bool) {
	if sessions == nil {
		return Admin{}, false
	}
	admin, err := sessions.Verify(cookies.Token(r))
	if err != nil {
		return Admin{}, false
	}
	return admin, true
}

// RequireAdmin rejects requests without a valid session cookie with 401.
func RequireAdmin(sessions *Sessions, cookies Cookies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin, ok := Authenticate(r, sessions, cookies)
			if !ok {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "admin session required", http.StatusUnauthorized))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), admin)))
		})
	}
}
