package chi

import (
	"context"
	"net/http"
)

// SessionCookie is the name of the dashboard session cookie.
const SessionCookie = "keymeter_session"

// SessionChecker validates dashboard session tokens.
type SessionChecker interface {
	Validate(ctx context.Context, token string) (bool, error)
}

// exemptPaths are routes that bypass authentication (dashboard shell,
// health, metrics and the login call itself).
var exemptPaths = map[string]struct{}{
	"/":          {},
	"/health":    {},
	"/metrics":   {},
	"/api/login": {},
}

// SessionAuthMiddleware returns a middleware that validates the session
// cookie on API routes. The checker passes everything through when no
// admin password is configured.
func SessionAuthMiddleware(sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token := ""
			if c, err := r.Cookie(SessionCookie); err == nil {
				token = c.Value
			}

			ok, err := sessions.Validate(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				return
			}
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
