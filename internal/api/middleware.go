// Package api implements the nsink REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// eventsTokenParam carries the token for GET /events, since a browser
// EventSource cannot set an Authorization header.
const eventsTokenParam = "access_token"

// AuthMiddleware checks the shared token when enabled. Requests present it as
// "Authorization: Bearer <token>"; the event stream also accepts it in the
// access_token query parameter. Rejections are 401 with a Bearer challenge.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearer(r)
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="nsink"`)
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, tok, found := strings.Cut(auth, " ")
		return tok, found && strings.EqualFold(scheme, "Bearer") && tok != ""
	}
	if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events") {
		tok := r.URL.Query().Get(eventsTokenParam)
		return tok, tok != ""
	}
	return "", false
}
