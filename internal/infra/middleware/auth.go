package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"lawggle-ai/internal/domain"
)

// BearerToken is a named static credential.
type BearerToken struct {
	Name  string
	Token string
}

// BearerAuth rejects requests whose Authorization bearer token (or, for
// websocket upgrades from browsers, the "token" query parameter) does not
// match one of tokens. An empty token list disables the check.
func BearerAuth(tokens []BearerToken) func(http.Handler) http.Handler {
	if len(tokens) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	secrets := make([][]byte, len(tokens))
	for i, t := range tokens {
		secrets[i] = []byte(t.Token)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := []byte(tokenFrom(r))
			matched := 0
			for _, s := range secrets {
				// Compare against every entry so timing does not reveal which one matched.
				matched |= subtle.ConstantTimeCompare(presented, s)
			}
			if matched != 1 || len(presented) == 0 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="lawggle"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", domain.CodeGatewayAuth)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// writeError writes the gateway's JSON error body.
func writeError(w http.ResponseWriter, status int, msg string, code domain.ErrorCode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": string(code)})
}
