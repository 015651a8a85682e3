package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
)

// BearerAuth rejects requests whose "Authorization: Bearer <key>" header
// does not match hash. The last accepted key is remembered so repeated
// scrapes skip the bcrypt comparison.
func BearerAuth(hash string) func(http.Handler) http.Handler {
	v := &verifier{hash: hash}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, key, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || key == "" {
				unauthorized(w, "bearer API key required")
				return
			}
			if !v.verify(key) {
				unauthorized(w, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type verifier struct {
	hash string

	mu       sync.Mutex
	accepted string
}

func (v *verifier) verify(key string) bool {
	v.mu.Lock()
	cached := v.accepted
	v.mu.Unlock()

	if cached != "" && subtle.ConstantTimeCompare([]byte(cached), []byte(key)) == 1 {
		return true
	}
	if VerifyAPIKey(v.hash, key) != nil {
		return false
	}

	v.mu.Lock()
	v.accepted = key
	v.mu.Unlock()
	return true
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
