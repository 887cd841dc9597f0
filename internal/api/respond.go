package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vthunder/acuity/internal/ledger"
	"github.com/vthunder/acuity/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("api", "Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rangeParams reads ?range= and ?limit=
func rangeParams(r *http.Request) (ledger.Range, int, error) {
	rng, err := ledger.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		return "", 0, err
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return rng, limit, nil
}

// BearerAuth checks Authorization: Bearer <token>. An empty token disables it.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
