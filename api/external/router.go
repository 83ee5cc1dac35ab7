package external

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type RouteDeps struct {
	Handler *Handler
}

// RegisterRoutes builds the /api/v1 subrouter. Every route runs behind the
// bearer-token guard; there are no unauthenticated endpoints here.
func RegisterRoutes(deps RouteDeps) http.Handler {
	r := chi.NewRouter()
	h := deps.Handler

	r.MethodFunc(http.MethodGet, "/reviewees", h.withToken(h.ListReviewees))
	r.MethodFunc(http.MethodGet, "/reviewees/{uuid}", h.withToken(h.GetReviewee))
	r.MethodFunc(http.MethodGet, "/cycles", h.withToken(h.ListCycles))
	r.MethodFunc(http.MethodGet, "/cycles/{id:[0-9]+}", h.withToken(h.GetCycle))
	r.MethodFunc(http.MethodGet, "/reports/{uuid}", h.withToken(h.GetReport))
	return r
}

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

func pathInt64(raw string) (int64, bool) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, key string) {
	writeJSON(w, status, map[string]string{"error": key})
}

// rawJSON keeps a stored JSON document from being re-encoded as a string.
func rawJSON(s string) json.RawMessage {
	if !json.Valid([]byte(s)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}
