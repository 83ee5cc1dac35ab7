package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"blik/core/auth"
	"blik/core/store"
)

// Cookie names shared with the session middleware.
const (
	SessionCookieName = "blik_session"
	CSRFCookieName    = "blik_csrf"
)

const (
	errBadRequest   = "bad request"
	errUnauthorized = "unauthorized"
	errNotFound     = "not found"
	errServerError  = "server error"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestSession returns the session injected by the session middleware, or
// nil when the request never passed through it.
func requestSession(r *http.Request) *store.SessionRecord {
	if v := r.Context().Value(auth.SessionContextKey); v != nil {
		if sr, ok := v.(*store.SessionRecord); ok {
			return sr
		}
	}
	return nil
}

// requestOrg resolves the calling user and their organization. On failure it
// writes the error response and returns ok=false; every tenant-scoped handler
// starts here.
func requestOrg(w http.ResponseWriter, r *http.Request, users store.UsersStore, orgs store.OrganizationsStore) (*store.User, *store.Organization, bool) {
	sr := requestSession(r)
	if sr == nil {
		http.Error(w, errUnauthorized, http.StatusUnauthorized)
		return nil, nil, false
	}
	user, err := users.GetByID(r.Context(), sr.UserID)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return nil, nil, false
	}
	if user == nil || !user.Active {
		http.Error(w, errUnauthorized, http.StatusUnauthorized)
		return nil, nil, false
	}
	org, err := orgs.GetByID(r.Context(), user.OrgID)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return nil, nil, false
	}
	if org == nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return nil, nil, false
	}
	return user, org, true
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, strconv.ErrSyntax
	}
	return id, nil
}
