package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"blik/core/store"
	"blik/core/utils"
)

// apiTokenPrefix marks integration tokens so leaked ones are recognizable
// in logs and secret scanners.
const apiTokenPrefix = "blk_"

type APITokensHandler struct {
	users     store.UsersStore
	orgs      store.OrganizationsStore
	apiTokens store.APITokensStore
	logger    *utils.Logger
}

func NewAPITokensHandler(users store.UsersStore, orgs store.OrganizationsStore, apiTokens store.APITokensStore, logger *utils.Logger) *APITokensHandler {
	return &APITokensHandler{users: users, orgs: orgs, apiTokens: apiTokens, logger: logger}
}

func (h *APITokensHandler) List(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	items, err := h.apiTokens.ListByOrg(r.Context(), org.ID)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.APIToken{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Create mints a token and returns the secret exactly once; only its
// digest is stored.
func (h *APITokensHandler) Create(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	secret, err := utils.RandString(40)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	token := apiTokenPrefix + secret
	rec := &store.APIToken{
		OrgID:     org.ID,
		Name:      payload.Name,
		TokenHash: utils.Sha256Hex([]byte(token)),
	}
	if _, err := h.apiTokens.Create(r.Context(), rec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			http.Error(w, "token collision, retry", http.StatusConflict)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":     token,
		"api_token": rec,
	})
}

func (h *APITokensHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if err := h.apiTokens.Revoke(r.Context(), org.ID, id, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
