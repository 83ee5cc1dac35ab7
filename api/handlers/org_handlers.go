package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"blik/config"
	"blik/core/store"
	"blik/core/utils"
)

type OrgHandler struct {
	cfg       *config.AppConfig
	orgs      store.OrganizationsStore
	users     store.UsersStore
	encryptor *utils.Encryptor
	logger    *utils.Logger
}

func NewOrgHandler(cfg *config.AppConfig, orgs store.OrganizationsStore, users store.UsersStore, encryptor *utils.Encryptor, logger *utils.Logger) *OrgHandler {
	return &OrgHandler{cfg: cfg, orgs: orgs, users: users, encryptor: encryptor, logger: logger}
}

func (h *OrgHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	count, err := h.users.CountByOrg(r.Context(), org.ID)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"organization": org,
		"user_count":   count,
	})
}

func (h *OrgHandler) Update(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	var payload struct {
		Name                     *string `json:"name"`
		AllowRegistration        *bool   `json:"allow_registration"`
		MinResponsesForAnonymity *int    `json:"min_responses_for_anonymity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if payload.Name != nil {
		name := strings.TrimSpace(*payload.Name)
		if name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		org.Name = name
	}
	if payload.AllowRegistration != nil {
		org.AllowRegistration = *payload.AllowRegistration
	}
	if payload.MinResponsesForAnonymity != nil {
		if *payload.MinResponsesForAnonymity < 1 {
			http.Error(w, "min_responses_for_anonymity must be at least 1", http.StatusBadRequest)
			return
		}
		org.MinResponsesForAnonymity = *payload.MinResponsesForAnonymity
	}
	if err := h.orgs.Update(r.Context(), org); err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// UpdateSMTP saves per-organization mail settings. A blank password keeps
// the stored one; anything else is encrypted at rest.
func (h *OrgHandler) UpdateSMTP(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	var payload struct {
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Username string `json:"username"`
		Password string `json:"password"`
		UseTLS   bool   `json:"use_tls"`
		From     string `json:"from"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if payload.Port <= 0 || payload.Port > 65535 {
		payload.Port = 587
	}
	passwordEnc := org.SMTPPasswordEnc
	if payload.Password != "" {
		if h.encryptor == nil {
			http.Error(w, "encryption key not configured", http.StatusInternalServerError)
			return
		}
		blob, err := h.encryptor.EncryptToBlob([]byte(payload.Password))
		if err != nil {
			http.Error(w, errServerError, http.StatusInternalServerError)
			return
		}
		passwordEnc = blob
	}
	if err := h.orgs.UpdateSMTP(r.Context(), org.ID, payload.Host, payload.Port, payload.Username, passwordEnc, payload.UseTLS, payload.From); err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	updated, err := h.orgs.GetByID(r.Context(), org.ID)
	if err != nil || updated == nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
