package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"blik/core/store"
	"blik/core/utils"
)

type RevieweesHandler struct {
	users     store.UsersStore
	orgs      store.OrganizationsStore
	reviewees store.RevieweesStore
	logger    *utils.Logger
}

func NewRevieweesHandler(users store.UsersStore, orgs store.OrganizationsStore, reviewees store.RevieweesStore, logger *utils.Logger) *RevieweesHandler {
	return &RevieweesHandler{users: users, orgs: orgs, reviewees: reviewees, logger: logger}
}

func (h *RevieweesHandler) List(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	activeOnly := false
	if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
		activeOnly = raw == "1" || strings.ToLower(raw) == "true"
	}
	items, err := h.reviewees.ListByOrg(r.Context(), org.ID, activeOnly)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.Reviewee{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *RevieweesHandler) Create(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	var payload struct {
		Name      string `json:"name"`
		Email     string `json:"email"`
		RoleTitle string `json:"role_title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if email := strings.TrimSpace(payload.Email); email != "" {
		if err := utils.ValidateEmail(strings.ToLower(email)); err != nil {
			http.Error(w, "invalid email", http.StatusBadRequest)
			return
		}
	}
	reviewee := &store.Reviewee{
		OrgID:     org.ID,
		Name:      payload.Name,
		Email:     payload.Email,
		RoleTitle: payload.RoleTitle,
		Active:    true,
	}
	if _, err := h.reviewees.Create(r.Context(), reviewee); err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, reviewee)
}

func (h *RevieweesHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	reviewee, err := h.reviewees.GetByID(r.Context(), org.ID, id)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if reviewee == nil {
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, reviewee)
}

func (h *RevieweesHandler) Update(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	existing, err := h.reviewees.GetByID(r.Context(), org.ID, id)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if existing == nil {
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	}
	var payload struct {
		Name      *string `json:"name"`
		Email     *string `json:"email"`
		RoleTitle *string `json:"role_title"`
		Active    *bool   `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if payload.Name != nil {
		if strings.TrimSpace(*payload.Name) == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		existing.Name = *payload.Name
	}
	if payload.Email != nil {
		if email := strings.TrimSpace(*payload.Email); email != "" {
			if err := utils.ValidateEmail(strings.ToLower(email)); err != nil {
				http.Error(w, "invalid email", http.StatusBadRequest)
				return
			}
		}
		existing.Email = *payload.Email
	}
	if payload.RoleTitle != nil {
		existing.RoleTitle = *payload.RoleTitle
	}
	if err := h.reviewees.Update(r.Context(), existing); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if payload.Active != nil && *payload.Active != existing.Active {
		if err := h.reviewees.SetActive(r.Context(), org.ID, id, *payload.Active); err != nil {
			http.Error(w, errServerError, http.StatusInternalServerError)
			return
		}
		existing.Active = *payload.Active
	}
	writeJSON(w, http.StatusOK, existing)
}

func (h *RevieweesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if err := h.reviewees.Delete(r.Context(), org.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
