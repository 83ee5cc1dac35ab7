package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"blik/core/review"
	"blik/core/store"
	"blik/core/utils"
)

type CyclesHandler struct {
	users     store.UsersStore
	orgs      store.OrganizationsStore
	cycles    store.CyclesStore
	tokens    store.ReviewerTokensStore
	reviewSvc *review.Service
	logger    *utils.Logger
}

func NewCyclesHandler(users store.UsersStore, orgs store.OrganizationsStore, cycles store.CyclesStore, tokens store.ReviewerTokensStore, reviewSvc *review.Service, logger *utils.Logger) *CyclesHandler {
	return &CyclesHandler{users: users, orgs: orgs, cycles: cycles, tokens: tokens, reviewSvc: reviewSvc, logger: logger}
}

func (h *CyclesHandler) List(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	switch status {
	case "", store.CycleStatusActive, store.CycleStatusCompleted:
	default:
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	items, err := h.cycles.ListSummaries(r.Context(), org.ID, status)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.CycleSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CyclesHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	var payload struct {
		RevieweeID      int64      `json:"reviewee_id"`
		QuestionnaireID int64      `json:"questionnaire_id"`
		ClosesAt        *time.Time `json:"closes_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if payload.RevieweeID <= 0 || payload.QuestionnaireID <= 0 {
		http.Error(w, "reviewee_id and questionnaire_id are required", http.StatusBadRequest)
		return
	}
	createdBy := user.ID
	cycle, tokens, err := h.reviewSvc.CreateCycle(r.Context(), org, review.CreateCycleInput{
		RevieweeID:      payload.RevieweeID,
		QuestionnaireID: payload.QuestionnaireID,
		ClosesAt:        payload.ClosesAt,
		CreatedBy:       &createdBy,
	})
	if err != nil {
		switch {
		case errors.Is(err, review.ErrRevieweeNotFound):
			http.Error(w, "reviewee not found", http.StatusNotFound)
		case errors.Is(err, review.ErrQuestionnaireGone):
			http.Error(w, "questionnaire not found", http.StatusNotFound)
		default:
			http.Error(w, errServerError, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"cycle":  cycle,
		"tokens": tokens,
	})
}

func (h *CyclesHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	cycle, err := h.cycles.GetByID(r.Context(), org.ID, id)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if cycle == nil {
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	}
	tokens, err := h.tokens.ListByCycle(r.Context(), cycle.ID)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if tokens == nil {
		tokens = []store.ReviewerToken{}
	}
	completed, err := h.tokens.CountCompletedByCycle(r.Context(), cycle.ID)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycle":           cycle,
		"tokens":          tokens,
		"completed_count": completed,
	})
}

func (h *CyclesHandler) Close(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	cycle, err := h.reviewSvc.CloseCycle(r.Context(), org, id)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrCycleNotFound):
			http.Error(w, errNotFound, http.StatusNotFound)
		case errors.Is(err, store.ErrConflict):
			http.Error(w, "cycle is already completed", http.StatusConflict)
		default:
			http.Error(w, errServerError, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, cycle)
}

func (h *CyclesHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	cycle, err := h.reviewSvc.ReopenCycle(r.Context(), org, id)
	if err != nil {
		if errors.Is(err, review.ErrCycleNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cycle)
}

// AssignReviewers attaches reviewer emails per category. Partial failures
// come back in the stats rather than failing the request.
func (h *CyclesHandler) AssignReviewers(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	var payload struct {
		Assignments map[string][]string `json:"assignments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if len(payload.Assignments) == 0 {
		http.Error(w, "assignments are required", http.StatusBadRequest)
		return
	}
	for category := range payload.Assignments {
		if !validCategory(category) {
			http.Error(w, "unknown reviewer category", http.StatusBadRequest)
			return
		}
	}
	stats, err := h.reviewSvc.AssignReviewers(r.Context(), org, id, payload.Assignments)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrCycleNotFound):
			http.Error(w, errNotFound, http.StatusNotFound)
		case errors.Is(err, review.ErrCycleNotActive):
			http.Error(w, "cycle is not active", http.StatusConflict)
		default:
			http.Error(w, errServerError, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *CyclesHandler) SendInvitations(w http.ResponseWriter, r *http.Request) {
	h.sendMail(w, r, h.reviewSvc.SendInvitations)
}

func (h *CyclesHandler) SendReminders(w http.ResponseWriter, r *http.Request) {
	h.sendMail(w, r, h.reviewSvc.SendReminders)
}

func (h *CyclesHandler) sendMail(w http.ResponseWriter, r *http.Request, send func(ctx context.Context, org *store.Organization, cycleID int64, tokenIDs []int64) (*review.AssignStats, error)) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	var payload struct {
		TokenIDs []int64 `json:"token_ids"`
	}
	if r.Body != nil {
		// Body is optional; absent means every eligible token.
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	stats, err := send(r.Context(), org, id, payload.TokenIDs)
	if err != nil {
		if errors.Is(err, review.ErrCycleNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *CyclesHandler) ListForReviewee(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	revieweeID, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	items, err := h.cycles.ListByReviewee(r.Context(), org.ID, revieweeID)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.ReviewCycle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func validCategory(category string) bool {
	for _, c := range store.ReviewerCategories {
		if c == category {
			return true
		}
	}
	return false
}
