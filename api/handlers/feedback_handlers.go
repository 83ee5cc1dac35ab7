package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"blik/core/review"
	"blik/core/utils"
)

// FeedbackHandler serves the public feedback form endpoints. These are the
// only routes reachable with nothing but a reviewer token in the URL, so
// every branch resolves the token first and reveals nothing else on a miss.
type FeedbackHandler struct {
	reviewSvc *review.Service
	logger    *utils.Logger
}

func NewFeedbackHandler(reviewSvc *review.Service, logger *utils.Logger) *FeedbackHandler {
	return &FeedbackHandler{reviewSvc: reviewSvc, logger: logger}
}

func (h *FeedbackHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(urlParam(r, "token"))
	if token == "" {
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	}
	payload, err := h.reviewSvc.ClaimToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, review.ErrTokenNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		h.logger.Errorf("feedback form %s: %v", token, err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(urlParam(r, "token"))
	var form map[string]string
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	problems, err := h.reviewSvc.SubmitAnswers(r.Context(), token, form)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrTokenNotFound):
			http.Error(w, errNotFound, http.StatusNotFound)
		case errors.Is(err, review.ErrAlreadySubmitted):
			http.Error(w, "feedback already submitted", http.StatusConflict)
		case errors.Is(err, review.ErrCycleNotActive):
			http.Error(w, "review cycle is closed", http.StatusConflict)
		case errors.Is(err, review.ErrValidation):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": problems})
		default:
			h.logger.Errorf("feedback submit %s: %v", token, err)
			http.Error(w, errServerError, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"completed": true})
}

func (h *FeedbackHandler) Complete(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(urlParam(r, "token"))
	missing, err := h.reviewSvc.CompleteToken(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrTokenNotFound):
			http.Error(w, errNotFound, http.StatusNotFound)
		case errors.Is(err, review.ErrCycleNotActive):
			http.Error(w, "review cycle is closed", http.StatusConflict)
		case errors.Is(err, review.ErrValidation):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": missing})
		default:
			h.logger.Errorf("feedback complete %s: %v", token, err)
			http.Error(w, errServerError, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"completed": true})
}

// Completion reports whether a token has been submitted, for the thank-you
// page to poll without re-claiming the form.
func (h *FeedbackHandler) Completion(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(urlParam(r, "token"))
	payload, err := h.reviewSvc.ClaimToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, review.ErrTokenNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		h.logger.Errorf("feedback completion %s: %v", token, err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"completed": payload.Completed})
}
