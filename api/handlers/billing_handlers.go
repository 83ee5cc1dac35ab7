package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"blik/config"
	"blik/core/billing"
	"blik/core/store"
	"blik/core/utils"
)

// stripe caps event payloads at 64KB; anything larger is not ours.
const maxStripePayload = 65536

type BillingHandler struct {
	cfg           *config.AppConfig
	users         store.UsersStore
	orgs          store.OrganizationsStore
	subscriptions store.SubscriptionsStore
	billingSvc    *billing.Service
	logger        *utils.Logger
}

func NewBillingHandler(cfg *config.AppConfig, users store.UsersStore, orgs store.OrganizationsStore, subscriptions store.SubscriptionsStore, billingSvc *billing.Service, logger *utils.Logger) *BillingHandler {
	return &BillingHandler{cfg: cfg, users: users, orgs: orgs, subscriptions: subscriptions, billingSvc: billingSvc, logger: logger}
}

func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	sub, err := h.subscriptions.GetByOrg(r.Context(), org.ID)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscription": sub,
		"configured":   h.cfg.Stripe.Configured(),
	})
}

func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	_, _, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	var payload struct {
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	sess, err := h.billingSvc.CreateCheckoutSession(r.Context(), payload.Plan)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrNotConfigured):
			http.Error(w, "billing is not configured", http.StatusServiceUnavailable)
		case errors.Is(err, billing.ErrUnknownPlan):
			http.Error(w, "unknown plan", http.StatusBadRequest)
		default:
			if h.logger != nil {
				h.logger.Errorf("stripe checkout: %v", err)
			}
			http.Error(w, errServerError, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	var payload struct {
		Immediately bool `json:"immediately"`
	}
	if r.Body != nil {
		// Optional body; default is cancel at period end.
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	var err error
	if payload.Immediately {
		err = h.billingSvc.CancelNow(r.Context(), org.ID)
	} else {
		err = h.billingSvc.CancelAtPeriodEnd(r.Context(), org.ID)
	}
	if err != nil {
		h.writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *BillingHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	if err := h.billingSvc.Reactivate(r.Context(), org.ID); err != nil {
		h.writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StripeWebhook receives signed events from Stripe; it is the only billing
// route outside the session guard.
func (h *BillingHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxStripePayload))
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if err := h.billingSvc.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		if errors.Is(err, billing.ErrBadWebhookEvent) {
			http.Error(w, "signature verification failed", http.StatusBadRequest)
			return
		}
		if h.logger != nil {
			h.logger.Errorf("stripe webhook: %v", err)
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *BillingHandler) writeBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		http.Error(w, "billing is not configured", http.StatusServiceUnavailable)
	case errors.Is(err, billing.ErrNoSubscription):
		http.Error(w, "no subscription", http.StatusNotFound)
	default:
		if h.logger != nil {
			h.logger.Errorf("billing: %v", err)
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
	}
}
