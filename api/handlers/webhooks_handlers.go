package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"blik/core/store"
	"blik/core/utils"
	"blik/core/webhook"
)

type WebhooksHandler struct {
	users      store.UsersStore
	orgs       store.OrganizationsStore
	webhooks   store.WebhooksStore
	dispatcher *webhook.Dispatcher
	logger     *utils.Logger
}

func NewWebhooksHandler(users store.UsersStore, orgs store.OrganizationsStore, webhooks store.WebhooksStore, dispatcher *webhook.Dispatcher, logger *utils.Logger) *WebhooksHandler {
	return &WebhooksHandler{users: users, orgs: orgs, webhooks: webhooks, dispatcher: dispatcher, logger: logger}
}

var knownWebhookEvents = []string{
	webhook.EventCycleCreated,
	webhook.EventCycleCompleted,
	webhook.EventFeedbackSubmitted,
	webhook.EventReportGenerated,
	webhook.EventTest,
}

func (h *WebhooksHandler) List(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	items, err := h.webhooks.ListEndpointsByOrg(r.Context(), org.ID)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.WebhookEndpoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Create registers an endpoint and returns its signing secret exactly
// once; afterwards the secret never leaves the server.
func (h *WebhooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	var payload struct {
		Name   string   `json:"name"`
		URL    string   `json:"url"`
		Events []string `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if err := validateWebhookInput(payload.URL, payload.Events); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	secret, err := utils.RandString(40)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	endpoint := &store.WebhookEndpoint{
		OrgID:  org.ID,
		Name:   payload.Name,
		URL:    payload.URL,
		Secret: secret,
		Events: payload.Events,
		Active: true,
	}
	if _, err := h.webhooks.CreateEndpoint(r.Context(), endpoint); err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"endpoint": endpoint,
		"secret":   secret,
	})
}

func (h *WebhooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	endpoint, ok := h.loadEndpoint(w, r, org.ID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

func (h *WebhooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	endpoint, ok := h.loadEndpoint(w, r, org.ID)
	if !ok {
		return
	}
	var payload struct {
		Name   *string   `json:"name"`
		URL    *string   `json:"url"`
		Events *[]string `json:"events"`
		Active *bool     `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if payload.Name != nil {
		endpoint.Name = *payload.Name
	}
	if payload.URL != nil {
		endpoint.URL = *payload.URL
	}
	if payload.Events != nil {
		endpoint.Events = *payload.Events
	}
	if payload.Active != nil {
		endpoint.Active = *payload.Active
	}
	if err := validateWebhookInput(endpoint.URL, endpoint.Events); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.webhooks.UpdateEndpoint(r.Context(), endpoint); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

func (h *WebhooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if err := h.webhooks.DeleteEndpoint(r.Context(), org.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Test fires a synchronous test.event delivery so the caller sees the
// outcome, including the recorded attempt row.
func (h *WebhooksHandler) Test(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	endpoint, ok := h.loadEndpoint(w, r, org.ID)
	if !ok {
		return
	}
	raw, err := json.Marshal(map[string]any{
		"message":      "test delivery",
		"endpoint_id":  endpoint.ID,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	delivery := &store.WebhookDelivery{
		EndpointID: endpoint.ID,
		EventType:  webhook.EventTest,
		Payload:    string(raw),
	}
	if _, err := h.webhooks.CreateDelivery(r.Context(), delivery); err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	deliverErr := h.dispatcher.Deliver(r.Context(), delivery, endpoint)
	recorded, err := h.webhooks.GetDelivery(r.Context(), delivery.ID)
	if err != nil || recorded == nil {
		recorded = delivery
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       deliverErr == nil,
		"delivery": recorded,
	})
}

func (h *WebhooksHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	endpoint, ok := h.loadEndpoint(w, r, org.ID)
	if !ok {
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 200 {
		limit = 200
	}
	items, err := h.webhooks.ListDeliveriesByEndpoint(r.Context(), endpoint.ID, limit)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.WebhookDelivery{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *WebhooksHandler) loadEndpoint(w http.ResponseWriter, r *http.Request, orgID int64) (*store.WebhookEndpoint, bool) {
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return nil, false
	}
	endpoint, err := h.webhooks.GetEndpoint(r.Context(), orgID, id)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return nil, false
	}
	if endpoint == nil {
		http.Error(w, errNotFound, http.StatusNotFound)
		return nil, false
	}
	return endpoint, true
}

func validateWebhookInput(rawURL string, events []string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return errors.New("url must be an absolute http or https address")
	}
	for _, ev := range events {
		if !knownEvent(ev) {
			return errors.New("unknown event " + strconv.Quote(ev))
		}
	}
	return nil
}

func knownEvent(event string) bool {
	for _, ev := range knownWebhookEvents {
		if ev == event {
			return true
		}
	}
	return false
}
