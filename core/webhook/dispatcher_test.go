package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"blik/config"
	"blik/core/store"
	"blik/core/utils"
)

func newDispatcherTestEnv(t *testing.T) (*Dispatcher, store.WebhooksStore, int64) {
	t.Helper()
	cfg := &config.AppConfig{DBPath: filepath.Join(t.TempDir(), "blik.db")}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	orgID, err := store.NewOrganizationsStore(db).Create(ctx, &store.Organization{Name: "Acme", Slug: "acme"})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	webhooks := store.NewWebhooksStore(db)
	return NewDispatcher(webhooks, logger), webhooks, orgID
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"id":"x","event":"test.event"}`)
	header := SignaturePrefix + Sign("topsecret", body)

	if !VerifySignature("topsecret", body, header) {
		t.Fatalf("valid signature rejected")
	}
	if VerifySignature("wrong", body, header) {
		t.Fatalf("signature verified under wrong secret")
	}
	if VerifySignature("topsecret", append(body, 'x'), header) {
		t.Fatalf("signature verified for tampered body")
	}
	if VerifySignature("topsecret", body, Sign("topsecret", body)) {
		t.Fatalf("header without sha256= prefix accepted")
	}
}

func TestDispatchPostsSignedEnvelope(t *testing.T) {
	dispatcher, webhooks, orgID := newDispatcherTestEnv(t)
	ctx := context.Background()

	type received struct {
		body    []byte
		headers http.Header
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{body: body, headers: r.Header.Clone()}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	endpointID, err := webhooks.CreateEndpoint(ctx, &store.WebhookEndpoint{
		OrgID:  orgID,
		Name:   "ci hook",
		URL:    srv.URL,
		Secret: "topsecret",
		Events: []string{EventCycleCompleted},
		Active: true,
	})
	if err != nil {
		t.Fatalf("create endpoint: %v", err)
	}

	created, err := dispatcher.Dispatch(ctx, orgID, EventCycleCompleted, map[string]any{"cycle_id": 7})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if created != 1 {
		t.Fatalf("created %d deliveries", created)
	}
	dispatcher.Wait()

	var rec received
	select {
	case rec = <-got:
	case <-time.After(5 * time.Second):
		t.Fatalf("endpoint never called")
	}

	if rec.headers.Get("X-Blik-Event") != EventCycleCompleted {
		t.Fatalf("event header = %q", rec.headers.Get("X-Blik-Event"))
	}
	if rec.headers.Get("X-Blik-Delivery") == "" {
		t.Fatalf("delivery header missing")
	}
	if !VerifySignature("topsecret", rec.body, rec.headers.Get("X-Blik-Signature")) {
		t.Fatalf("signature header does not verify: %q", rec.headers.Get("X-Blik-Signature"))
	}

	var env struct {
		ID    string          `json:"id"`
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.body, &env); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.Event != EventCycleCompleted || env.ID == "" {
		t.Fatalf("envelope = %+v", env)
	}

	deliveries, err := webhooks.ListDeliveriesByEndpoint(ctx, endpointID, 10)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("deliveries = %d", len(deliveries))
	}
	if deliveries[0].Status != store.DeliveryStatusSent {
		t.Fatalf("delivery status = %q", deliveries[0].Status)
	}
}

func TestDispatchSkipsUnsubscribedEndpoints(t *testing.T) {
	dispatcher, webhooks, orgID := newDispatcherTestEnv(t)
	ctx := context.Background()

	if _, err := webhooks.CreateEndpoint(ctx, &store.WebhookEndpoint{
		OrgID:  orgID,
		URL:    "http://127.0.0.1:1/never",
		Secret: "s",
		Events: []string{EventReportGenerated},
		Active: true,
	}); err != nil {
		t.Fatalf("create endpoint: %v", err)
	}

	created, err := dispatcher.Dispatch(ctx, orgID, EventCycleCompleted, map[string]any{})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if created != 0 {
		t.Fatalf("unsubscribed endpoint received %d deliveries", created)
	}
}
