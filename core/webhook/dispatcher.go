// Package webhook posts application events to registered endpoints and keeps
// a per-attempt delivery log.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"blik/core/store"
	"blik/core/utils"
)

const (
	EventCycleCreated      = "cycle.created"
	EventCycleCompleted    = "cycle.completed"
	EventFeedbackSubmitted = "feedback.submitted"
	EventReportGenerated   = "report.generated"
	EventTest              = "test.event"
)

const userAgent = "Blik-Webhooks/1.0"

// DefaultMaxAttempts bounds how many times a delivery is tried in total,
// counting the initial attempt and the cron redeliveries.
const DefaultMaxAttempts = 5

type Dispatcher struct {
	store       store.WebhooksStore
	client      *http.Client
	logger      *utils.Logger
	maxAttempts int

	wg sync.WaitGroup
}

func NewDispatcher(st store.WebhooksStore, logger *utils.Logger) *Dispatcher {
	return &Dispatcher{
		store:       st,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
	}
}

// envelope is the wire format delivered to endpoints. Data carries the
// original event payload untouched.
type envelope struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Created string          `json:"created"`
	Data    json.RawMessage `json:"data"`
}

// Dispatch records a delivery per subscribed endpoint and posts each in the
// background. The returned count is the number of deliveries created, not
// the number that succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, orgID int64, eventType string, data any) (int, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("webhook payload: %w", err)
	}
	endpoints, err := d.store.ListActiveForEvent(ctx, orgID, eventType)
	if err != nil {
		return 0, err
	}
	created := 0
	for i := range endpoints {
		endpoint := endpoints[i]
		delivery := &store.WebhookDelivery{
			EndpointID: endpoint.ID,
			EventType:  eventType,
			Payload:    string(raw),
		}
		if _, err := d.store.CreateDelivery(ctx, delivery); err != nil {
			if d.logger != nil {
				d.logger.Errorf("webhook delivery record: %v", err)
			}
			continue
		}
		created++
		d.wg.Add(1)
		go func(dl store.WebhookDelivery, ep store.WebhookEndpoint) {
			defer d.wg.Done()
			dctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			d.attempt(dctx, &dl, &ep)
		}(*delivery, endpoint)
	}
	return created, nil
}

// Wait blocks until in-flight background deliveries finish; shutdown calls
// it so no attempt is cut off mid-request.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// RetryPending re-attempts deliveries still marked pending, oldest first.
// The scheduler runs this on a cron.
func (d *Dispatcher) RetryPending(ctx context.Context) (int, error) {
	pending, err := d.store.ListPendingDeliveries(ctx, d.maxAttempts, 100)
	if err != nil {
		return 0, err
	}
	retried := 0
	for i := range pending {
		dl := pending[i]
		if dl.Attempts == 0 && time.Since(dl.CreatedAt) < time.Minute {
			// Fresh rows are still owned by the background goroutine.
			continue
		}
		endpoint, err := d.store.GetEndpointByID(ctx, dl.EndpointID)
		if err != nil || endpoint == nil || !endpoint.Active {
			continue
		}
		d.attempt(ctx, &dl, endpoint)
		retried++
	}
	return retried, nil
}

// Deliver runs a single delivery attempt synchronously; the test-event
// handler uses it so the caller sees the outcome.
func (d *Dispatcher) Deliver(ctx context.Context, delivery *store.WebhookDelivery, endpoint *store.WebhookEndpoint) error {
	return d.attempt(ctx, delivery, endpoint)
}

func (d *Dispatcher) attempt(ctx context.Context, delivery *store.WebhookDelivery, endpoint *store.WebhookEndpoint) error {
	body, err := json.Marshal(envelope{
		ID:      delivery.UUID,
		Event:   delivery.EventType,
		Created: delivery.CreatedAt.UTC().Format(time.RFC3339),
		Data:    json.RawMessage(delivery.Payload),
	})
	if err != nil {
		return d.fail(ctx, delivery, fmt.Sprintf("marshal envelope: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return d.fail(ctx, delivery, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Blik-Event", delivery.EventType)
	req.Header.Set("X-Blik-Delivery", delivery.UUID)
	req.Header.Set("X-Blik-Signature", SignaturePrefix+Sign(endpoint.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return d.fail(ctx, delivery, err.Error())
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := d.store.MarkDelivered(ctx, delivery.ID, time.Now().UTC()); err != nil && d.logger != nil {
			d.logger.Errorf("webhook mark delivered: %v", err)
		}
		if d.logger != nil {
			d.logger.Printf("webhook delivered: %s to %s", delivery.EventType, endpoint.URL)
		}
		return nil
	}
	return d.fail(ctx, delivery, fmt.Sprintf("HTTP %d", resp.StatusCode))
}

func (d *Dispatcher) fail(ctx context.Context, delivery *store.WebhookDelivery, reason string) error {
	delivery.Attempts++
	final := delivery.Attempts >= d.maxAttempts
	if err := d.store.MarkFailed(ctx, delivery.ID, delivery.Attempts, reason, final); err != nil && d.logger != nil {
		d.logger.Errorf("webhook mark failed: %v", err)
	}
	if d.logger != nil {
		d.logger.Errorf("webhook delivery failed (attempt %d): %s", delivery.Attempts, reason)
	}
	return fmt.Errorf("webhook delivery: %s", reason)
}

// SignaturePrefix is prepended to the hex digest in the signature header.
const SignaturePrefix = "sha256="

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received X-Blik-Signature header against the
// payload. Receivers embedding this module can call it directly.
func VerifySignature(secret string, body []byte, header string) bool {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, SignaturePrefix) {
		return false
	}
	want := Sign(secret, body)
	got := strings.TrimPrefix(header, SignaturePrefix)
	return hmac.Equal([]byte(want), []byte(got))
}
