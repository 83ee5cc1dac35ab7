package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

type WebhooksStore interface {
	CreateEndpoint(ctx context.Context, e *WebhookEndpoint) (int64, error)
	GetEndpoint(ctx context.Context, orgID, id int64) (*WebhookEndpoint, error)
	// GetEndpointByID skips the org scope; the redelivery pass resolves
	// endpoints straight from delivery rows.
	GetEndpointByID(ctx context.Context, id int64) (*WebhookEndpoint, error)
	ListEndpointsByOrg(ctx context.Context, orgID int64) ([]WebhookEndpoint, error)
	// ListActiveForEvent returns the org's active endpoints subscribed to
	// the event; an empty subscription list means all events.
	ListActiveForEvent(ctx context.Context, orgID int64, event string) ([]WebhookEndpoint, error)
	UpdateEndpoint(ctx context.Context, e *WebhookEndpoint) error
	DeleteEndpoint(ctx context.Context, orgID, id int64) error

	CreateDelivery(ctx context.Context, d *WebhookDelivery) (int64, error)
	GetDelivery(ctx context.Context, id int64) (*WebhookDelivery, error)
	ListDeliveriesByEndpoint(ctx context.Context, endpointID int64, limit int) ([]WebhookDelivery, error)
	// ListPendingDeliveries returns deliveries still worth retrying,
	// oldest first.
	ListPendingDeliveries(ctx context.Context, maxAttempts, limit int) ([]WebhookDelivery, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, attempts int, lastError string, final bool) error
}

type webhooksStore struct {
	db *sql.DB
}

func NewWebhooksStore(db *sql.DB) WebhooksStore {
	return &webhooksStore{db: db}
}

const webhookEndpointColumns = `id, org_id, name, url, secret, events, active, created_at, updated_at`

func (s *webhooksStore) CreateEndpoint(ctx context.Context, e *WebhookEndpoint) (int64, error) {
	url := strings.TrimSpace(e.URL)
	if url == "" {
		return 0, errors.New("url is required")
	}
	if e.Secret == "" {
		return 0, errors.New("secret is required")
	}
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO webhook_endpoints(org_id, name, url, secret, events, active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?) RETURNING id`,
		e.OrgID, strings.TrimSpace(e.Name), url, e.Secret, stringsToJSON(e.Events), boolToInt(e.Active), now, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	e.ID = id
	e.URL = url
	e.CreatedAt = now
	e.UpdatedAt = now
	return id, nil
}

func (s *webhooksStore) GetEndpoint(ctx context.Context, orgID, id int64) (*WebhookEndpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+webhookEndpointColumns+` FROM webhook_endpoints WHERE org_id=? AND id=?`, orgID, id)
	return scanWebhookEndpoint(row)
}

func (s *webhooksStore) GetEndpointByID(ctx context.Context, id int64) (*WebhookEndpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+webhookEndpointColumns+` FROM webhook_endpoints WHERE id=?`, id)
	return scanWebhookEndpoint(row)
}

func (s *webhooksStore) ListEndpointsByOrg(ctx context.Context, orgID int64) ([]WebhookEndpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+webhookEndpointColumns+` FROM webhook_endpoints WHERE org_id=? ORDER BY id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWebhookEndpoints(rows)
}

func (s *webhooksStore) ListActiveForEvent(ctx context.Context, orgID int64, event string) ([]WebhookEndpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+webhookEndpointColumns+` FROM webhook_endpoints WHERE org_id=? AND active=1 ORDER BY id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	all, err := collectWebhookEndpoints(rows)
	if err != nil {
		return nil, err
	}
	var out []WebhookEndpoint
	for _, e := range all {
		if e.SubscribedTo(event) {
			out = append(out, e)
		}
	}
	return out, nil
}

// SubscribedTo reports whether the endpoint wants the event. Endpoints with
// no explicit subscriptions receive everything.
func (e *WebhookEndpoint) SubscribedTo(event string) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, ev := range e.Events {
		if ev == event {
			return true
		}
	}
	return false
}

func (s *webhooksStore) UpdateEndpoint(ctx context.Context, e *WebhookEndpoint) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_endpoints SET name=?, url=?, events=?, active=?, updated_at=?
		WHERE org_id=? AND id=?`,
		strings.TrimSpace(e.Name), strings.TrimSpace(e.URL), stringsToJSON(e.Events), boolToInt(e.Active), now, e.OrgID, e.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	e.UpdatedAt = now
	return nil
}

func (s *webhooksStore) DeleteEndpoint(ctx context.Context, orgID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhook_endpoints WHERE org_id=? AND id=?`, orgID, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

const webhookDeliveryColumns = `id, endpoint_id, uuid, event_type, payload, status, attempts, last_error, created_at, delivered_at`

func (s *webhooksStore) CreateDelivery(ctx context.Context, d *WebhookDelivery) (int64, error) {
	now := time.Now().UTC()
	status := d.Status
	if status == "" {
		status = DeliveryStatusPending
	}
	payload := d.Payload
	if payload == "" {
		payload = "{}"
	}
	publicID := d.UUID
	if publicID == "" {
		publicID = uuid.Must(uuid.NewV4()).String()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO webhook_deliveries(endpoint_id, uuid, event_type, payload, status, attempts, last_error, created_at)
		VALUES(?,?,?,?,?,?,?,?) RETURNING id`,
		d.EndpointID, publicID, d.EventType, payload, status, d.Attempts, d.LastError, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	d.ID = id
	d.UUID = publicID
	d.Status = status
	d.Payload = payload
	d.CreatedAt = now
	return id, nil
}

func (s *webhooksStore) GetDelivery(ctx context.Context, id int64) (*WebhookDelivery, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+webhookDeliveryColumns+` FROM webhook_deliveries WHERE id=?`, id)
	var d WebhookDelivery
	var deliveredAt sql.NullTime
	if err := row.Scan(&d.ID, &d.EndpointID, &d.UUID, &d.EventType, &d.Payload, &d.Status, &d.Attempts, &d.LastError, &d.CreatedAt, &deliveredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if deliveredAt.Valid {
		v := deliveredAt.Time
		d.DeliveredAt = &v
	}
	return &d, nil
}

func (s *webhooksStore) ListDeliveriesByEndpoint(ctx context.Context, endpointID int64, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+webhookDeliveryColumns+` FROM webhook_deliveries
		WHERE endpoint_id=? ORDER BY created_at DESC, id DESC LIMIT ?`, endpointID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWebhookDeliveries(rows)
}

func (s *webhooksStore) ListPendingDeliveries(ctx context.Context, maxAttempts, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+webhookDeliveryColumns+` FROM webhook_deliveries
		WHERE status=? AND attempts < ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		DeliveryStatusPending, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWebhookDeliveries(rows)
}

func (s *webhooksStore) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET status=?, delivered_at=?, last_error='' WHERE id=?`,
		DeliveryStatusSent, at.UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *webhooksStore) MarkFailed(ctx context.Context, id int64, attempts int, lastError string, final bool) error {
	status := DeliveryStatusPending
	if final {
		status = DeliveryStatusFailed
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET status=?, attempts=?, last_error=? WHERE id=?`,
		status, attempts, lastError, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWebhookEndpoint(row *sql.Row) (*WebhookEndpoint, error) {
	var e WebhookEndpoint
	var events string
	var active int
	if err := row.Scan(&e.ID, &e.OrgID, &e.Name, &e.URL, &e.Secret, &events, &active, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.Events = parseJSONStrings(events)
	e.Active = active == 1
	return &e, nil
}

func collectWebhookEndpoints(rows *sql.Rows) ([]WebhookEndpoint, error) {
	var out []WebhookEndpoint
	for rows.Next() {
		var e WebhookEndpoint
		var events string
		var active int
		if err := rows.Scan(&e.ID, &e.OrgID, &e.Name, &e.URL, &e.Secret, &events, &active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Events = parseJSONStrings(events)
		e.Active = active == 1
		out = append(out, e)
	}
	return out, rows.Err()
}

func collectWebhookDeliveries(rows *sql.Rows) ([]WebhookDelivery, error) {
	var out []WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		var deliveredAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.EndpointID, &d.UUID, &d.EventType, &d.Payload, &d.Status, &d.Attempts, &d.LastError, &d.CreatedAt, &deliveredAt); err != nil {
			return nil, err
		}
		if deliveredAt.Valid {
			v := deliveredAt.Time
			d.DeliveredAt = &v
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
