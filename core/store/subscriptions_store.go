package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type SubscriptionsStore interface {
	// Upsert writes the org's subscription row; each organization holds
	// at most one.
	Upsert(ctx context.Context, sub *Subscription) error
	GetByOrg(ctx context.Context, orgID int64) (*Subscription, error)
	GetByStripeSubscription(ctx context.Context, stripeSubID string) (*Subscription, error)
	GetByStripeCustomer(ctx context.Context, stripeCustomerID string) (*Subscription, error)
	UpdateStatus(ctx context.Context, stripeSubID, status string, periodEnd *time.Time) error
	DeleteByOrg(ctx context.Context, orgID int64) error
}

type subscriptionsStore struct {
	db *sql.DB
}

func NewSubscriptionsStore(db *sql.DB) SubscriptionsStore {
	return &subscriptionsStore{db: db}
}

const subscriptionColumns = `id, org_id, plan, stripe_customer_id, stripe_subscription_id, status, current_period_end, created_at, updated_at`

func (s *subscriptionsStore) Upsert(ctx context.Context, sub *Subscription) error {
	existing, err := s.GetByOrg(ctx, sub.OrgID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	plan := sub.Plan
	if plan == "" {
		plan = PlanSaaS
	}
	if existing != nil {
		_, err := s.db.ExecContext(ctx, `
			UPDATE subscriptions SET plan=?, stripe_customer_id=?, stripe_subscription_id=?, status=?, current_period_end=?, updated_at=?
			WHERE org_id=?`,
			plan, sub.StripeCustomerID, sub.StripeSubscriptionID, sub.Status, nullableTime(sub.CurrentPeriodEnd), now, sub.OrgID)
		if err != nil {
			return err
		}
		sub.ID = existing.ID
		sub.Plan = plan
		sub.CreatedAt = existing.CreatedAt
		sub.UpdatedAt = now
		return nil
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO subscriptions(org_id, plan, stripe_customer_id, stripe_subscription_id, status, current_period_end, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?) RETURNING id`,
		sub.OrgID, plan, sub.StripeCustomerID, sub.StripeSubscriptionID, sub.Status,
		nullableTime(sub.CurrentPeriodEnd), now, now).Scan(&id)
	if err != nil {
		return err
	}
	sub.ID = id
	sub.Plan = plan
	sub.CreatedAt = now
	sub.UpdatedAt = now
	return nil
}

func (s *subscriptionsStore) GetByOrg(ctx context.Context, orgID int64) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE org_id=?`, orgID)
	return scanSubscription(row)
}

func (s *subscriptionsStore) GetByStripeSubscription(ctx context.Context, stripeSubID string) (*Subscription, error) {
	if stripeSubID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id=?`, stripeSubID)
	return scanSubscription(row)
}

func (s *subscriptionsStore) GetByStripeCustomer(ctx context.Context, stripeCustomerID string) (*Subscription, error) {
	if stripeCustomerID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_customer_id=?`, stripeCustomerID)
	return scanSubscription(row)
}

func (s *subscriptionsStore) UpdateStatus(ctx context.Context, stripeSubID, status string, periodEnd *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET status=?, current_period_end=?, updated_at=?
		WHERE stripe_subscription_id=?`,
		status, nullableTime(periodEnd), time.Now().UTC(), stripeSubID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *subscriptionsStore) DeleteByOrg(ctx context.Context, orgID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE org_id=?`, orgID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSubscription(row *sql.Row) (*Subscription, error) {
	var sub Subscription
	var periodEnd sql.NullTime
	if err := row.Scan(&sub.ID, &sub.OrgID, &sub.Plan, &sub.StripeCustomerID, &sub.StripeSubscriptionID,
		&sub.Status, &periodEnd, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if periodEnd.Valid {
		v := periodEnd.Time
		sub.CurrentPeriodEnd = &v
	}
	return &sub, nil
}
