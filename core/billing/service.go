// Package billing wraps the Stripe checkout and webhook flows behind the
// local subscription model.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"blik/config"
	"blik/core/auth"
	"blik/core/mail"
	"blik/core/store"
	"blik/core/utils"
)

var (
	ErrNotConfigured   = errors.New("stripe is not configured")
	ErrUnknownPlan     = errors.New("unknown plan")
	ErrNoSubscription  = errors.New("organization has no subscription")
	ErrBadWebhookEvent = errors.New("webhook event rejected")
)

type Service struct {
	cfg    *config.AppConfig
	orgs   store.OrganizationsStore
	users  store.UsersStore
	subs   store.SubscriptionsStore
	sender mail.Sender
	logger *utils.Logger
}

func NewService(cfg *config.AppConfig, orgs store.OrganizationsStore, users store.UsersStore,
	subs store.SubscriptionsStore, sender mail.Sender, logger *utils.Logger) *Service {
	stripe.Key = cfg.Stripe.SecretKey
	return &Service{cfg: cfg, orgs: orgs, users: users, subs: subs, sender: sender, logger: logger}
}

// CheckoutSession is what the landing page needs to redirect into Stripe.
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url,omitempty"`
}

// CreateCheckoutSession opens a Stripe subscription checkout for the plan.
// The price id comes from configuration, never from the client.
func (s *Service) CreateCheckoutSession(ctx context.Context, plan string) (*CheckoutSession, error) {
	if strings.TrimSpace(s.cfg.Stripe.SecretKey) == "" {
		return nil, ErrNotConfigured
	}
	priceID, err := s.priceIDFor(plan)
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(base + "/landing/?success=true"),
		CancelURL:  stripe.String(base + "/landing/?canceled=true"),
	}
	params.Context = ctx
	params.AddMetadata("plan_type", plan)
	sess, err := session.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *Service) priceIDFor(plan string) (string, error) {
	var priceID string
	switch plan {
	case store.PlanSaaS:
		priceID = s.cfg.Stripe.PriceIDSaaS
	case store.PlanEnterprise:
		priceID = s.cfg.Stripe.PriceIDEnterprise
	default:
		return "", ErrUnknownPlan
	}
	if strings.TrimSpace(priceID) == "" {
		return "", ErrUnknownPlan
	}
	return priceID, nil
}

// HandleWebhook verifies and applies one Stripe event. A nil return means
// the event was accepted; Stripe retries anything else.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := stripewebhook.ConstructEvent(payload, sigHeader, s.cfg.Stripe.WebhookSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadWebhookEvent, err)
	}
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("%w: %v", ErrBadWebhookEvent, err)
		}
		return s.handleCheckoutCompleted(ctx, &sess)
	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: %v", ErrBadWebhookEvent, err)
		}
		return s.handleSubscriptionUpdated(ctx, &sub)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: %v", ErrBadWebhookEvent, err)
		}
		return s.handleSubscriptionDeleted(ctx, &sub)
	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("%w: %v", ErrBadWebhookEvent, err)
		}
		return s.handlePaymentFailed(ctx, &inv)
	default:
		s.logger.Printf("stripe event %s ignored", event.Type)
		return nil
	}
}

// handleCheckoutCompleted provisions the paying customer: organization,
// admin account, subscription row, welcome mail. This is the registration
// path for checkout signups, so it must stay idempotent under Stripe's
// at-least-once delivery.
func (s *Service) handleCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	if sess.Subscription == nil || sess.CustomerDetails == nil || sess.CustomerDetails.Email == "" {
		s.logger.Errorf("checkout session %s missing subscription or customer details", sess.ID)
		return nil
	}
	subID := sess.Subscription.ID
	if existing, err := s.subs.GetByStripeSubscription(ctx, subID); err != nil {
		return err
	} else if existing != nil {
		s.logger.Printf("subscription %s already provisioned", subID)
		return nil
	}

	plan := sess.Metadata["plan_type"]
	if plan != store.PlanSaaS && plan != store.PlanEnterprise {
		plan = store.PlanSaaS
	}
	status, periodEnd, err := s.fetchSubscriptionState(ctx, subID)
	if err != nil {
		return err
	}

	email := strings.ToLower(strings.TrimSpace(sess.CustomerDetails.Email))
	name := strings.TrimSpace(sess.CustomerDetails.Name)
	if name == "" {
		name = email
	}

	var org *store.Organization
	var password string
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user != nil {
		s.logger.Printf("checkout for existing account %s, linking subscription", email)
		org, err = s.orgs.GetByID(ctx, user.OrgID)
		if err != nil {
			return err
		}
		if org == nil {
			return fmt.Errorf("organization %d not found for user %s", user.OrgID, email)
		}
		if user.Role != store.RoleAdmin {
			user.Role = store.RoleAdmin
			if err := s.users.Update(ctx, user); err != nil {
				return err
			}
		}
	} else {
		org = &store.Organization{Name: name, Slug: s.uniqueSlug(ctx, name), Active: true}
		if _, err := s.orgs.Create(ctx, org); err != nil {
			return err
		}
		password, err = utils.RandString(16)
		if err != nil {
			return err
		}
		ph, err := auth.HashPassword(password, s.cfg.Pepper)
		if err != nil {
			return err
		}
		user = &store.User{
			OrgID:        org.ID,
			Email:        email,
			DisplayName:  name,
			Role:         store.RoleAdmin,
			Active:       true,
			PasswordHash: ph.Hash,
			Salt:         ph.Salt,
		}
		if _, err := s.users.Create(ctx, user); err != nil {
			return err
		}
	}

	sub := &store.Subscription{
		OrgID:                org.ID,
		Plan:                 plan,
		StripeCustomerID:     customerID(sess),
		StripeSubscriptionID: subID,
		Status:               status,
		CurrentPeriodEnd:     periodEnd,
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return err
	}

	if password != "" && s.sender != nil {
		msg := mail.Welcome(s.cfg.BaseURL, org, email, password)
		if err := s.sender.Send(ctx, org, msg); err != nil {
			s.logger.Errorf("welcome mail to %s: %v", email, err)
		}
	}
	return nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	err := s.subs.UpdateStatus(ctx, sub.ID, string(sub.Status), subscriptionPeriodEnd(sub))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	existing, err := s.subs.GetByStripeSubscription(ctx, sub.ID)
	if err != nil || existing == nil {
		return err
	}
	err = s.subs.UpdateStatus(ctx, sub.ID, "canceled", existing.CurrentPeriodEnd)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) handlePaymentFailed(ctx context.Context, inv *stripe.Invoice) error {
	if inv.Customer == nil {
		return nil
	}
	existing, err := s.subs.GetByStripeCustomer(ctx, inv.Customer.ID)
	if err != nil || existing == nil {
		return err
	}
	err = s.subs.UpdateStatus(ctx, existing.StripeSubscriptionID, "past_due", existing.CurrentPeriodEnd)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// CancelAtPeriodEnd flags the org's Stripe subscription to lapse instead of
// renewing. The row keeps its current status until Stripe reports the change.
func (s *Service) CancelAtPeriodEnd(ctx context.Context, orgID int64) error {
	sub, err := s.orgSubscription(ctx, orgID)
	if err != nil {
		return err
	}
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	_, err = subscription.Update(sub.StripeSubscriptionID, params)
	return err
}

// CancelNow ends the subscription immediately.
func (s *Service) CancelNow(ctx context.Context, orgID int64) error {
	sub, err := s.orgSubscription(ctx, orgID)
	if err != nil {
		return err
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := subscription.Cancel(sub.StripeSubscriptionID, params); err != nil {
		return err
	}
	return s.subs.UpdateStatus(ctx, sub.StripeSubscriptionID, "canceled", sub.CurrentPeriodEnd)
}

// Reactivate clears a pending period-end cancellation.
func (s *Service) Reactivate(ctx context.Context, orgID int64) error {
	sub, err := s.orgSubscription(ctx, orgID)
	if err != nil {
		return err
	}
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(false)}
	params.Context = ctx
	_, err = subscription.Update(sub.StripeSubscriptionID, params)
	return err
}

func (s *Service) orgSubscription(ctx context.Context, orgID int64) (*store.Subscription, error) {
	sub, err := s.subs.GetByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}
	return sub, nil
}

func (s *Service) fetchSubscriptionState(ctx context.Context, subID string) (string, *time.Time, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(subID, params)
	if err != nil {
		return "", nil, fmt.Errorf("retrieve subscription %s: %w", subID, err)
	}
	return string(sub.Status), subscriptionPeriodEnd(sub), nil
}

func subscriptionPeriodEnd(sub *stripe.Subscription) *time.Time {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	end := sub.Items.Data[0].CurrentPeriodEnd
	if end <= 0 {
		return nil
	}
	t := time.Unix(end, 0).UTC()
	return &t
}

func customerID(sess *stripe.CheckoutSession) string {
	if sess.Customer == nil {
		return ""
	}
	return sess.Customer.ID
}

// uniqueSlug derives an org slug from the customer's name, suffixing when
// the plain form is taken.
func (s *Service) uniqueSlug(ctx context.Context, name string) string {
	base := slugify(name)
	if base == "" {
		base = "org"
	}
	slug := base
	for i := 0; i < 5; i++ {
		existing, err := s.orgs.GetBySlug(ctx, slug)
		if err == nil && existing == nil {
			return slug
		}
		suffix, err := utils.RandString(4)
		if err != nil {
			break
		}
		slug = base + "-" + strings.ToLower(suffix)
	}
	return slug
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
