// Package api is the HTTP surface: the session-authenticated dashboard
// API, the public feedback form endpoints, the Stripe webhook receiver,
// and the token-authenticated integration API under /api/v1.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"blik/api/external"
	"blik/api/routegroups"
	"blik/config"
	"blik/core/auth"
	"blik/core/billing"
	"blik/core/mail"
	"blik/core/rbac"
	"blik/core/report"
	"blik/core/review"
	"blik/core/store"
	"blik/core/utils"
	"blik/core/webhook"
)

// BackgroundWorker is anything the server runtime starts alongside the
// listener and stops on shutdown.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

// ServerDeps carries the composed stores and services into the server.
type ServerDeps struct {
	Users          store.UsersStore
	Sessions       store.SessionStore
	Orgs           store.OrganizationsStore
	Reviewees      store.RevieweesStore
	Questionnaires store.QuestionnairesStore
	Cycles         store.CyclesStore
	Tokens         store.ReviewerTokensStore
	Reports        store.ReportsStore
	APITokens      store.APITokensStore
	Webhooks       store.WebhooksStore
	Subscriptions  store.SubscriptionsStore

	ReviewSvc  *review.Service
	ReportSvc  *report.Service
	BillingSvc *billing.Service
	Dispatcher *webhook.Dispatcher

	SessionManager *auth.SessionManager
	Policy         *rbac.Policy
	Encryptor      *utils.Encryptor
	Mailer         mail.Sender

	// Landing serves the marketing pages under /landing when set.
	Landing http.Handler
}

type Server struct {
	cfg    *config.AppConfig
	logger *utils.Logger

	users          store.UsersStore
	sessions       store.SessionStore
	orgs           store.OrganizationsStore
	reviewees      store.RevieweesStore
	questionnaires store.QuestionnairesStore
	cycles         store.CyclesStore
	tokens         store.ReviewerTokensStore
	reports        store.ReportsStore
	apiTokens      store.APITokensStore
	webhooks       store.WebhooksStore
	subscriptions  store.SubscriptionsStore

	reviewSvc  *review.Service
	reportSvc  *report.Service
	billingSvc *billing.Service
	dispatcher *webhook.Dispatcher

	sessionManager  *auth.SessionManager
	policy          *rbac.Policy
	encryptor       *utils.Encryptor
	mailer          mail.Sender
	activityTracker *sessionActivity
	landing         http.Handler
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	policy := deps.Policy
	if policy == nil {
		policy = rbac.Default()
	}
	return &Server{
		cfg:             cfg,
		logger:          logger,
		users:           deps.Users,
		sessions:        deps.Sessions,
		orgs:            deps.Orgs,
		reviewees:       deps.Reviewees,
		questionnaires:  deps.Questionnaires,
		cycles:          deps.Cycles,
		tokens:          deps.Tokens,
		reports:         deps.Reports,
		apiTokens:       deps.APITokens,
		webhooks:        deps.Webhooks,
		subscriptions:   deps.Subscriptions,
		reviewSvc:       deps.ReviewSvc,
		reportSvc:       deps.ReportSvc,
		billingSvc:      deps.BillingSvc,
		dispatcher:      deps.Dispatcher,
		sessionManager:  deps.SessionManager,
		policy:          policy,
		encryptor:       deps.Encryptor,
		mailer:          deps.Mailer,
		activityTracker: newSessionActivity(),
		landing:         deps.Landing,
	}
}

// Routes assembles the full router. Session routes pass through the CSRF
// and permission guards; the public feedback, Stripe webhook, and health
// endpoints do not.
func (s *Server) Routes() http.Handler {
	h := s.newRouteHandlers()
	guards := routegroups.Guards{
		WithSession: s.withSession,
		RequirePermission: func(p string) func(http.HandlerFunc) http.HandlerFunc {
			return s.requirePermission(rbac.Permission(p))
		},
		RequireAnyPermission: func(perms ...string) func(http.HandlerFunc) http.HandlerFunc {
			converted := make([]rbac.Permission, len(perms))
			for i, p := range perms {
				converted[i] = rbac.Permission(p)
			}
			return s.requireAnyPermission(converted...)
		},
	}

	root := chi.NewRouter()
	root.Use(s.recoverMiddleware)
	root.Use(s.securityHeadersMiddleware)

	root.Get("/healthz", h.health.Check)

	root.Route("/feedback", func(r chi.Router) {
		r.Get("/{token}", h.feedback.GetForm)
		r.Post("/{token}", h.feedback.Submit)
		r.Post("/{token}/complete", h.feedback.Complete)
		r.Get("/{token}/complete", h.feedback.Completion)
	})

	root.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(s.jsonMiddleware)
		apiRouter.Use(s.loggingMiddleware)

		apiRouter.MethodFunc(http.MethodPost, "/auth/login", s.rateLimitMiddleware(h.auth.Login))
		apiRouter.MethodFunc(http.MethodPost, "/auth/register", s.rateLimitMiddleware(h.auth.Register))
		apiRouter.MethodFunc(http.MethodPost, "/auth/logout", s.withSession(h.auth.Logout))
		apiRouter.MethodFunc(http.MethodGet, "/auth/me", s.withSession(h.auth.Me))

		apiRouter.MethodFunc(http.MethodPost, "/billing/stripe-webhook", h.billing.StripeWebhook)

		routegroups.RegisterReviews(apiRouter, guards, h.reviewees, h.questionnaires, h.cycles, h.reports)
		routegroups.RegisterAdmin(apiRouter, guards, h.org, h.apiTokens, h.webhooks, h.billing)
	})

	root.Mount("/api/v1", external.RegisterRoutes(external.RouteDeps{
		Handler: external.NewHandler(s.apiTokens, s.orgs, s.reviewees, s.cycles, s.reports, s.logger),
	}))

	if s.landing != nil {
		root.Mount("/landing", http.StripPrefix("/landing", s.landing))
	}

	return root
}
