// Package appbootstrap wires stores, services, and background workers into
// the dependency set the server runtime needs. All composition lives here;
// nothing else constructs services from raw stores.
package appbootstrap

import (
	"database/sql"
	"fmt"

	"blik/api"
	"blik/config"
	"blik/core/auth"
	"blik/core/billing"
	"blik/core/landing"
	"blik/core/mail"
	"blik/core/rbac"
	"blik/core/report"
	"blik/core/review"
	"blik/core/store"
	"blik/core/upgrade"
	"blik/core/utils"
	"blik/core/webhook"
)

// Runtime is the composed application: everything the serve command needs
// to build the router and run the background workers.
type Runtime struct {
	ServerDeps api.ServerDeps
	Sessions   store.SessionStore
	Upgrades   *upgrade.Runner
	Workers    []api.BackgroundWorker
}

func Compose(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*Runtime, error) {
	users := store.NewUsersStore(db)
	sessions := store.NewSessionStore(db)
	orgs := store.NewOrganizationsStore(db)
	reviewees := store.NewRevieweesStore(db)
	questionnaires := store.NewQuestionnairesStore(db)
	cycles := store.NewCyclesStore(db)
	tokens := store.NewReviewerTokensStore(db)
	responses := store.NewResponsesStore(db)
	reports := store.NewReportsStore(db)
	apiTokens := store.NewAPITokensStore(db)
	webhooks := store.NewWebhooksStore(db)
	subscriptions := store.NewSubscriptionsStore(db)
	upgradeSteps := store.NewUpgradeStepsStore(db)

	encryptor, err := utils.NewEncryptorFromString(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	mailer := mail.NewSMTPSender(cfg, encryptor, logger)
	dispatcher := webhook.NewDispatcher(webhooks, logger)

	reviewSvc := review.NewService(cfg, orgs, reviewees, questionnaires, cycles, tokens, responses, mailer, dispatcher, logger)
	reportSvc := report.NewService(reviewees, questionnaires, cycles, responses, reports, dispatcher, logger)
	billingSvc := billing.NewService(cfg, orgs, users, subscriptions, mailer, logger)
	upgrades := upgrade.NewRunner(upgradeSteps, &upgrade.Env{Questionnaires: questionnaires, Logger: logger}, logger)

	site, err := landing.New(cfg.Landing, cfg.Stripe, false, logger)
	if err != nil {
		return nil, err
	}

	var workers []api.BackgroundWorker
	if cfg.Scheduler.Enabled {
		workers = append(workers, review.NewScheduler(cfg.Scheduler, reviewSvc, dispatcher, logger))
	}

	return &Runtime{
		ServerDeps: api.ServerDeps{
			Users:          users,
			Sessions:       sessions,
			Orgs:           orgs,
			Reviewees:      reviewees,
			Questionnaires: questionnaires,
			Cycles:         cycles,
			Tokens:         tokens,
			Reports:        reports,
			APITokens:      apiTokens,
			Webhooks:       webhooks,
			Subscriptions:  subscriptions,
			ReviewSvc:      reviewSvc,
			ReportSvc:      reportSvc,
			BillingSvc:     billingSvc,
			Dispatcher:     dispatcher,
			SessionManager: auth.NewSessionManager(sessions, cfg, logger),
			Policy:         rbac.Default(),
			Encryptor:      encryptor,
			Mailer:         mailer,
			Landing:        site.Routes(),
		},
		Sessions: sessions,
		Upgrades: upgrades,
		Workers:  workers,
	}, nil
}
