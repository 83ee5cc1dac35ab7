package api

import "blik/api/handlers"

type routeHandlers struct {
	health         *handlers.HealthHandler
	auth           *handlers.AuthHandler
	org            *handlers.OrgHandler
	reviewees      *handlers.RevieweesHandler
	questionnaires *handlers.QuestionnairesHandler
	cycles         *handlers.CyclesHandler
	reports        *handlers.ReportsHandler
	apiTokens      *handlers.APITokensHandler
	webhooks       *handlers.WebhooksHandler
	billing        *handlers.BillingHandler
	feedback       *handlers.FeedbackHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		health:         handlers.NewHealthHandler(),
		auth:           handlers.NewAuthHandler(s.cfg, s.users, s.orgs, s.sessions, s.sessionManager, s.policy, s.mailer, s.logger),
		org:            handlers.NewOrgHandler(s.cfg, s.orgs, s.users, s.encryptor, s.logger),
		reviewees:      handlers.NewRevieweesHandler(s.users, s.orgs, s.reviewees, s.logger),
		questionnaires: handlers.NewQuestionnairesHandler(s.users, s.orgs, s.questionnaires, s.logger),
		cycles:         handlers.NewCyclesHandler(s.users, s.orgs, s.cycles, s.tokens, s.reviewSvc, s.logger),
		reports:        handlers.NewReportsHandler(s.users, s.orgs, s.cycles, s.reportSvc, s.logger),
		apiTokens:      handlers.NewAPITokensHandler(s.users, s.orgs, s.apiTokens, s.logger),
		webhooks:       handlers.NewWebhooksHandler(s.users, s.orgs, s.webhooks, s.dispatcher, s.logger),
		billing:        handlers.NewBillingHandler(s.cfg, s.users, s.orgs, s.subscriptions, s.billingSvc, s.logger),
		feedback:       handlers.NewFeedbackHandler(s.reviewSvc, s.logger),
	}
}
