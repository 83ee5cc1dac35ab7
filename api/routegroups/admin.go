package routegroups

import (
	"blik/api/handlers"
	"github.com/go-chi/chi/v5"
)

func RegisterAdmin(apiRouter chi.Router, g Guards, org *handlers.OrgHandler, apiTokens *handlers.APITokensHandler, webhooks *handlers.WebhooksHandler, billing *handlers.BillingHandler) {
	// Members read the org context to render the dashboard; only admins
	// change it.
	apiRouter.MethodFunc("GET", "/org", g.SessionAnyPerm(org.Get, "org.manage", "cycles.view"))
	apiRouter.MethodFunc("PUT", "/org", g.SessionPerm("org.manage", org.Update))
	apiRouter.MethodFunc("PUT", "/org/smtp", g.SessionPerm("org.manage", org.UpdateSMTP))

	apiRouter.Route("/api-tokens", func(tokensRouter chi.Router) {
		tokensRouter.MethodFunc("GET", "/", g.SessionPerm("api_tokens.manage", apiTokens.List))
		tokensRouter.MethodFunc("POST", "/", g.SessionPerm("api_tokens.manage", apiTokens.Create))
		tokensRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.SessionPerm("api_tokens.manage", apiTokens.Revoke))
	})

	apiRouter.Route("/webhooks", func(webhooksRouter chi.Router) {
		webhooksRouter.MethodFunc("GET", "/", g.SessionPerm("webhooks.manage", webhooks.List))
		webhooksRouter.MethodFunc("POST", "/", g.SessionPerm("webhooks.manage", webhooks.Create))
		webhooksRouter.MethodFunc("GET", "/{id:[0-9]+}", g.SessionPerm("webhooks.manage", webhooks.Get))
		webhooksRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.SessionPerm("webhooks.manage", webhooks.Update))
		webhooksRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.SessionPerm("webhooks.manage", webhooks.Delete))
		webhooksRouter.MethodFunc("POST", "/{id:[0-9]+}/test", g.SessionPerm("webhooks.manage", webhooks.Test))
		webhooksRouter.MethodFunc("GET", "/{id:[0-9]+}/deliveries", g.SessionPerm("webhooks.manage", webhooks.ListDeliveries))
	})

	apiRouter.Route("/billing", func(billingRouter chi.Router) {
		billingRouter.MethodFunc("GET", "/subscription", g.SessionPerm("billing.manage", billing.GetSubscription))
		billingRouter.MethodFunc("POST", "/checkout", g.SessionPerm("billing.manage", billing.CreateCheckout))
		billingRouter.MethodFunc("POST", "/cancel", g.SessionPerm("billing.manage", billing.Cancel))
		billingRouter.MethodFunc("POST", "/reactivate", g.SessionPerm("billing.manage", billing.Reactivate))
	})
}
