package routegroups

import (
	"blik/api/handlers"
	"github.com/go-chi/chi/v5"
)

func RegisterReviews(apiRouter chi.Router, g Guards, reviewees *handlers.RevieweesHandler, questionnaires *handlers.QuestionnairesHandler, cycles *handlers.CyclesHandler, reports *handlers.ReportsHandler) {
	apiRouter.Route("/reviewees", func(revieweesRouter chi.Router) {
		revieweesRouter.MethodFunc("GET", "/", g.SessionPerm("reviewees.view", reviewees.List))
		revieweesRouter.MethodFunc("POST", "/", g.SessionPerm("reviewees.manage", reviewees.Create))
		revieweesRouter.MethodFunc("GET", "/{id:[0-9]+}", g.SessionPerm("reviewees.view", reviewees.Get))
		revieweesRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.SessionPerm("reviewees.manage", reviewees.Update))
		revieweesRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.SessionPerm("reviewees.manage", reviewees.Delete))
		revieweesRouter.MethodFunc("GET", "/{id:[0-9]+}/cycles", g.SessionPerm("cycles.view", cycles.ListForReviewee))
	})

	apiRouter.Route("/questionnaires", func(questionnairesRouter chi.Router) {
		questionnairesRouter.MethodFunc("GET", "/", g.SessionPerm("questionnaires.view", questionnaires.List))
		questionnairesRouter.MethodFunc("POST", "/", g.SessionPerm("questionnaires.manage", questionnaires.Create))
		questionnairesRouter.MethodFunc("GET", "/{id:[0-9]+}", g.SessionPerm("questionnaires.view", questionnaires.Get))
		questionnairesRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.SessionPerm("questionnaires.manage", questionnaires.Update))
		questionnairesRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.SessionPerm("questionnaires.manage", questionnaires.Delete))
		questionnairesRouter.MethodFunc("POST", "/{id:[0-9]+}/sections", g.SessionPerm("questionnaires.manage", questionnaires.CreateSection))
		questionnairesRouter.MethodFunc("PUT", "/{id:[0-9]+}/sections/{section_id:[0-9]+}", g.SessionPerm("questionnaires.manage", questionnaires.UpdateSection))
		questionnairesRouter.MethodFunc("DELETE", "/{id:[0-9]+}/sections/{section_id:[0-9]+}", g.SessionPerm("questionnaires.manage", questionnaires.DeleteSection))
		questionnairesRouter.MethodFunc("POST", "/{id:[0-9]+}/sections/{section_id:[0-9]+}/questions", g.SessionPerm("questionnaires.manage", questionnaires.CreateQuestion))
		questionnairesRouter.MethodFunc("PUT", "/{id:[0-9]+}/questions/{question_id:[0-9]+}", g.SessionPerm("questionnaires.manage", questionnaires.UpdateQuestion))
		questionnairesRouter.MethodFunc("DELETE", "/{id:[0-9]+}/questions/{question_id:[0-9]+}", g.SessionPerm("questionnaires.manage", questionnaires.DeleteQuestion))
	})

	apiRouter.Route("/cycles", func(cyclesRouter chi.Router) {
		cyclesRouter.MethodFunc("GET", "/", g.SessionPerm("cycles.view", cycles.List))
		cyclesRouter.MethodFunc("POST", "/", g.SessionPerm("cycles.manage", cycles.Create))
		cyclesRouter.MethodFunc("GET", "/{id:[0-9]+}", g.SessionPerm("cycles.view", cycles.Get))
		cyclesRouter.MethodFunc("POST", "/{id:[0-9]+}/close", g.SessionPerm("cycles.manage", cycles.Close))
		cyclesRouter.MethodFunc("POST", "/{id:[0-9]+}/reopen", g.SessionPerm("cycles.manage", cycles.Reopen))
		cyclesRouter.MethodFunc("POST", "/{id:[0-9]+}/reviewers", g.SessionPerm("cycles.manage", cycles.AssignReviewers))
		cyclesRouter.MethodFunc("POST", "/{id:[0-9]+}/invitations", g.SessionPerm("cycles.manage", cycles.SendInvitations))
		cyclesRouter.MethodFunc("POST", "/{id:[0-9]+}/reminders", g.SessionPerm("cycles.manage", cycles.SendReminders))
	})

	apiRouter.Route("/reports", func(reportsRouter chi.Router) {
		reportsRouter.MethodFunc("POST", "/cycles/{id:[0-9]+}", g.SessionPerm("reports.generate", reports.Generate))
		reportsRouter.MethodFunc("GET", "/cycles/{id:[0-9]+}", g.SessionPerm("reports.view", reports.GetByCycle))
		reportsRouter.MethodFunc("GET", "/{uuid}", g.SessionPerm("reports.view", reports.GetByUUID))
	})
}
