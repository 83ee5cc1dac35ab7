// Package external is the token-authenticated integration API mounted at
// /api/v1. Every resource is addressed by its public uuid, never by the
// internal row id, so clients cannot enumerate other organizations' data.
package external

import (
	"context"
	"net/http"
	"strings"
	"time"

	"blik/core/store"
	"blik/core/utils"
)

const tokenPrefix = "blk_"

type contextKey string

const orgContextKey contextKey = "blik.external.org"

type Handler struct {
	apiTokens store.APITokensStore
	orgs      store.OrganizationsStore
	reviewees store.RevieweesStore
	cycles    store.CyclesStore
	reports   store.ReportsStore
	logger    *utils.Logger
}

func NewHandler(apiTokens store.APITokensStore, orgs store.OrganizationsStore, reviewees store.RevieweesStore, cycles store.CyclesStore, reports store.ReportsStore, logger *utils.Logger) *Handler {
	return &Handler{apiTokens: apiTokens, orgs: orgs, reviewees: reviewees, cycles: cycles, reports: reports, logger: logger}
}

// withToken resolves the Authorization bearer token to an organization and
// stamps the token's last-use. Revoked and unknown tokens get the same 401
// so probing reveals nothing.
func (h *Handler) withToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		const scheme = "Bearer "
		if !strings.HasPrefix(raw, scheme) {
			writeError(w, http.StatusUnauthorized, "auth.tokenRequired")
			return
		}
		secret := strings.TrimSpace(raw[len(scheme):])
		if !strings.HasPrefix(secret, tokenPrefix) {
			writeError(w, http.StatusUnauthorized, "auth.invalidToken")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		token, err := h.apiTokens.GetByHash(ctx, utils.Sha256Hex([]byte(secret)))
		if err != nil {
			h.logger.Errorf("api token lookup: %v", err)
			writeError(w, http.StatusInternalServerError, "common.serverError")
			return
		}
		if token == nil {
			writeError(w, http.StatusUnauthorized, "auth.invalidToken")
			return
		}
		org, err := h.orgs.GetByID(ctx, token.OrgID)
		if err != nil || org == nil || !org.Active {
			writeError(w, http.StatusUnauthorized, "auth.invalidToken")
			return
		}
		if err := h.apiTokens.TouchLastUsed(ctx, token.ID, utils.NowUTC()); err != nil {
			h.logger.Errorf("api token touch: %v", err)
		}
		next(w, r.WithContext(context.WithValue(r.Context(), orgContextKey, org)))
	}
}

func requestOrg(r *http.Request) *store.Organization {
	org, _ := r.Context().Value(orgContextKey).(*store.Organization)
	return org
}

func (h *Handler) ListReviewees(w http.ResponseWriter, r *http.Request) {
	org := requestOrg(r)
	items, err := h.reviewees.ListByOrg(r.Context(), org.ID, false)
	if err != nil {
		h.logger.Errorf("external list reviewees: %v", err)
		writeError(w, http.StatusInternalServerError, "common.serverError")
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, rv := range items {
		out = append(out, revieweePayload(&rv))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) GetReviewee(w http.ResponseWriter, r *http.Request) {
	org := requestOrg(r)
	rv, err := h.reviewees.GetByUUID(r.Context(), org.ID, urlParam(r, "uuid"))
	if err != nil {
		h.logger.Errorf("external get reviewee: %v", err)
		writeError(w, http.StatusInternalServerError, "common.serverError")
		return
	}
	if rv == nil {
		writeError(w, http.StatusNotFound, "common.notFound")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": revieweePayload(rv)})
}

func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	org := requestOrg(r)
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	switch status {
	case "", store.CycleStatusActive, store.CycleStatusCompleted:
	default:
		writeError(w, http.StatusBadRequest, "common.invalidRequest")
		return
	}
	cycles, err := h.cycles.ListByOrg(r.Context(), org.ID, status)
	if err != nil {
		h.logger.Errorf("external list cycles: %v", err)
		writeError(w, http.StatusInternalServerError, "common.serverError")
		return
	}
	out := make([]map[string]any, 0, len(cycles))
	for i := range cycles {
		payload, err := h.cyclePayload(r.Context(), org.ID, &cycles[i])
		if err != nil {
			h.logger.Errorf("external cycle payload: %v", err)
			writeError(w, http.StatusInternalServerError, "common.serverError")
			return
		}
		out = append(out, payload)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) GetCycle(w http.ResponseWriter, r *http.Request) {
	org := requestOrg(r)
	id, ok := pathInt64(urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "common.invalidRequest")
		return
	}
	cycle, err := h.cycles.GetByID(r.Context(), org.ID, id)
	if err != nil {
		h.logger.Errorf("external get cycle: %v", err)
		writeError(w, http.StatusInternalServerError, "common.serverError")
		return
	}
	if cycle == nil {
		writeError(w, http.StatusNotFound, "common.notFound")
		return
	}
	payload, err := h.cyclePayload(r.Context(), org.ID, cycle)
	if err != nil {
		h.logger.Errorf("external cycle payload: %v", err)
		writeError(w, http.StatusInternalServerError, "common.serverError")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": payload})
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	org := requestOrg(r)
	report, err := h.reports.GetByUUID(r.Context(), urlParam(r, "uuid"))
	if err != nil {
		h.logger.Errorf("external get report: %v", err)
		writeError(w, http.StatusInternalServerError, "common.serverError")
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "common.notFound")
		return
	}
	// A report uuid is global; still verify the cycle belongs to the
	// token's org before handing the payload over.
	cycle, err := h.cycles.GetByID(r.Context(), org.ID, report.CycleID)
	if err != nil {
		h.logger.Errorf("external report cycle: %v", err)
		writeError(w, http.StatusInternalServerError, "common.serverError")
		return
	}
	if cycle == nil {
		writeError(w, http.StatusNotFound, "common.notFound")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": map[string]any{
		"uuid":         report.UUID,
		"cycle_id":     report.CycleID,
		"generated_at": report.GeneratedAt,
		"data":         rawJSON(report.Data),
	}})
}

func revieweePayload(rv *store.Reviewee) map[string]any {
	return map[string]any{
		"uuid":       rv.UUID,
		"name":       rv.Name,
		"email":      rv.Email,
		"role_title": rv.RoleTitle,
		"active":     rv.Active,
		"created_at": rv.CreatedAt,
	}
}

func (h *Handler) cyclePayload(ctx context.Context, orgID int64, cycle *store.ReviewCycle) (map[string]any, error) {
	rv, err := h.reviewees.GetByID(ctx, orgID, cycle.RevieweeID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"id":           cycle.ID,
		"status":       cycle.Status,
		"opened_at":    cycle.OpenedAt,
		"closes_at":    cycle.ClosesAt,
		"completed_at": cycle.CompletedAt,
	}
	if rv != nil {
		payload["reviewee_uuid"] = rv.UUID
		payload["reviewee_name"] = rv.Name
	}
	if report, err := h.reports.GetByCycle(ctx, cycle.ID); err == nil && report != nil {
		payload["report_uuid"] = report.UUID
	}
	return payload, nil
}
