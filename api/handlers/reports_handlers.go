package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"blik/core/report"
	"blik/core/store"
	"blik/core/utils"
)

type ReportsHandler struct {
	users     store.UsersStore
	orgs      store.OrganizationsStore
	cycles    store.CyclesStore
	reportSvc *report.Service
	logger    *utils.Logger
}

func NewReportsHandler(users store.UsersStore, orgs store.OrganizationsStore, cycles store.CyclesStore, reportSvc *report.Service, logger *utils.Logger) *ReportsHandler {
	return &ReportsHandler{users: users, orgs: orgs, cycles: cycles, reportSvc: reportSvc, logger: logger}
}

// Generate recomputes the aggregate for a cycle, replacing any previous
// report for it.
func (h *ReportsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	rep, err := h.reportSvc.Generate(r.Context(), org, id)
	if err != nil {
		if errors.Is(err, report.ErrCycleNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		if h.logger != nil {
			h.logger.Errorf("report generate for cycle %d: %v", id, err)
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, reportPayload(rep))
}

func (h *ReportsHandler) GetByCycle(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	rep, err := h.reportSvc.GetByCycle(r.Context(), org, id)
	if err != nil {
		if errors.Is(err, report.ErrCycleNotFound) || errors.Is(err, report.ErrReportNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reportPayload(rep))
}

func (h *ReportsHandler) GetByUUID(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	publicID := strings.TrimSpace(pathParams(r)["uuid"])
	if publicID == "" {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	rep, err := h.reportSvc.GetByUUID(r.Context(), publicID)
	if err != nil {
		if errors.Is(err, report.ErrReportNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	// The uuid lookup is unscoped; pin the report to the caller's org.
	cycle, err := h.cycles.GetByID(r.Context(), org.ID, rep.CycleID)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if cycle == nil {
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, reportPayload(rep))
}

// reportPayload re-inflates the stored aggregate so clients get structured
// JSON rather than an escaped string.
func reportPayload(rep *store.Report) map[string]any {
	payload := map[string]any{
		"id":           rep.ID,
		"cycle_id":     rep.CycleID,
		"uuid":         rep.UUID,
		"generated_at": rep.GeneratedAt,
	}
	var data any
	if err := json.Unmarshal([]byte(rep.Data), &data); err == nil {
		payload["data"] = data
	} else {
		payload["data"] = rep.Data
	}
	return payload
}
