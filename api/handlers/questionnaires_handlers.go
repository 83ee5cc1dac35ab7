package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"blik/core/store"
	"blik/core/utils"
)

type QuestionnairesHandler struct {
	users          store.UsersStore
	orgs           store.OrganizationsStore
	questionnaires store.QuestionnairesStore
	logger         *utils.Logger
}

func NewQuestionnairesHandler(users store.UsersStore, orgs store.OrganizationsStore, questionnaires store.QuestionnairesStore, logger *utils.Logger) *QuestionnairesHandler {
	return &QuestionnairesHandler{users: users, orgs: orgs, questionnaires: questionnaires, logger: logger}
}

func (h *QuestionnairesHandler) List(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	items, err := h.questionnaires.ListForOrg(r.Context(), org.ID)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.Questionnaire{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Create accepts an optional nested sections/questions tree and persists
// the whole thing in one go.
func (h *QuestionnairesHandler) Create(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	var payload store.Questionnaire
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Title) == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	for si := range payload.Sections {
		sec := &payload.Sections[si]
		if strings.TrimSpace(sec.Title) == "" {
			http.Error(w, "section title is required", http.StatusBadRequest)
			return
		}
		for qi := range sec.Questions {
			if err := validateDraftQuestion(&sec.Questions[qi]); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
	}
	payload.ID = 0
	payload.UUID = ""
	orgID := org.ID
	payload.OrgID = &orgID
	var (
		id  int64
		err error
	)
	if len(payload.Sections) > 0 {
		id, err = h.questionnaires.CreateFull(r.Context(), &payload)
	} else {
		id, err = h.questionnaires.Create(r.Context(), &payload)
	}
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	full, err := h.questionnaires.GetFull(r.Context(), id)
	if err != nil || full == nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, full)
}

func (h *QuestionnairesHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	qn, ok := h.loadVisible(w, r, org.ID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, qn)
}

func (h *QuestionnairesHandler) Update(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	qn, ok := h.loadEditable(w, r, org.ID)
	if !ok {
		return
	}
	var payload struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		IsDefault   *bool   `json:"is_default"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if payload.Title != nil {
		if strings.TrimSpace(*payload.Title) == "" {
			http.Error(w, "title is required", http.StatusBadRequest)
			return
		}
		qn.Title = *payload.Title
	}
	if payload.Description != nil {
		qn.Description = *payload.Description
	}
	if payload.IsDefault != nil {
		qn.IsDefault = *payload.IsDefault
	}
	if err := h.questionnaires.Update(r.Context(), qn); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, qn)
}

func (h *QuestionnairesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	qn, ok := h.loadEditable(w, r, org.ID)
	if !ok {
		return
	}
	if err := h.questionnaires.Delete(r.Context(), qn.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *QuestionnairesHandler) CreateSection(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	qn, ok := h.loadEditable(w, r, org.ID)
	if !ok {
		return
	}
	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Position    int    `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Title) == "" {
		http.Error(w, "section title is required", http.StatusBadRequest)
		return
	}
	sec := &store.QuestionSection{
		QuestionnaireID: qn.ID,
		Title:           payload.Title,
		Description:     payload.Description,
		Position:        payload.Position,
	}
	if sec.Position <= 0 {
		sec.Position = len(qn.Sections) + 1
	}
	if _, err := h.questionnaires.CreateSection(r.Context(), sec); err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, sec)
}

func (h *QuestionnairesHandler) UpdateSection(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	qn, ok := h.loadEditable(w, r, org.ID)
	if !ok {
		return
	}
	secID, err := parseID(pathParams(r)["section_id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	sec := findSection(qn, secID)
	if sec == nil {
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	}
	var payload struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Position    *int    `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if payload.Title != nil {
		if strings.TrimSpace(*payload.Title) == "" {
			http.Error(w, "section title is required", http.StatusBadRequest)
			return
		}
		sec.Title = *payload.Title
	}
	if payload.Description != nil {
		sec.Description = *payload.Description
	}
	if payload.Position != nil && *payload.Position > 0 {
		sec.Position = *payload.Position
	}
	if err := h.questionnaires.UpdateSection(r.Context(), sec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

func (h *QuestionnairesHandler) DeleteSection(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	qn, ok := h.loadEditable(w, r, org.ID)
	if !ok {
		return
	}
	secID, err := parseID(pathParams(r)["section_id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if findSection(qn, secID) == nil {
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	}
	if err := h.questionnaires.DeleteSection(r.Context(), secID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *QuestionnairesHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	qn, ok := h.loadEditable(w, r, org.ID)
	if !ok {
		return
	}
	secID, err := parseID(pathParams(r)["section_id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	sec := findSection(qn, secID)
	if sec == nil {
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	}
	var payload struct {
		Text     string `json:"text"`
		Kind     string `json:"kind"`
		Config   string `json:"config"`
		Position int    `json:"position"`
		Required bool   `json:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	question := &store.Question{
		SectionID: sec.ID,
		Text:      payload.Text,
		Kind:      payload.Kind,
		Config:    payload.Config,
		Position:  payload.Position,
		Required:  payload.Required,
	}
	if err := validateDraftQuestion(question); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if question.Position <= 0 {
		question.Position = len(sec.Questions) + 1
	}
	if _, err := h.questionnaires.CreateQuestion(r.Context(), question); err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, question)
}

func (h *QuestionnairesHandler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	qn, ok := h.loadEditable(w, r, org.ID)
	if !ok {
		return
	}
	questionID, err := parseID(pathParams(r)["question_id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	question := findQuestion(qn, questionID)
	if question == nil {
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	}
	var payload struct {
		Text     *string `json:"text"`
		Kind     *string `json:"kind"`
		Config   *string `json:"config"`
		Position *int    `json:"position"`
		Required *bool   `json:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if payload.Text != nil {
		question.Text = *payload.Text
	}
	if payload.Kind != nil {
		question.Kind = *payload.Kind
	}
	if payload.Config != nil {
		question.Config = *payload.Config
	}
	if payload.Position != nil && *payload.Position > 0 {
		question.Position = *payload.Position
	}
	if payload.Required != nil {
		question.Required = *payload.Required
	}
	if err := validateDraftQuestion(question); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.questionnaires.UpdateQuestion(r.Context(), question); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (h *QuestionnairesHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	_, org, ok := requestOrg(w, r, h.users, h.orgs)
	if !ok {
		return
	}
	qn, ok := h.loadEditable(w, r, org.ID)
	if !ok {
		return
	}
	questionID, err := parseID(pathParams(r)["question_id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if findQuestion(qn, questionID) == nil {
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	}
	if err := h.questionnaires.DeleteQuestion(r.Context(), questionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadVisible fetches the questionnaire with its tree when the organization
// may see it: its own, or a global one (no org).
func (h *QuestionnairesHandler) loadVisible(w http.ResponseWriter, r *http.Request, orgID int64) (*store.Questionnaire, bool) {
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return nil, false
	}
	qn, err := h.questionnaires.GetFull(r.Context(), id)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return nil, false
	}
	if qn == nil || (qn.OrgID != nil && *qn.OrgID != orgID) {
		http.Error(w, errNotFound, http.StatusNotFound)
		return nil, false
	}
	return qn, true
}

// loadEditable additionally rejects global questionnaires, which are
// read-only for every tenant.
func (h *QuestionnairesHandler) loadEditable(w http.ResponseWriter, r *http.Request, orgID int64) (*store.Questionnaire, bool) {
	qn, ok := h.loadVisible(w, r, orgID)
	if !ok {
		return nil, false
	}
	if qn.OrgID == nil {
		http.Error(w, "questionnaire is read-only", http.StatusForbidden)
		return nil, false
	}
	return qn, true
}

func findSection(qn *store.Questionnaire, id int64) *store.QuestionSection {
	for i := range qn.Sections {
		if qn.Sections[i].ID == id {
			return &qn.Sections[i]
		}
	}
	return nil
}

func findQuestion(qn *store.Questionnaire, id int64) *store.Question {
	for si := range qn.Sections {
		for qi := range qn.Sections[si].Questions {
			if qn.Sections[si].Questions[qi].ID == id {
				return &qn.Sections[si].Questions[qi]
			}
		}
	}
	return nil
}

func validateDraftQuestion(q *store.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return errors.New("question text is required")
	}
	switch q.Kind {
	case "", store.QuestionKindRating, store.QuestionKindLikert, store.QuestionKindText, store.QuestionKindMultipleChoice:
	default:
		return errors.New("unknown question kind")
	}
	if c := strings.TrimSpace(q.Config); c != "" && !json.Valid([]byte(c)) {
		return errors.New("config must be valid JSON")
	}
	return nil
}
