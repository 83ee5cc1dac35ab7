// Package review drives the 360 feedback lifecycle: cycles, reviewer
// tokens, invitations, answer collection, and the periodic sweeps.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"blik/config"
	"blik/core/mail"
	"blik/core/store"
	"blik/core/utils"
	"blik/core/webhook"
)

var (
	ErrCycleNotFound     = errors.New("review cycle not found")
	ErrTokenNotFound     = errors.New("reviewer token not found")
	ErrAlreadySubmitted  = errors.New("feedback already submitted")
	ErrCycleNotActive    = errors.New("review cycle is not active")
	ErrValidation        = errors.New("validation failed")
	ErrRevieweeNotFound  = errors.New("reviewee not found")
	ErrQuestionnaireGone = errors.New("questionnaire not found")
)

type Service struct {
	cfg            *config.AppConfig
	orgs           store.OrganizationsStore
	reviewees      store.RevieweesStore
	questionnaires store.QuestionnairesStore
	cycles         store.CyclesStore
	tokens         store.ReviewerTokensStore
	responses      store.ResponsesStore
	sender         mail.Sender
	dispatcher     *webhook.Dispatcher
	logger         *utils.Logger
}

func NewService(cfg *config.AppConfig, orgs store.OrganizationsStore, reviewees store.RevieweesStore,
	questionnaires store.QuestionnairesStore, cycles store.CyclesStore, tokens store.ReviewerTokensStore,
	responses store.ResponsesStore, sender mail.Sender, dispatcher *webhook.Dispatcher, logger *utils.Logger) *Service {
	return &Service{
		cfg:            cfg,
		orgs:           orgs,
		reviewees:      reviewees,
		questionnaires: questionnaires,
		cycles:         cycles,
		tokens:         tokens,
		responses:      responses,
		sender:         sender,
		dispatcher:     dispatcher,
		logger:         logger,
	}
}

type CreateCycleInput struct {
	RevieweeID      int64
	QuestionnaireID int64
	ClosesAt        *time.Time
	CreatedBy       *int64
}

// CreateCycle opens a cycle and mints one reviewer token per category so
// every cycle starts with a shareable link for self, peer, manager, and
// direct report.
func (s *Service) CreateCycle(ctx context.Context, org *store.Organization, in CreateCycleInput) (*store.ReviewCycle, []store.ReviewerToken, error) {
	reviewee, err := s.reviewees.GetByID(ctx, org.ID, in.RevieweeID)
	if err != nil {
		return nil, nil, err
	}
	if reviewee == nil {
		return nil, nil, ErrRevieweeNotFound
	}
	questionnaireID := in.QuestionnaireID
	if questionnaireID == 0 {
		def, err := s.questionnaires.DefaultForOrg(ctx, org.ID)
		if err != nil {
			return nil, nil, err
		}
		if def == nil {
			return nil, nil, ErrQuestionnaireGone
		}
		questionnaireID = def.ID
	}
	questionnaire, err := s.questionnaires.GetByID(ctx, questionnaireID)
	if err != nil {
		return nil, nil, err
	}
	if questionnaire == nil {
		return nil, nil, ErrQuestionnaireGone
	}
	if questionnaire.OrgID != nil && *questionnaire.OrgID != org.ID {
		return nil, nil, ErrQuestionnaireGone
	}

	cycle := &store.ReviewCycle{
		OrgID:           org.ID,
		RevieweeID:      reviewee.ID,
		QuestionnaireID: questionnaire.ID,
		ClosesAt:        in.ClosesAt,
		CreatedBy:       in.CreatedBy,
	}
	if _, err := s.cycles.Create(ctx, cycle); err != nil {
		return nil, nil, err
	}

	tokens := make([]store.ReviewerToken, 0, len(store.ReviewerCategories))
	for _, category := range store.ReviewerCategories {
		tokens = append(tokens, store.ReviewerToken{
			CycleID:  cycle.ID,
			Token:    uuid.Must(uuid.NewV4()).String(),
			Category: category,
		})
	}
	if err := s.tokens.CreateBatch(ctx, tokens); err != nil {
		return nil, nil, err
	}

	if s.dispatcher != nil {
		payload := map[string]any{
			"cycle_id": cycle.ID,
			"reviewee": map[string]any{
				"id":    reviewee.ID,
				"name":  reviewee.Name,
				"email": reviewee.Email,
			},
			"questionnaire": map[string]any{
				"id":   questionnaire.ID,
				"name": questionnaire.Title,
			},
			"created_at": cycle.CreatedAt.UTC().Format(time.RFC3339),
		}
		if _, err := s.dispatcher.Dispatch(ctx, org.ID, webhook.EventCycleCreated, payload); err != nil && s.logger != nil {
			s.logger.Errorf("cycle.created webhook: %v", err)
		}
	}
	return cycle, tokens, nil
}

// AssignStats reports how an assignment or send pass went. Errors are
// collected per item so one bad address never aborts the rest.
type AssignStats struct {
	Assigned int      `json:"assigned"`
	Sent     int      `json:"sent"`
	Errors   []string `json:"errors"`
}

// AssignReviewers attaches reviewer emails to category tokens. Unassigned
// tokens are filled first in shuffled order so token ids never correlate
// with the input order; extra tokens are minted when a category needs more.
func (s *Service) AssignReviewers(ctx context.Context, org *store.Organization, cycleID int64, assignments map[string][]string) (*AssignStats, error) {
	cycle, err := s.cycles.GetByID(ctx, org.ID, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, ErrCycleNotFound
	}
	if cycle.Status != store.CycleStatusActive {
		return nil, ErrCycleNotActive
	}
	existing, err := s.tokens.ListByCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	stats := &AssignStats{}
	for _, category := range store.ReviewerCategories {
		emails := cleanEmails(assignments[category])
		if len(emails) == 0 {
			continue
		}
		var available []store.ReviewerToken
		for _, t := range existing {
			if t.Category == category && t.ReviewerEmail == "" && t.CompletedAt == nil {
				available = append(available, t)
			}
		}
		rand.Shuffle(len(available), func(i, j int) {
			available[i], available[j] = available[j], available[i]
		})
		for i, email := range emails {
			if err := utils.ValidateEmail(email); err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("invalid email %q: %v", email, err))
				continue
			}
			if i < len(available) {
				if err := s.tokens.AssignReviewer(ctx, available[i].ID, email); err != nil {
					stats.Errors = append(stats.Errors, fmt.Sprintf("assign %s: %v", email, err))
					continue
				}
				stats.Assigned++
				continue
			}
			extra := []store.ReviewerToken{{
				CycleID:       cycleID,
				Token:         uuid.Must(uuid.NewV4()).String(),
				Category:      category,
				ReviewerEmail: email,
			}}
			if err := s.tokens.CreateBatch(ctx, extra); err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("mint token for %s: %v", email, err))
				continue
			}
			stats.Assigned++
		}
	}
	return stats, nil
}

// SendInvitations emails every assigned token that has not been invited
// yet, or just the listed token ids when given.
func (s *Service) SendInvitations(ctx context.Context, org *store.Organization, cycleID int64, tokenIDs []int64) (*AssignStats, error) {
	cycle, err := s.cycles.GetByID(ctx, org.ID, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, ErrCycleNotFound
	}
	reviewee, questionnaire, err := s.cycleContext(ctx, org.ID, cycle)
	if err != nil {
		return nil, err
	}
	tokens, err := s.tokens.ListByCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	wanted := idSet(tokenIDs)
	stats := &AssignStats{}
	for i := range tokens {
		t := tokens[i]
		if t.ReviewerEmail == "" {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[t.ID]; !ok {
				continue
			}
		} else if t.InvitationSentAt != nil || t.CompletedAt != nil {
			continue
		}
		msg := mail.Invitation(s.cfg.BaseURL, reviewee.Name, questionnaire.Title, &t)
		if err := s.sender.Send(ctx, org, msg); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("failed to send to %s: %v", t.ReviewerEmail, err))
			continue
		}
		if err := s.tokens.MarkInvitationSent(ctx, t.ID, utils.NowUTC()); err != nil && s.logger != nil {
			s.logger.Errorf("mark invitation sent: %v", err)
		}
		stats.Sent++
	}
	return stats, nil
}

// SendReminders re-mails invited reviewers who have not finished, or just
// the listed token ids when given.
func (s *Service) SendReminders(ctx context.Context, org *store.Organization, cycleID int64, tokenIDs []int64) (*AssignStats, error) {
	cycle, err := s.cycles.GetByID(ctx, org.ID, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, ErrCycleNotFound
	}
	reviewee, questionnaire, err := s.cycleContext(ctx, org.ID, cycle)
	if err != nil {
		return nil, err
	}
	tokens, err := s.tokens.ListByCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	wanted := idSet(tokenIDs)
	stats := &AssignStats{}
	for i := range tokens {
		t := tokens[i]
		if t.ReviewerEmail == "" || t.InvitationSentAt == nil || t.CompletedAt != nil {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[t.ID]; !ok {
				continue
			}
		}
		msg := mail.Reminder(s.cfg.BaseURL, reviewee.Name, questionnaire.Title, &t)
		if err := s.sender.Send(ctx, org, msg); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("failed to send reminder to %s: %v", t.ReviewerEmail, err))
			continue
		}
		if err := s.tokens.MarkReminderSent(ctx, t.ID, utils.NowUTC()); err != nil && s.logger != nil {
			s.logger.Errorf("mark reminder sent: %v", err)
		}
		stats.Sent++
	}
	return stats, nil
}

// FormPayload is everything the public feedback form needs to render.
type FormPayload struct {
	Token         *store.ReviewerToken `json:"token"`
	Cycle         *store.ReviewCycle   `json:"cycle"`
	RevieweeName  string               `json:"reviewee_name"`
	Questionnaire *store.Questionnaire `json:"questionnaire"`
	Existing      map[string]any       `json:"existing_responses"`
	Completed     bool                 `json:"completed"`
	CategoryLabel string               `json:"category_label"`
}

// ClaimToken loads the feedback form for a reviewer token and stamps the
// first open. A completed token still resolves so the thank-you state can
// render, but carries no questionnaire.
func (s *Service) ClaimToken(ctx context.Context, tokenValue string) (*FormPayload, error) {
	t, err := s.tokens.GetByToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTokenNotFound
	}
	cycle, reviewee, questionnaire, err := s.tokenContext(ctx, t)
	if err != nil {
		return nil, err
	}
	payload := &FormPayload{
		Token:         t,
		Cycle:         cycle,
		RevieweeName:  reviewee.Name,
		CategoryLabel: store.CategoryLabel(t.Category),
	}
	if t.CompletedAt != nil {
		payload.Completed = true
		return payload, nil
	}
	if err := s.tokens.MarkClaimed(ctx, t.ID, utils.NowUTC()); err != nil && s.logger != nil {
		s.logger.Errorf("mark claimed: %v", err)
	}
	full, err := s.questionnaires.GetFull(ctx, questionnaire.ID)
	if err != nil {
		return nil, err
	}
	payload.Questionnaire = full

	existing, err := s.responses.ListByToken(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	payload.Existing = make(map[string]any, len(existing))
	for _, r := range existing {
		var decoded struct {
			Value any `json:"value"`
		}
		if err := json.Unmarshal([]byte(r.Answer), &decoded); err == nil {
			payload.Existing[strconv.FormatInt(r.QuestionID, 10)] = decoded.Value
		}
	}
	return payload, nil
}

// SubmitAnswers validates and stores a full form submission for a token,
// replacing any earlier answers, and marks the token completed. Validation
// problems come back as ErrValidation with the per-question messages.
func (s *Service) SubmitAnswers(ctx context.Context, tokenValue string, form map[string]string) ([]string, error) {
	t, err := s.tokens.GetByToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTokenNotFound
	}
	if t.CompletedAt != nil {
		return nil, ErrAlreadySubmitted
	}
	cycle, reviewee, questionnaire, err := s.tokenContext(ctx, t)
	if err != nil {
		return nil, err
	}
	if cycle.Status != store.CycleStatusActive {
		return nil, ErrCycleNotActive
	}
	full, err := s.questionnaires.GetFull(ctx, questionnaire.ID)
	if err != nil {
		return nil, err
	}

	var errs []string
	var toSave []store.Response
	for _, section := range full.Sections {
		for _, q := range section.Questions {
			raw := strings.TrimSpace(form[strconv.FormatInt(q.ID, 10)])
			if raw == "" {
				if q.Required {
					errs = append(errs, fmt.Sprintf("Question %q is required", truncate(q.Text, 50)))
				}
				continue
			}
			answer, verr := validateAnswer(&q, raw)
			if verr != "" {
				errs = append(errs, verr)
				continue
			}
			toSave = append(toSave, store.Response{QuestionID: q.ID, Answer: answer})
		}
	}
	if len(errs) > 0 {
		return errs, ErrValidation
	}
	if err := s.responses.ReplaceForToken(ctx, t.ID, toSave); err != nil {
		return nil, err
	}
	now := utils.NowUTC()
	if err := s.tokens.MarkCompleted(ctx, t.ID, now); err != nil {
		return nil, err
	}
	if s.dispatcher != nil {
		payload := map[string]any{
			"cycle_id":     cycle.ID,
			"category":     t.Category,
			"submitted_at": now.Format(time.RFC3339),
		}
		if _, err := s.dispatcher.Dispatch(ctx, reviewee.OrgID, webhook.EventFeedbackSubmitted, payload); err != nil && s.logger != nil {
			s.logger.Errorf("feedback.submitted webhook: %v", err)
		}
	}
	return nil, nil
}

// CompleteToken marks a token finished once every required question has a
// stored answer. Submissions normally complete in one step; this covers
// clients that save answers piecemeal. A token that already completed is a
// no-op success.
func (s *Service) CompleteToken(ctx context.Context, tokenValue string) ([]string, error) {
	t, err := s.tokens.GetByToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTokenNotFound
	}
	if t.CompletedAt != nil {
		return nil, nil
	}
	cycle, reviewee, questionnaire, err := s.tokenContext(ctx, t)
	if err != nil {
		return nil, err
	}
	if cycle.Status != store.CycleStatusActive {
		return nil, ErrCycleNotActive
	}
	full, err := s.questionnaires.GetFull(ctx, questionnaire.ID)
	if err != nil {
		return nil, err
	}
	existing, err := s.responses.ListByToken(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	answered := make(map[int64]struct{}, len(existing))
	for _, r := range existing {
		answered[r.QuestionID] = struct{}{}
	}
	var errs []string
	for _, section := range full.Sections {
		for _, q := range section.Questions {
			if !q.Required {
				continue
			}
			if _, ok := answered[q.ID]; !ok {
				errs = append(errs, fmt.Sprintf("Question %q is required", truncate(q.Text, 50)))
			}
		}
	}
	if len(errs) > 0 {
		return errs, ErrValidation
	}
	now := utils.NowUTC()
	if err := s.tokens.MarkCompleted(ctx, t.ID, now); err != nil {
		return nil, err
	}
	if s.dispatcher != nil {
		payload := map[string]any{
			"cycle_id":     cycle.ID,
			"category":     t.Category,
			"submitted_at": now.Format(time.RFC3339),
		}
		if _, err := s.dispatcher.Dispatch(ctx, reviewee.OrgID, webhook.EventFeedbackSubmitted, payload); err != nil && s.logger != nil {
			s.logger.Errorf("feedback.submitted webhook: %v", err)
		}
	}
	return nil, nil
}

// CloseCycle completes an active cycle.
func (s *Service) CloseCycle(ctx context.Context, org *store.Organization, cycleID int64) (*store.ReviewCycle, error) {
	now := utils.NowUTC()
	if err := s.cycles.Close(ctx, org.ID, cycleID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCycleNotFound
		}
		return nil, err
	}
	cycle, err := s.cycles.GetByID(ctx, org.ID, cycleID)
	if err != nil {
		return nil, err
	}
	if s.dispatcher != nil {
		reviewee, _ := s.reviewees.GetByID(ctx, org.ID, cycle.RevieweeID)
		payload := map[string]any{
			"cycle_id":     cycle.ID,
			"completed_at": now.Format(time.RFC3339),
		}
		if reviewee != nil {
			payload["reviewee"] = map[string]any{
				"id":    reviewee.ID,
				"name":  reviewee.Name,
				"email": reviewee.Email,
			}
		}
		if _, err := s.dispatcher.Dispatch(ctx, org.ID, webhook.EventCycleCompleted, payload); err != nil && s.logger != nil {
			s.logger.Errorf("cycle.completed webhook: %v", err)
		}
	}
	return cycle, nil
}

func (s *Service) ReopenCycle(ctx context.Context, org *store.Organization, cycleID int64) (*store.ReviewCycle, error) {
	if err := s.cycles.Reopen(ctx, org.ID, cycleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCycleNotFound
		}
		return nil, err
	}
	return s.cycles.GetByID(ctx, org.ID, cycleID)
}

// SweepStats summarizes a periodic pass.
type SweepStats struct {
	Eligible int      `json:"eligible"`
	Sent     int      `json:"sent"`
	Errors   []string `json:"errors"`
}

// RunCloseCheck emails reviewees whose cycles have collected feedback for
// at least the configured age and stamps close_check_sent_at so each cycle
// is nudged once. Passing dryRun counts the eligible cycles without
// touching anything.
func (s *Service) RunCloseCheck(ctx context.Context, dryRun bool) (*SweepStats, error) {
	cutoff := utils.NowUTC().Add(-s.cfg.CloseCheckMinAge())
	candidates, err := s.cycles.ListCloseCheckCandidates(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	stats := &SweepStats{Eligible: len(candidates)}
	if dryRun {
		return stats, nil
	}
	for i := range candidates {
		cycle := candidates[i]
		org, err := s.orgs.GetByID(ctx, cycle.OrgID)
		if err != nil || org == nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("cycle %d: organization lookup failed", cycle.ID))
			continue
		}
		reviewee, questionnaire, err := s.cycleContext(ctx, cycle.OrgID, &cycle)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("cycle %d: %v", cycle.ID, err))
			continue
		}
		if reviewee.Email == "" {
			stats.Errors = append(stats.Errors, fmt.Sprintf("no email for reviewee %s (cycle %d)", reviewee.Name, cycle.ID))
			continue
		}
		tokens, err := s.tokens.ListByCycle(ctx, cycle.ID)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("cycle %d: %v", cycle.ID, err))
			continue
		}
		completed := 0
		for _, t := range tokens {
			if t.CompletedAt != nil {
				completed++
			}
		}
		msg := mail.CloseCheck(s.cfg.BaseURL, questionnaire.Title, &cycle, reviewee, completed, len(tokens))
		if err := s.sender.Send(ctx, org, msg); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("cycle %d: %v", cycle.ID, err))
			continue
		}
		if err := s.cycles.SetCloseCheckSent(ctx, cycle.ID, utils.NowUTC()); err != nil && s.logger != nil {
			s.logger.Errorf("stamp close check: %v", err)
		}
		stats.Sent++
	}
	if s.logger != nil {
		s.logger.Printf("close check sweep: %d eligible, %d sent, %d errors", stats.Eligible, stats.Sent, len(stats.Errors))
	}
	return stats, nil
}

// RunReminderSweep nudges invited reviewers who have been quiet for the
// configured age, at most once per token.
func (s *Service) RunReminderSweep(ctx context.Context) (*SweepStats, error) {
	cutoff := utils.NowUTC().Add(-s.cfg.ReminderMinAge())
	candidates, err := s.tokens.ListReminderCandidates(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	stats := &SweepStats{Eligible: len(candidates)}
	for i := range candidates {
		t := candidates[i]
		if t.ReviewerEmail == "" {
			continue
		}
		cycle, reviewee, questionnaire, err := s.tokenContext(ctx, &t)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("token %d: %v", t.ID, err))
			continue
		}
		org, err := s.orgs.GetByID(ctx, cycle.OrgID)
		if err != nil || org == nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("token %d: organization lookup failed", t.ID))
			continue
		}
		msg := mail.Reminder(s.cfg.BaseURL, reviewee.Name, questionnaire.Title, &t)
		if err := s.sender.Send(ctx, org, msg); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("failed to send reminder to %s: %v", t.ReviewerEmail, err))
			continue
		}
		if err := s.tokens.MarkReminderSent(ctx, t.ID, utils.NowUTC()); err != nil && s.logger != nil {
			s.logger.Errorf("mark reminder sent: %v", err)
		}
		stats.Sent++
	}
	if s.logger != nil {
		s.logger.Printf("reminder sweep: %d eligible, %d sent, %d errors", stats.Eligible, stats.Sent, len(stats.Errors))
	}
	return stats, nil
}

func (s *Service) cycleContext(ctx context.Context, orgID int64, cycle *store.ReviewCycle) (*store.Reviewee, *store.Questionnaire, error) {
	reviewee, err := s.reviewees.GetByID(ctx, orgID, cycle.RevieweeID)
	if err != nil {
		return nil, nil, err
	}
	if reviewee == nil {
		return nil, nil, ErrRevieweeNotFound
	}
	questionnaire, err := s.questionnaires.GetByID(ctx, cycle.QuestionnaireID)
	if err != nil {
		return nil, nil, err
	}
	if questionnaire == nil {
		return nil, nil, ErrQuestionnaireGone
	}
	return reviewee, questionnaire, nil
}

func (s *Service) tokenContext(ctx context.Context, t *store.ReviewerToken) (*store.ReviewCycle, *store.Reviewee, *store.Questionnaire, error) {
	cycle, err := s.cycleByID(ctx, t.CycleID)
	if err != nil {
		return nil, nil, nil, err
	}
	reviewee, questionnaire, err := s.cycleContext(ctx, cycle.OrgID, cycle)
	if err != nil {
		return nil, nil, nil, err
	}
	return cycle, reviewee, questionnaire, nil
}

// cycleByID resolves a cycle without an org scope; token flows enter from
// the public side where the org is not known yet.
func (s *Service) cycleByID(ctx context.Context, id int64) (*store.ReviewCycle, error) {
	cycle, err := s.cycles.GetUnscoped(ctx, id)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, ErrCycleNotFound
	}
	return cycle, nil
}

func validateAnswer(q *store.Question, raw string) (string, string) {
	switch q.Kind {
	case store.QuestionKindRating, store.QuestionKindLikert:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", fmt.Sprintf("Invalid rating value for %q", truncate(q.Text, 50))
		}
		min, max := ratingBounds(q.Config)
		if n < min || n > max {
			return "", fmt.Sprintf("Rating must be between %d and %d", min, max)
		}
		b, _ := json.Marshal(map[string]any{"value": n})
		return string(b), ""
	default:
		b, _ := json.Marshal(map[string]any{"value": raw})
		return string(b), ""
	}
}

func ratingBounds(configJSON string) (int, int) {
	min, max := 1, 5
	var cfg struct {
		Min *int `json:"min"`
		Max *int `json:"max"`
	}
	if err := json.Unmarshal([]byte(configJSON), &cfg); err == nil {
		if cfg.Min != nil {
			min = *cfg.Min
		}
		if cfg.Max != nil {
			max = *cfg.Max
		}
	}
	return min, max
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func cleanEmails(in []string) []string {
	var out []string
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

func idSet(ids []int64) map[int64]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
