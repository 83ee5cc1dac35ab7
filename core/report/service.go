// Package report aggregates cycle feedback into the stored report payload,
// applying the organization's anonymity threshold.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"blik/core/store"
	"blik/core/utils"
	"blik/core/webhook"
)

var (
	ErrCycleNotFound  = errors.New("review cycle not found")
	ErrReportNotFound = errors.New("report not found")
)

// DefaultMinResponses applies when the organization has no threshold of its
// own.
const DefaultMinResponses = 3

type Service struct {
	reviewees      store.RevieweesStore
	questionnaires store.QuestionnairesStore
	cycles         store.CyclesStore
	responses      store.ResponsesStore
	reports        store.ReportsStore
	dispatcher     *webhook.Dispatcher
	logger         *utils.Logger
}

func NewService(reviewees store.RevieweesStore, questionnaires store.QuestionnairesStore,
	cycles store.CyclesStore, responses store.ResponsesStore, reports store.ReportsStore,
	dispatcher *webhook.Dispatcher, logger *utils.Logger) *Service {
	return &Service{
		reviewees:      reviewees,
		questionnaires: questionnaires,
		cycles:         cycles,
		responses:      responses,
		reports:        reports,
		dispatcher:     dispatcher,
		logger:         logger,
	}
}

// Data is the stored report payload. Section and question keys are decimal
// ids, stringified for JSON stability.
type Data struct {
	BySection map[string]*SectionData `json:"by_section"`
}

type SectionData struct {
	Title     string                   `json:"title"`
	Questions map[string]*QuestionData `json:"questions"`
}

type QuestionData struct {
	QuestionText string                   `json:"question_text"`
	QuestionType string                   `json:"question_type"`
	ByCategory   map[string]*CategoryData `json:"by_category"`
}

type CategoryData struct {
	Count        int      `json:"count"`
	Responses    []any    `json:"responses,omitempty"`
	Avg          *float64 `json:"avg,omitempty"`
	Insufficient bool     `json:"insufficient,omitempty"`
	Message      string   `json:"message,omitempty"`
	Pooled       bool     `json:"pooled,omitempty"`
}

// CategoryCombined holds text answers pooled from categories that were
// individually below the threshold.
const CategoryCombined = "combined"

// Generate builds and stores the report for a cycle. Regeneration replaces
// the stored payload but keeps the report's public identifier.
func (s *Service) Generate(ctx context.Context, org *store.Organization, cycleID int64) (*store.Report, error) {
	cycle, err := s.cycles.GetByID(ctx, org.ID, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, ErrCycleNotFound
	}
	questionnaire, err := s.questionnaires.GetFull(ctx, cycle.QuestionnaireID)
	if err != nil {
		return nil, err
	}
	if questionnaire == nil {
		return nil, fmt.Errorf("questionnaire %d not found", cycle.QuestionnaireID)
	}
	responses, err := s.responses.ListByCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}

	data := Aggregate(questionnaire, responses, thresholdFor(org))
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	rep := &store.Report{CycleID: cycleID, Data: string(raw)}
	if err := s.reports.Upsert(ctx, rep); err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		payload := map[string]any{
			"report_id":    rep.ID,
			"cycle_id":     cycleID,
			"generated_at": rep.GeneratedAt.UTC().Format(time.RFC3339),
		}
		if reviewee, err := s.reviewees.GetByID(ctx, org.ID, cycle.RevieweeID); err == nil && reviewee != nil {
			payload["reviewee"] = map[string]any{
				"id":    reviewee.ID,
				"name":  reviewee.Name,
				"email": reviewee.Email,
			}
		}
		if _, err := s.dispatcher.Dispatch(ctx, org.ID, webhook.EventReportGenerated, payload); err != nil && s.logger != nil {
			s.logger.Errorf("report.generated webhook: %v", err)
		}
	}
	return rep, nil
}

func (s *Service) GetByCycle(ctx context.Context, org *store.Organization, cycleID int64) (*store.Report, error) {
	cycle, err := s.cycles.GetByID(ctx, org.ID, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, ErrCycleNotFound
	}
	rep, err := s.reports.GetByCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, ErrReportNotFound
	}
	return rep, nil
}

func (s *Service) GetByUUID(ctx context.Context, publicID string) (*store.Report, error) {
	rep, err := s.reports.GetByUUID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, ErrReportNotFound
	}
	return rep, nil
}

func thresholdFor(org *store.Organization) int {
	if org != nil && org.MinResponsesForAnonymity > 0 {
		return org.MinResponsesForAnonymity
	}
	return DefaultMinResponses
}

// Aggregate groups the cycle's answers by section, question, and reviewer
// category. Self assessment is always shown; every other category needs at
// least minResponses completed answers or it is withheld. Text answers from
// withheld categories are pooled into a combined bucket when together they
// clear the threshold, shuffled so nothing leaks from ordering.
func Aggregate(questionnaire *store.Questionnaire, responses []store.CycleResponse, minResponses int) *Data {
	type questionRef struct {
		section  *store.QuestionSection
		question *store.Question
	}
	refs := make(map[int64]questionRef)
	for si := range questionnaire.Sections {
		section := &questionnaire.Sections[si]
		for qi := range section.Questions {
			q := &section.Questions[qi]
			refs[q.ID] = questionRef{section: section, question: q}
		}
	}

	type bucket struct {
		values []any
	}
	grouped := make(map[int64]map[string]*bucket)
	for _, r := range responses {
		if _, ok := refs[r.QuestionID]; !ok {
			continue
		}
		byCat, ok := grouped[r.QuestionID]
		if !ok {
			byCat = make(map[string]*bucket)
			grouped[r.QuestionID] = byCat
		}
		b, ok := byCat[r.Category]
		if !ok {
			b = &bucket{}
			byCat[r.Category] = b
		}
		b.values = append(b.values, decodeAnswerValue(r.Answer))
	}

	data := &Data{BySection: make(map[string]*SectionData)}
	for questionID, byCat := range grouped {
		ref := refs[questionID]
		sectionKey := strconv.FormatInt(ref.section.ID, 10)
		section, ok := data.BySection[sectionKey]
		if !ok {
			section = &SectionData{Title: ref.section.Title, Questions: make(map[string]*QuestionData)}
			data.BySection[sectionKey] = section
		}
		qd := &QuestionData{
			QuestionText: ref.question.Text,
			QuestionType: ref.question.Kind,
			ByCategory:   make(map[string]*CategoryData),
		}
		section.Questions[strconv.FormatInt(questionID, 10)] = qd

		var pooled []any
		for category, b := range byCat {
			count := len(b.values)
			if category == store.CategorySelf || count >= minResponses {
				cd := &CategoryData{Count: count, Responses: b.values}
				if isNumericKind(ref.question.Kind) {
					if avg, ok := numericAverage(b.values); ok {
						cd.Avg = &avg
					}
				}
				qd.ByCategory[category] = cd
				continue
			}
			qd.ByCategory[category] = &CategoryData{
				Count:        count,
				Insufficient: true,
				Message:      fmt.Sprintf("Insufficient responses (minimum %d required)", minResponses),
			}
			if ref.question.Kind == store.QuestionKindText {
				pooled = append(pooled, b.values...)
			}
		}
		if len(pooled) >= minResponses {
			rand.Shuffle(len(pooled), func(i, j int) {
				pooled[i], pooled[j] = pooled[j], pooled[i]
			})
			qd.ByCategory[CategoryCombined] = &CategoryData{
				Count:     len(pooled),
				Responses: pooled,
				Pooled:    true,
			}
		}
	}
	return data
}

// Summary condenses a report payload into per-category response counts.
type Summary struct {
	TotalResponses int            `json:"total_responses"`
	ByCategory     map[string]int `json:"by_category"`
}

func Summarize(data *Data) *Summary {
	sum := &Summary{ByCategory: make(map[string]int)}
	if data == nil {
		return sum
	}
	for _, section := range data.BySection {
		for _, q := range section.Questions {
			for category, cd := range q.ByCategory {
				if cd.Insufficient || cd.Pooled {
					continue
				}
				if cd.Count > sum.ByCategory[category] {
					sum.ByCategory[category] = cd.Count
				}
			}
		}
	}
	for _, n := range sum.ByCategory {
		sum.TotalResponses += n
	}
	return sum
}

// ParseData decodes a stored report payload.
func ParseData(raw string) (*Data, error) {
	var data Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func decodeAnswerValue(raw string) any {
	var decoded struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil
	}
	return decoded.Value
}

func isNumericKind(kind string) bool {
	return kind == store.QuestionKindRating || kind == store.QuestionKindLikert
}

// numericAverage averages the numeric values in the list, ignoring
// everything else, rounded to two decimals.
func numericAverage(values []any) (float64, bool) {
	var sum float64
	var n int
	for _, v := range values {
		switch x := v.(type) {
		case float64:
			sum += x
			n++
		case int:
			sum += float64(x)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return math.Round(sum/float64(n)*100) / 100, true
}
