package upgrade

import (
	"context"
	"encoding/json"
	"strings"

	"blik/core/store"
)

// Registry lists every upgrade step ever shipped, in order.
func Registry() []Step {
	return []Step{
		{Name: "0001_apply_dreyfus_mappings", Run: applyDreyfusMappings},
	}
}

type dreyfusWeights struct {
	Skill  float64 `json:"skill,omitempty"`
	Agency float64 `json:"agency,omitempty"`
}

type mappingEntry struct {
	substr  string
	weights dreyfusWeights
}

type questionnaireMapping struct {
	title   string
	entries []mappingEntry
}

// Substrings match regardless of wording variants ("My manager" vs "This
// person"). Entry order matters: the first containing match wins. Text and
// multiple-choice questions are never mapped.
var questionnaireMappings = []questionnaireMapping{
	{
		title: "Software Engineering 360 Review",
		entries: []mappingEntry{
			{"Understanding customer problems", dreyfusWeights{Skill: 1.0}},
			{"translate ideas into clear, readable code", dreyfusWeights{Skill: 1.5}},
			{"work with the team to solve complex problems", dreyfusWeights{Agency: 0.5}},
			{"approach solving technical problems", dreyfusWeights{Skill: 1.5}},
			{"familiarity with the full technology stack", dreyfusWeights{Skill: 1.0}},
			{"emerging technologies and industry trends", dreyfusWeights{Skill: 0.5, Agency: 0.5}},
			{"enthusiasm for the work", dreyfusWeights{Agency: 0.5}},
			{"demonstrate initiative in solving problems", dreyfusWeights{Agency: 1.5}},
			{"application of sound software development principles", dreyfusWeights{Skill: 1.0}},
			{"refactor and improve existing code", dreyfusWeights{Skill: 0.5, Agency: 1.0}},
			{"awareness of their limitations and display humility", dreyfusWeights{Agency: 0.5}},
			{"balance technical excellence with practical business", dreyfusWeights{Skill: 1.0}},
			{"appreciate simplicity and avoid over-engineering", dreyfusWeights{Skill: 1.0}},
			{"listen and accept that others might have better ideas", dreyfusWeights{Agency: 0.5}},
			{"share knowledge and mentor less experienced", dreyfusWeights{Skill: 0.5, Agency: 0.5}},
			{"explain technical decisions and system architecture", dreyfusWeights{Skill: 1.0}},
			{"learn and adopt new technologies", dreyfusWeights{Skill: 0.5}},
			{"curiosity for new languages, frameworks", dreyfusWeights{Agency: 1.0}},
			{"adapt to changing requirements or circumstances", dreyfusWeights{Skill: 0.5, Agency: 0.5}},
			{"understand the broader product and business context", dreyfusWeights{Skill: 1.0}},
			{"foresight for problems not yet encountered", dreyfusWeights{Skill: 1.0}},
			{"contribute to and align with the shared team vision", dreyfusWeights{Agency: 1.0}},
		},
	},
	{
		title: "Professional Skills 360 Review",
		entries: []mappingEntry{
			{"analyze and solve problems", dreyfusWeights{Skill: 1.5}},
			{"make decisions under pressure", dreyfusWeights{Skill: 1.0}},
			{"clearly and effectively", dreyfusWeights{Skill: 0.5}},
			{"collaborate and work with others", dreyfusWeights{Agency: 0.5}},
			{"proactively", dreyfusWeights{Agency: 1.5}},
			{"takes ownership and follows through on commitments", dreyfusWeights{Agency: 1.0}},
			{"learn new skills and concepts", dreyfusWeights{Skill: 0.5}},
			{"adapt to change and handle ambiguity", dreyfusWeights{Skill: 0.5, Agency: 0.5}},
			{"quality of work", dreyfusWeights{Skill: 1.0}},
			{"balance quality with practical deadlines", dreyfusWeights{Skill: 1.0}},
			{"influence and guide others", dreyfusWeights{Agency: 1.0}},
			{"develop and support the growth of others", dreyfusWeights{Skill: 0.5, Agency: 0.5}},
			{"understand and contribute to broader organizational", dreyfusWeights{Skill: 1.0}},
			{"handle feedback and demonstrate self-awareness", dreyfusWeights{Agency: 0.5}},
		},
	},
	{
		title: "Manager 360 Review",
		entries: []mappingEntry{
			{"visible and engaged with the team", dreyfusWeights{Agency: 1.0}},
			{"intentions and decisions", dreyfusWeights{Skill: 1.0}},
			{"communicates clearly about decisions", dreyfusWeights{Skill: 1.0}},
			{"Goals and priorities are clearly defined", dreyfusWeights{Skill: 1.5}},
			{"clear direction and gives", dreyfusWeights{Skill: 1.0, Agency: 0.5}},
			{"obstacles are discussed and addressed in time", dreyfusWeights{Skill: 0.5, Agency: 1.5}},
			{"understands the content of our work well enough to guide", dreyfusWeights{Skill: 1.5}},
			{"makes informed decisions about our work", dreyfusWeights{Skill: 1.0}},
			{"way of leading contributes visibly to team performance", dreyfusWeights{Skill: 1.0, Agency: 0.5}},
			{"encourages results-oriented work", dreyfusWeights{Agency: 1.0}},
			{"regular, useful feedback", dreyfusWeights{Skill: 0.5, Agency: 1.0}},
			{"recognizes good work when it happens", dreyfusWeights{Agency: 1.0}},
			{"encourages personal and professional growth", dreyfusWeights{Agency: 1.0}},
			{"recognizes and names individual strengths", dreyfusWeights{Skill: 1.0}},
			{"supports the development of new skills", dreyfusWeights{Skill: 0.5, Agency: 0.5}},
		},
	},
	{
		title: "360 Degree Feedback",
		entries: []mappingEntry{
			{"Problem solving ability", dreyfusWeights{Skill: 1.5}},
			{"Code quality and clarity", dreyfusWeights{Skill: 1.0}},
			{"Technical expertise level", dreyfusWeights{Skill: 1.5}},
			{"Teamwork and collaboration", dreyfusWeights{Agency: 0.5}},
			{"communicates clearly and effectively", dreyfusWeights{Skill: 0.5}},
			{"Helps and mentors others", dreyfusWeights{Skill: 0.5, Agency: 0.5}},
			{"Initiative and motivation", dreyfusWeights{Agency: 1.5}},
			{"flexible and adapts well to change", dreyfusWeights{Skill: 0.5, Agency: 0.5}},
			{"Delivers quality work on time", dreyfusWeights{Skill: 1.0}},
		},
	},
	{
		title: "Agency & Initiative Assessment",
		entries: []mappingEntry{
			{"identify problems before they escalate", dreyfusWeights{Agency: 1.5}},
			{"proactively suggests solutions when raising issues", dreyfusWeights{Agency: 1.0}},
			{"Quality of solutions", dreyfusWeights{Skill: 1.0, Agency: 0.5}},
			{"recommends their preferred solution with reasoning", dreyfusWeights{Skill: 0.5, Agency: 1.0}},
			{"independently implement solutions", dreyfusWeights{Agency: 2.0}},
			{"keeps stakeholders appropriately informed when taking initiative", dreyfusWeights{Agency: 1.0}},
		},
	},
}

// Manager 360 wording fixes: "My manager" becomes "This person" so every
// reviewer category reads the same question. Exact old text -> new text,
// covering both rating and text questions.
var manager360Wording = map[string]string{
	"My manager is visible and engaged with the team":                          "This person is visible and engaged with the team",
	"I trust my manager's intentions and decisions":                            "I trust this person's intentions and decisions",
	"My manager communicates clearly about decisions and their reasoning":      "This person communicates clearly about decisions and their reasoning",
	"My manager provides clear direction and gives me autonomy to execute":     "This person provides clear direction and gives appropriate autonomy to execute",
	"My manager understands the content of our work well enough to guide effectively": "This person understands the content of our work well enough to guide effectively",
	"My manager makes informed decisions about our work":                       "This person makes informed decisions about our work",
	"My manager's way of leading contributes visibly to team performance":      "This person's way of leading contributes visibly to team performance",
	"My manager encourages results-oriented work":                              "This person encourages results-oriented work",
	"I receive regular, useful feedback from my manager":                       "I receive regular, useful feedback from this person",
	"My manager recognizes good work when it happens":                          "This person recognizes good work when it happens",
	"My manager encourages personal and professional growth":                   "This person encourages personal and professional growth",
	"My manager recognizes and names individual strengths":                     "This person recognizes and names individual strengths",
	"My manager supports the development of new skills":                        "This person supports the development of new skills",
	"What should my manager keep doing?":                                       "What should this person keep doing?",
	"What should my manager do differently?":                                   "What should this person do differently?",
}

// applyDreyfusMappings writes the skill/agency weights into matching
// questions' config across every questionnaire instance (templates and org
// copies) and repairs the Manager 360 wording. Idempotent: questions whose
// config already carries the target mapping are skipped.
func applyDreyfusMappings(ctx context.Context, env *Env, dryRun bool) error {
	var updated, skipped int
	for _, qm := range questionnaireMappings {
		questionnaires, err := env.Questionnaires.ListByTitle(ctx, qm.title)
		if err != nil {
			return err
		}
		if len(questionnaires) == 0 {
			env.Logger.Printf("  no questionnaires found with title %q", qm.title)
			continue
		}
		env.Logger.Printf("  %s (%d instance(s))", qm.title, len(questionnaires))
		for _, qn := range questionnaires {
			full, err := env.Questionnaires.GetFull(ctx, qn.ID)
			if err != nil {
				return err
			}
			if full == nil {
				continue
			}
			for si := range full.Sections {
				for qi := range full.Sections[si].Questions {
					question := &full.Sections[si].Questions[qi]
					if question.Kind == store.QuestionKindText || question.Kind == store.QuestionKindMultipleChoice {
						continue
					}
					weights, ok := matchWeights(qm.entries, question.Text)
					if !ok {
						skipped++
						continue
					}
					changed, err := setDreyfusMapping(ctx, env, question, weights, dryRun)
					if err != nil {
						return err
					}
					if changed {
						updated++
					} else {
						skipped++
					}
				}
			}
		}
	}

	wordingUpdated, err := fixManagerWording(ctx, env, dryRun)
	if err != nil {
		return err
	}
	action := "Updated"
	if dryRun {
		action = "Would update"
	}
	env.Logger.Printf("  %s %d mapping(s), %d wording fix(es); skipped %d (already correct or unmapped)",
		action, updated, wordingUpdated, skipped)
	return nil
}

func matchWeights(entries []mappingEntry, text string) (dreyfusWeights, bool) {
	lower := strings.ToLower(text)
	for _, e := range entries {
		if strings.Contains(lower, strings.ToLower(e.substr)) {
			return e.weights, true
		}
	}
	return dreyfusWeights{}, false
}

func setDreyfusMapping(ctx context.Context, env *Env, question *store.Question, weights dreyfusWeights, dryRun bool) (bool, error) {
	cfg := map[string]any{}
	if strings.TrimSpace(question.Config) != "" {
		if err := json.Unmarshal([]byte(question.Config), &cfg); err != nil {
			cfg = map[string]any{}
		}
	}
	if sameWeights(cfg["dreyfus_mapping"], weights) {
		return false, nil
	}
	if dryRun {
		env.Logger.Printf("    would map %.60q -> skill=%.1f agency=%.1f", question.Text, weights.Skill, weights.Agency)
		return true, nil
	}
	cfg["dreyfus_mapping"] = weights
	raw, err := json.Marshal(cfg)
	if err != nil {
		return false, err
	}
	question.Config = string(raw)
	if err := env.Questionnaires.UpdateQuestion(ctx, question); err != nil {
		return false, err
	}
	return true, nil
}

func sameWeights(current any, want dreyfusWeights) bool {
	m, ok := current.(map[string]any)
	if !ok {
		return false
	}
	var have dreyfusWeights
	if v, ok := m["skill"].(float64); ok {
		have.Skill = v
	}
	if v, ok := m["agency"].(float64); ok {
		have.Agency = v
	}
	return len(m) <= 2 && have == want
}

func fixManagerWording(ctx context.Context, env *Env, dryRun bool) (int, error) {
	questionnaires, err := env.Questionnaires.ListByTitle(ctx, "Manager 360 Review")
	if err != nil || len(questionnaires) == 0 {
		return 0, err
	}
	env.Logger.Printf("  Manager 360 wording fixes (%d instance(s))", len(questionnaires))
	var updated int
	for _, qn := range questionnaires {
		full, err := env.Questionnaires.GetFull(ctx, qn.ID)
		if err != nil {
			return updated, err
		}
		if full == nil {
			continue
		}
		for si := range full.Sections {
			for _, question := range full.Sections[si].Questions {
				newText, ok := manager360Wording[question.Text]
				if !ok {
					continue
				}
				if dryRun {
					env.Logger.Printf("    would reword %.50q", question.Text)
				} else if err := env.Questionnaires.UpdateQuestionText(ctx, question.ID, newText); err != nil {
					return updated, err
				}
				updated++
			}
		}
	}
	return updated, nil
}
