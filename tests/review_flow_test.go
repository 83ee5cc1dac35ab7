package tests

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"blik/core/report"
	"blik/core/review"
	"blik/core/store"
)

type reviewFixture struct {
	env           *testEnv
	org           *store.Organization
	reviewee      *store.Reviewee
	questionnaire *store.Questionnaire
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	env := newTestEnv(t)
	org, _ := env.seedAdmin(t, "admin@acme.test", "correct horse battery")
	ctx := context.Background()

	deps := env.runtime.ServerDeps
	revieweeID, err := deps.Reviewees.Create(ctx, &store.Reviewee{
		OrgID: org.ID, Name: "Nora Berg", Email: "nora@acme.test", RoleTitle: "Engineer", Active: true,
	})
	if err != nil {
		t.Fatalf("create reviewee: %v", err)
	}
	reviewee, err := deps.Reviewees.GetByID(ctx, org.ID, revieweeID)
	if err != nil || reviewee == nil {
		t.Fatalf("load reviewee: %v", err)
	}

	orgID := org.ID
	q := &store.Questionnaire{
		OrgID: &orgID,
		Title: "Engineering 360",
		Sections: []store.QuestionSection{{
			Title:    "Collaboration",
			Position: 0,
			Questions: []store.Question{
				{Text: "This person communicates clearly", Kind: store.QuestionKindRating, Config: "{}", Position: 0, Required: true},
				{Text: "What should this person keep doing?", Kind: store.QuestionKindText, Config: "{}", Position: 1, Required: false},
			},
		}},
	}
	qID, err := deps.Questionnaires.CreateFull(ctx, q)
	if err != nil {
		t.Fatalf("create questionnaire: %v", err)
	}
	questionnaire, err := deps.Questionnaires.GetFull(ctx, qID)
	if err != nil || questionnaire == nil {
		t.Fatalf("load questionnaire: %v", err)
	}
	return &reviewFixture{env: env, org: org, reviewee: reviewee, questionnaire: questionnaire}
}

func (f *reviewFixture) reviewSvc() *review.Service {
	// rebuild the service around the recording sender so mail assertions
	// see what the sweeps produce
	deps := f.env.runtime.ServerDeps
	return review.NewService(f.env.cfg, deps.Orgs, deps.Reviewees, deps.Questionnaires,
		deps.Cycles, deps.Tokens, responsesStore(f.env), f.env.mailbox, nil, nil)
}

func responsesStore(env *testEnv) store.ResponsesStore {
	return store.NewResponsesStore(env.db)
}

func (f *reviewFixture) submitAll(t *testing.T, svc *review.Service, token string, rating string) {
	t.Helper()
	form := map[string]string{}
	for _, section := range f.questionnaire.Sections {
		for _, q := range section.Questions {
			key := strconv.FormatInt(q.ID, 10)
			if q.Kind == store.QuestionKindText {
				form[key] = "Keep shipping"
			} else {
				form[key] = rating
			}
		}
	}
	if problems, err := svc.SubmitAnswers(context.Background(), token, form); err != nil {
		t.Fatalf("submit %s: %v (%v)", token, err, problems)
	}
}

func TestCycleLifecycleToReport(t *testing.T) {
	f := newReviewFixture(t)
	svc := f.reviewSvc()
	ctx := context.Background()

	cycle, tokens, err := svc.CreateCycle(ctx, f.org, review.CreateCycleInput{
		RevieweeID:      f.reviewee.ID,
		QuestionnaireID: f.questionnaire.ID,
	})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	if len(tokens) != 4 {
		t.Fatalf("minted %d tokens, want one per category", len(tokens))
	}
	byCategory := map[string]store.ReviewerToken{}
	for _, tok := range tokens {
		byCategory[tok.Category] = tok
	}
	for _, cat := range store.ReviewerCategories {
		if _, ok := byCategory[cat]; !ok {
			t.Fatalf("no token minted for %s", cat)
		}
	}

	// a second peer joins through assignment
	stats, err := svc.AssignReviewers(ctx, f.org, cycle.ID, map[string][]string{
		store.CategoryPeer: {"peer1@acme.test", "peer2@acme.test"},
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if stats.Assigned != 2 {
		t.Fatalf("assigned %d, want 2 (errors: %v)", stats.Assigned, stats.Errors)
	}
	allTokens, err := f.env.runtime.ServerDeps.Tokens.ListByCycle(ctx, cycle.ID)
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	var peerTokens []store.ReviewerToken
	var managerToken store.ReviewerToken
	for _, tok := range allTokens {
		switch tok.Category {
		case store.CategoryPeer:
			if tok.ReviewerEmail != "" {
				peerTokens = append(peerTokens, tok)
			}
		case store.CategoryManager:
			managerToken = tok
		}
	}
	if len(peerTokens) != 2 {
		t.Fatalf("peer tokens = %d", len(peerTokens))
	}

	// the public form resolves by token and shows the questionnaire
	payload, err := svc.ClaimToken(ctx, peerTokens[0].Token)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if payload.RevieweeName != "Nora Berg" || payload.Questionnaire == nil {
		t.Fatalf("form payload: %+v", payload)
	}

	// two peers answer, but only one manager: the anonymity threshold of
	// 2 must withhold the manager category
	f.submitAll(t, svc, peerTokens[0].Token, "4")
	f.submitAll(t, svc, peerTokens[1].Token, "2")
	f.submitAll(t, svc, managerToken.Token, "5")

	// a submitted token refuses a second submission
	if _, err := svc.SubmitAnswers(ctx, peerTokens[0].Token, map[string]string{}); err != review.ErrAlreadySubmitted {
		t.Fatalf("resubmit err = %v", err)
	}

	deps := f.env.runtime.ServerDeps
	reportSvc := report.NewService(deps.Reviewees, deps.Questionnaires, deps.Cycles,
		responsesStore(f.env), deps.Reports, nil, nil)
	rep, err := reportSvc.Generate(ctx, f.org, cycle.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rep.UUID == "" {
		t.Fatalf("report has no public identifier")
	}

	var data report.Data
	if err := json.Unmarshal([]byte(rep.Data), &data); err != nil {
		t.Fatalf("report payload: %v", err)
	}
	var ratingQ *report.QuestionData
	for _, section := range data.BySection {
		for _, q := range section.Questions {
			if q.QuestionType == store.QuestionKindRating {
				ratingQ = q
			}
		}
	}
	if ratingQ == nil {
		t.Fatalf("rating question missing from report")
	}
	peer := ratingQ.ByCategory[store.CategoryPeer]
	if peer == nil || peer.Insufficient || peer.Avg == nil || *peer.Avg != 3.0 {
		t.Fatalf("peer category: %+v", peer)
	}
	manager := ratingQ.ByCategory[store.CategoryManager]
	if manager == nil || !manager.Insufficient {
		t.Fatalf("manager category should be withheld: %+v", manager)
	}
	if len(manager.Responses) != 0 {
		t.Fatalf("withheld category leaked responses: %+v", manager.Responses)
	}

	// regeneration keeps the shared link working
	again, err := reportSvc.Generate(ctx, f.org, cycle.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if again.UUID != rep.UUID {
		t.Fatalf("regeneration changed the public id: %s -> %s", rep.UUID, again.UUID)
	}

	// close the cycle
	closed, err := svc.CloseCycle(ctx, f.org, cycle.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != store.CycleStatusCompleted || closed.CompletedAt == nil {
		t.Fatalf("closed cycle: %+v", closed)
	}
}

func TestCloseCheckSweepMailsRevieweeOnce(t *testing.T) {
	f := newReviewFixture(t)
	svc := f.reviewSvc()
	ctx := context.Background()

	cycle, tokens, err := svc.CreateCycle(ctx, f.org, review.CreateCycleInput{
		RevieweeID:      f.reviewee.ID,
		QuestionnaireID: f.questionnaire.ID,
	})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	f.submitAll(t, svc, tokens[0].Token, "3")

	// backdate the cycle past the close-check age
	opened := time.Now().UTC().Add(-8 * 24 * time.Hour)
	if _, err := f.env.db.ExecContext(ctx,
		`UPDATE review_cycles SET opened_at=? WHERE id=?`, opened, cycle.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	// dry run counts but sends nothing
	stats, err := svc.RunCloseCheck(ctx, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if stats.Eligible != 1 || len(f.env.mailbox.all()) != 0 {
		t.Fatalf("dry run eligible=%d mails=%d", stats.Eligible, len(f.env.mailbox.all()))
	}

	stats, err = svc.RunCloseCheck(ctx, false)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Sent != 1 {
		t.Fatalf("sent=%d errors=%v", stats.Sent, stats.Errors)
	}
	msgs := f.env.mailbox.all()
	if len(msgs) != 1 || msgs[0].To != "nora@acme.test" {
		t.Fatalf("close check mail: %+v", msgs)
	}
	if !strings.Contains(msgs[0].Subject, "Engineering 360") {
		t.Fatalf("subject does not name the questionnaire: %q", msgs[0].Subject)
	}

	// the stamped timestamp keeps the cycle out of the next sweep
	stats, err = svc.RunCloseCheck(ctx, false)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if stats.Eligible != 0 || len(f.env.mailbox.all()) != 1 {
		t.Fatalf("second sweep eligible=%d mails=%d", stats.Eligible, len(f.env.mailbox.all()))
	}
}
