package upgrade

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"blik/config"
	"blik/core/store"
	"blik/core/utils"
)

func newTestRunner(t *testing.T, steps []Step) (*Runner, store.UpgradeStepsStore) {
	t.Helper()
	cfg := &config.AppConfig{DBPath: filepath.Join(t.TempDir(), "blik.db")}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	records := store.NewUpgradeStepsStore(db)
	env := &Env{Questionnaires: store.NewQuestionnairesStore(db), Logger: logger}
	return &Runner{steps: steps, records: records, env: env, logger: logger}, records
}

func TestRunnerRecordsAndSkipsCompletedSteps(t *testing.T) {
	var runs int
	r, records := newTestRunner(t, []Step{{
		Name: "demo_step",
		Run: func(ctx context.Context, env *Env, dryRun bool) error {
			runs++
			return nil
		},
	}})
	ctx := context.Background()

	if err := r.Run(ctx, false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if runs != 1 {
		t.Fatalf("step ran %d times", runs)
	}
	rec, err := records.Get(ctx, "demo_step")
	if err != nil || rec == nil || !rec.Success {
		t.Fatalf("success not recorded: %+v err=%v", rec, err)
	}

	// the unique name is the dedup key: a second run skips the step
	if err := r.Run(ctx, false); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if runs != 1 {
		t.Fatalf("completed step reran, runs=%d", runs)
	}
}

func TestRunnerHaltsOnFailureAndRetries(t *testing.T) {
	fail := true
	var order []string
	r, records := newTestRunner(t, []Step{
		{
			Name: "step_one",
			Run: func(ctx context.Context, env *Env, dryRun bool) error {
				order = append(order, "one")
				return nil
			},
		},
		{
			Name: "step_two",
			Run: func(ctx context.Context, env *Env, dryRun bool) error {
				order = append(order, "two")
				if fail {
					return errors.New("boom")
				}
				return nil
			},
		},
		{
			Name: "step_three",
			Run: func(ctx context.Context, env *Env, dryRun bool) error {
				order = append(order, "three")
				return nil
			},
		},
	})
	ctx := context.Background()

	if err := r.Run(ctx, false); err == nil {
		t.Fatalf("expected failure")
	}
	// the failure halts the run before step three
	if len(order) != 2 || order[1] != "two" {
		t.Fatalf("unexpected order %v", order)
	}
	rec, err := records.Get(ctx, "step_two")
	if err != nil || rec == nil || rec.Success || rec.ErrorText != "boom" {
		t.Fatalf("failure not recorded: %+v err=%v", rec, err)
	}

	// retry: step one is skipped, two and three run
	fail = false
	order = nil
	if err := r.Run(ctx, false); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(order) != 2 || order[0] != "two" || order[1] != "three" {
		t.Fatalf("retry order %v", order)
	}
	rec, err = records.Get(ctx, "step_two")
	if err != nil || rec == nil || !rec.Success {
		t.Fatalf("retry did not replace the failed record: %+v err=%v", rec, err)
	}
}

func TestRunnerDryRunRecordsNothing(t *testing.T) {
	var runs int
	r, records := newTestRunner(t, []Step{{
		Name: "dry_step",
		Run: func(ctx context.Context, env *Env, dryRun bool) error {
			runs++
			if !dryRun {
				t.Fatalf("dry run flag not passed through")
			}
			return nil
		},
	}})
	ctx := context.Background()

	if err := r.Run(ctx, true); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if runs != 1 {
		t.Fatalf("step ran %d times", runs)
	}
	rec, err := records.Get(ctx, "dry_step")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Fatalf("dry run recorded a row: %+v", rec)
	}
}

func TestStatusReportsPendingSteps(t *testing.T) {
	r, _ := newTestRunner(t, []Step{{
		Name: "never_ran",
		Run:  func(ctx context.Context, env *Env, dryRun bool) error { return nil },
	}})
	statuses, err := r.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Status != StatusPending {
		t.Fatalf("statuses = %+v", statuses)
	}
}

func TestDreyfusStepIsRegistered(t *testing.T) {
	var found bool
	for _, s := range Registry() {
		if s.Name == "0001_apply_dreyfus_mappings" {
			found = true
		}
	}
	if !found {
		t.Fatalf("dreyfus mapping step missing from registry")
	}
}
