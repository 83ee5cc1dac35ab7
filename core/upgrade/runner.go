// Package upgrade runs one-time data migration steps that are too
// operational for the schema layer: reshaping seeded content, repairing
// wording, backfilling derived config. Steps stay registered forever; a
// retired step keeps its name and becomes a no-op.
package upgrade

import (
	"context"
	"fmt"
	"time"

	"blik/core/store"
	"blik/core/utils"
)

// Env carries the dependencies steps may touch.
type Env struct {
	Questionnaires store.QuestionnairesStore
	Logger         *utils.Logger
}

type Step struct {
	Name string
	Run  func(ctx context.Context, env *Env, dryRun bool) error
}

type Runner struct {
	steps   []Step
	records store.UpgradeStepsStore
	env     *Env
	logger  *utils.Logger
}

func NewRunner(records store.UpgradeStepsStore, env *Env, logger *utils.Logger) *Runner {
	return &Runner{steps: Registry(), records: records, env: env, logger: logger}
}

// Pending returns the registered steps not yet recorded as successful.
// Failed records do not count: those steps run again.
func (r *Runner) Pending(ctx context.Context) ([]Step, error) {
	records, err := r.records.List(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.Success {
			done[rec.Name] = true
		}
	}
	var pending []Step
	for _, step := range r.steps {
		if !done[step.Name] {
			pending = append(pending, step)
		}
	}
	return pending, nil
}

// Run executes all pending steps in registration order. The first failure
// is recorded with its error text and halts the run; the caller decides
// the process exit. With dryRun the steps preview their changes and
// nothing is recorded.
func (r *Runner) Run(ctx context.Context, dryRun bool) error {
	pending, err := r.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		r.logger.Printf("All upgrade steps are up to date.")
		return nil
	}
	if dryRun {
		r.logger.Printf("DRY RUN, no steps will be recorded")
		for _, step := range pending {
			r.logger.Printf("  Pending: %s", step.Name)
		}
	}
	for _, step := range pending {
		r.logger.Printf("Running %s...", step.Name)
		if !dryRun {
			// drop a prior failed record so the retry gets a fresh row
			if err := r.records.Delete(ctx, step.Name); err != nil {
				return fmt.Errorf("clear record for %s: %w", step.Name, err)
			}
		}
		if err := step.Run(ctx, r.env, dryRun); err != nil {
			if !dryRun {
				if recErr := r.records.RecordFailure(ctx, step.Name, time.Now().UTC(), err.Error()); recErr != nil {
					r.logger.Errorf("record failure for %s: %v", step.Name, recErr)
				}
			}
			r.logger.Errorf("  %s FAILED: %v", step.Name, err)
			return fmt.Errorf("upgrade step %s: %w", step.Name, err)
		}
		if !dryRun {
			if err := r.records.RecordSuccess(ctx, step.Name, time.Now().UTC()); err != nil {
				return fmt.Errorf("record success for %s: %w", step.Name, err)
			}
		}
		r.logger.Printf("  %s OK", step.Name)
	}
	r.logger.Printf("All upgrade steps complete (%d applied).", len(pending))
	return nil
}

const (
	StatusOK      = "OK"
	StatusFailed  = "FAILED"
	StatusPending = "PENDING"
)

type StepStatus struct {
	Name      string
	Status    string
	AppliedAt *time.Time
	Error     string
}

// Status reports every registered step against its stored record.
func (r *Runner) Status(ctx context.Context) ([]StepStatus, error) {
	records, err := r.records.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]store.UpgradeStepRecord, len(records))
	for _, rec := range records {
		byName[rec.Name] = rec
	}
	out := make([]StepStatus, 0, len(r.steps))
	for _, step := range r.steps {
		st := StepStatus{Name: step.Name, Status: StatusPending}
		if rec, ok := byName[step.Name]; ok {
			at := rec.AppliedAt
			st.AppliedAt = &at
			if rec.Success {
				st.Status = StatusOK
			} else {
				st.Status = StatusFailed
				st.Error = rec.ErrorText
			}
		}
		out = append(out, st)
	}
	return out, nil
}
