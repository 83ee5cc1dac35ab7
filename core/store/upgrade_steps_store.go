package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type UpgradeStepsStore interface {
	Get(ctx context.Context, name string) (*UpgradeStepRecord, error)
	List(ctx context.Context) ([]UpgradeStepRecord, error)
	RecordSuccess(ctx context.Context, name string, at time.Time) error
	RecordFailure(ctx context.Context, name string, at time.Time, errText string) error
	// Delete removes a step record so the runner can retry it from
	// scratch.
	Delete(ctx context.Context, name string) error
}

type upgradeStepsStore struct {
	db *sql.DB
}

func NewUpgradeStepsStore(db *sql.DB) UpgradeStepsStore {
	return &upgradeStepsStore{db: db}
}

func (s *upgradeStepsStore) Get(ctx context.Context, name string) (*UpgradeStepRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, applied_at, success, error_text FROM upgrade_steps WHERE name=?`, name)
	var rec UpgradeStepRecord
	var success int
	if err := row.Scan(&rec.ID, &rec.Name, &rec.AppliedAt, &success, &rec.ErrorText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Success = success == 1
	return &rec, nil
}

func (s *upgradeStepsStore) List(ctx context.Context) ([]UpgradeStepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, applied_at, success, error_text FROM upgrade_steps ORDER BY applied_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UpgradeStepRecord
	for rows.Next() {
		var rec UpgradeStepRecord
		var success int
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.AppliedAt, &success, &rec.ErrorText); err != nil {
			return nil, err
		}
		rec.Success = success == 1
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *upgradeStepsStore) RecordSuccess(ctx context.Context, name string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upgrade_steps(name, applied_at, success, error_text) VALUES(?,?,1,'')`,
		name, at.UTC())
	return err
}

func (s *upgradeStepsStore) RecordFailure(ctx context.Context, name string, at time.Time, errText string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upgrade_steps(name, applied_at, success, error_text) VALUES(?,?,0,?)`,
		name, at.UTC(), errText)
	return err
}

func (s *upgradeStepsStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM upgrade_steps WHERE name=?`, name)
	return err
}
