package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

type ReportsStore interface {
	// Upsert writes the cycle's report, replacing an earlier generation.
	// The uuid survives regeneration so shared links keep working.
	Upsert(ctx context.Context, r *Report) error
	GetByCycle(ctx context.Context, cycleID int64) (*Report, error)
	GetByUUID(ctx context.Context, publicID string) (*Report, error)
	DeleteByCycle(ctx context.Context, cycleID int64) error
}

type reportsStore struct {
	db *sql.DB
}

func NewReportsStore(db *sql.DB) ReportsStore {
	return &reportsStore{db: db}
}

const reportColumns = `id, cycle_id, uuid, generated_at, data`

func (s *reportsStore) Upsert(ctx context.Context, r *Report) error {
	existing, err := s.GetByCycle(ctx, r.CycleID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	data := r.Data
	if data == "" {
		data = "{}"
	}
	if existing != nil {
		if _, err := s.db.ExecContext(ctx, `UPDATE reports SET generated_at=?, data=? WHERE cycle_id=?`,
			now, data, r.CycleID); err != nil {
			return err
		}
		r.ID = existing.ID
		r.UUID = existing.UUID
		r.GeneratedAt = now
		r.Data = data
		return nil
	}
	publicID := r.UUID
	if publicID == "" {
		publicID = uuid.Must(uuid.NewV4()).String()
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO reports(cycle_id, uuid, generated_at, data)
		VALUES(?,?,?,?) RETURNING id`, r.CycleID, publicID, now, data).Scan(&id)
	if err != nil {
		return err
	}
	r.ID = id
	r.UUID = publicID
	r.GeneratedAt = now
	r.Data = data
	return nil
}

func (s *reportsStore) GetByCycle(ctx context.Context, cycleID int64) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE cycle_id=?`, cycleID)
	return scanReport(row)
}

func (s *reportsStore) GetByUUID(ctx context.Context, publicID string) (*Report, error) {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE uuid=?`, publicID)
	return scanReport(row)
}

func (s *reportsStore) DeleteByCycle(ctx context.Context, cycleID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE cycle_id=?`, cycleID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReport(row *sql.Row) (*Report, error) {
	var r Report
	if err := row.Scan(&r.ID, &r.CycleID, &r.UUID, &r.GeneratedAt, &r.Data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}
