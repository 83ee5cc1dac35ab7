package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CycleSummary is the list-page projection: the cycle plus the names the
// page shows and the token progress counters.
type CycleSummary struct {
	ReviewCycle
	RevieweeName       string `json:"reviewee_name"`
	QuestionnaireTitle string `json:"questionnaire_title"`
	TokensTotal        int    `json:"tokens_total"`
	TokensCompleted    int    `json:"tokens_completed"`
}

type CyclesStore interface {
	Create(ctx context.Context, c *ReviewCycle) (int64, error)
	GetByID(ctx context.Context, orgID, id int64) (*ReviewCycle, error)
	// GetUnscoped resolves a cycle without the org filter; token-based
	// public flows use it before the org is known.
	GetUnscoped(ctx context.Context, id int64) (*ReviewCycle, error)
	ListByOrg(ctx context.Context, orgID int64, status string) ([]ReviewCycle, error)
	ListByReviewee(ctx context.Context, orgID, revieweeID int64) ([]ReviewCycle, error)
	ListSummaries(ctx context.Context, orgID int64, status string) ([]CycleSummary, error)
	// Close marks the cycle completed; a second call reports ErrConflict
	// so callers can distinguish "already closed" from success.
	Close(ctx context.Context, orgID, id int64, at time.Time) error
	Reopen(ctx context.Context, orgID, id int64) error
	SetCloseCheckSent(ctx context.Context, id int64, at time.Time) error
	// ListCloseCheckCandidates returns active cycles opened at or before
	// cutoff that have not had a close check yet and have at least one
	// completed reviewer token.
	ListCloseCheckCandidates(ctx context.Context, cutoff time.Time) ([]ReviewCycle, error)
	Delete(ctx context.Context, orgID, id int64) error
}

type cyclesStore struct {
	db *sql.DB
}

func NewCyclesStore(db *sql.DB) CyclesStore {
	return &cyclesStore{db: db}
}

const cycleColumns = `id, org_id, reviewee_id, questionnaire_id, status, opened_at, closes_at, completed_at, close_check_sent_at, created_by, created_at, updated_at`

func (s *cyclesStore) Create(ctx context.Context, c *ReviewCycle) (int64, error) {
	now := time.Now().UTC()
	status := c.Status
	if status == "" {
		status = CycleStatusActive
	}
	opened := c.OpenedAt
	if opened.IsZero() {
		opened = now
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO review_cycles(org_id, reviewee_id, questionnaire_id, status, opened_at, closes_at, created_by, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?) RETURNING id`,
		c.OrgID, c.RevieweeID, c.QuestionnaireID, status, opened.UTC(), nullableTime(c.ClosesAt),
		nullableID(c.CreatedBy), now, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	c.ID = id
	c.Status = status
	c.OpenedAt = opened
	c.CreatedAt = now
	c.UpdatedAt = now
	return id, nil
}

func (s *cyclesStore) GetByID(ctx context.Context, orgID, id int64) (*ReviewCycle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM review_cycles WHERE org_id=? AND id=?`, orgID, id)
	return scanCycle(row)
}

func (s *cyclesStore) GetUnscoped(ctx context.Context, id int64) (*ReviewCycle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM review_cycles WHERE id=?`, id)
	return scanCycle(row)
}

func (s *cyclesStore) ListByOrg(ctx context.Context, orgID int64, status string) ([]ReviewCycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM review_cycles WHERE org_id=?`
	args := []any{orgID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY opened_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCycles(rows)
}

func (s *cyclesStore) ListByReviewee(ctx context.Context, orgID, revieweeID int64) ([]ReviewCycle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cycleColumns+` FROM review_cycles
		WHERE org_id=? AND reviewee_id=? ORDER BY opened_at DESC, id DESC`, orgID, revieweeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCycles(rows)
}

func (s *cyclesStore) ListSummaries(ctx context.Context, orgID int64, status string) ([]CycleSummary, error) {
	query := `
		SELECT c.id, c.org_id, c.reviewee_id, c.questionnaire_id, c.status, c.opened_at, c.closes_at,
		       c.completed_at, c.close_check_sent_at, c.created_by, c.created_at, c.updated_at,
		       r.name, q.title,
		       (SELECT COUNT(*) FROM reviewer_tokens t WHERE t.cycle_id = c.id),
		       (SELECT COUNT(*) FROM reviewer_tokens t WHERE t.cycle_id = c.id AND t.completed_at IS NOT NULL)
		FROM review_cycles c
		JOIN reviewees r ON r.id = c.reviewee_id
		JOIN questionnaires q ON q.id = c.questionnaire_id
		WHERE c.org_id=?`
	args := []any{orgID}
	if status != "" {
		query += ` AND c.status=?`
		args = append(args, status)
	}
	query += ` ORDER BY c.opened_at DESC, c.id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CycleSummary
	for rows.Next() {
		var sum CycleSummary
		var closesAt, completedAt, closeCheckAt sql.NullTime
		var createdBy sql.NullInt64
		if err := rows.Scan(&sum.ID, &sum.OrgID, &sum.RevieweeID, &sum.QuestionnaireID, &sum.Status,
			&sum.OpenedAt, &closesAt, &completedAt, &closeCheckAt, &createdBy, &sum.CreatedAt, &sum.UpdatedAt,
			&sum.RevieweeName, &sum.QuestionnaireTitle, &sum.TokensTotal, &sum.TokensCompleted); err != nil {
			return nil, err
		}
		assignCycleNullables(&sum.ReviewCycle, closesAt, completedAt, closeCheckAt, createdBy)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *cyclesStore) Close(ctx context.Context, orgID, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE review_cycles SET status=?, completed_at=?, updated_at=?
		WHERE org_id=? AND id=? AND status=?`,
		CycleStatusCompleted, at.UTC(), time.Now().UTC(), orgID, id, CycleStatusActive)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		cycle, err := s.GetByID(ctx, orgID, id)
		if err != nil {
			return err
		}
		if cycle == nil {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *cyclesStore) Reopen(ctx context.Context, orgID, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE review_cycles SET status=?, completed_at=NULL, close_check_sent_at=NULL, updated_at=?
		WHERE org_id=? AND id=? AND status=?`,
		CycleStatusActive, time.Now().UTC(), orgID, id, CycleStatusCompleted)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cyclesStore) SetCloseCheckSent(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE review_cycles SET close_check_sent_at=?, updated_at=? WHERE id=? AND close_check_sent_at IS NULL`,
		at.UTC(), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *cyclesStore) ListCloseCheckCandidates(ctx context.Context, cutoff time.Time) ([]ReviewCycle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cycleColumns+` FROM review_cycles
		WHERE status=? AND close_check_sent_at IS NULL AND opened_at <= ?
		  AND EXISTS (SELECT 1 FROM reviewer_tokens t WHERE t.cycle_id = review_cycles.id AND t.completed_at IS NOT NULL)
		ORDER BY opened_at ASC`, CycleStatusActive, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCycles(rows)
}

func (s *cyclesStore) Delete(ctx context.Context, orgID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM review_cycles WHERE org_id=? AND id=?`, orgID, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCycle(row *sql.Row) (*ReviewCycle, error) {
	var c ReviewCycle
	var closesAt, completedAt, closeCheckAt sql.NullTime
	var createdBy sql.NullInt64
	if err := row.Scan(&c.ID, &c.OrgID, &c.RevieweeID, &c.QuestionnaireID, &c.Status, &c.OpenedAt,
		&closesAt, &completedAt, &closeCheckAt, &createdBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	assignCycleNullables(&c, closesAt, completedAt, closeCheckAt, createdBy)
	return &c, nil
}

func collectCycles(rows *sql.Rows) ([]ReviewCycle, error) {
	var out []ReviewCycle
	for rows.Next() {
		var c ReviewCycle
		var closesAt, completedAt, closeCheckAt sql.NullTime
		var createdBy sql.NullInt64
		if err := rows.Scan(&c.ID, &c.OrgID, &c.RevieweeID, &c.QuestionnaireID, &c.Status, &c.OpenedAt,
			&closesAt, &completedAt, &closeCheckAt, &createdBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		assignCycleNullables(&c, closesAt, completedAt, closeCheckAt, createdBy)
		out = append(out, c)
	}
	return out, rows.Err()
}

func assignCycleNullables(c *ReviewCycle, closesAt, completedAt, closeCheckAt sql.NullTime, createdBy sql.NullInt64) {
	if closesAt.Valid {
		t := closesAt.Time
		c.ClosesAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	if closeCheckAt.Valid {
		t := closeCheckAt.Time
		c.CloseCheckSentAt = &t
	}
	if createdBy.Valid {
		v := createdBy.Int64
		c.CreatedBy = &v
	}
}
