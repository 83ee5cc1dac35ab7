package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type ReviewerTokensStore interface {
	CreateBatch(ctx context.Context, tokens []ReviewerToken) error
	GetByID(ctx context.Context, id int64) (*ReviewerToken, error)
	GetByToken(ctx context.Context, token string) (*ReviewerToken, error)
	ListByCycle(ctx context.Context, cycleID int64) ([]ReviewerToken, error)
	AssignReviewer(ctx context.Context, id int64, email string) error
	MarkInvitationSent(ctx context.Context, id int64, at time.Time) error
	// MarkClaimed records the first open of the feedback form; later
	// opens keep the original claim time.
	MarkClaimed(ctx context.Context, id int64, at time.Time) error
	MarkCompleted(ctx context.Context, id int64, at time.Time) error
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
	CountCompletedByCycle(ctx context.Context, cycleID int64) (int, error)
	// ListReminderCandidates returns tokens on active cycles that were
	// invited at or before cutoff but have neither completed nor been
	// reminded.
	ListReminderCandidates(ctx context.Context, cutoff time.Time) ([]ReviewerToken, error)
}

type reviewerTokensStore struct {
	db *sql.DB
}

func NewReviewerTokensStore(db *sql.DB) ReviewerTokensStore {
	return &reviewerTokensStore{db: db}
}

const tokenColumns = `id, cycle_id, token, category, reviewer_email, invitation_sent_at, claimed_at, completed_at, reminder_sent_at, created_at`

func (s *reviewerTokensStore) CreateBatch(ctx context.Context, tokens []ReviewerToken) error {
	if len(tokens) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range tokens {
		t := &tokens[i]
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO reviewer_tokens(cycle_id, token, category, reviewer_email, created_at)
			VALUES(?,?,?,?,?) RETURNING id`,
			t.CycleID, t.Token, t.Category, strings.ToLower(strings.TrimSpace(t.ReviewerEmail)), now).Scan(&id)
		if err != nil {
			tx.Rollback()
			return err
		}
		t.ID = id
		t.CreatedAt = now
	}
	return tx.Commit()
}

func (s *reviewerTokensStore) GetByID(ctx context.Context, id int64) (*ReviewerToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM reviewer_tokens WHERE id=?`, id)
	return scanToken(row)
}

func (s *reviewerTokensStore) GetByToken(ctx context.Context, token string) (*ReviewerToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM reviewer_tokens WHERE token=?`, token)
	return scanToken(row)
}

func (s *reviewerTokensStore) ListByCycle(ctx context.Context, cycleID int64) ([]ReviewerToken, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tokenColumns+` FROM reviewer_tokens WHERE cycle_id=? ORDER BY id ASC`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTokens(rows)
}

func (s *reviewerTokensStore) AssignReviewer(ctx context.Context, id int64, email string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reviewer_tokens SET reviewer_email=? WHERE id=?`,
		strings.ToLower(strings.TrimSpace(email)), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *reviewerTokensStore) MarkInvitationSent(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reviewer_tokens SET invitation_sent_at=? WHERE id=?`, at.UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *reviewerTokensStore) MarkClaimed(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE reviewer_tokens SET claimed_at=? WHERE id=? AND claimed_at IS NULL`, at.UTC(), id)
	return err
}

func (s *reviewerTokensStore) MarkCompleted(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reviewer_tokens SET completed_at=? WHERE id=?`, at.UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *reviewerTokensStore) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reviewer_tokens SET reminder_sent_at=? WHERE id=?`, at.UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *reviewerTokensStore) CountCompletedByCycle(ctx context.Context, cycleID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviewer_tokens WHERE cycle_id=? AND completed_at IS NOT NULL`, cycleID).Scan(&n)
	return n, err
}

func (s *reviewerTokensStore) ListReminderCandidates(ctx context.Context, cutoff time.Time) ([]ReviewerToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.cycle_id, t.token, t.category, t.reviewer_email, t.invitation_sent_at,
		       t.claimed_at, t.completed_at, t.reminder_sent_at, t.created_at
		FROM reviewer_tokens t
		JOIN review_cycles c ON c.id = t.cycle_id
		WHERE c.status=? AND t.invitation_sent_at IS NOT NULL AND t.invitation_sent_at <= ?
		  AND t.completed_at IS NULL AND t.reminder_sent_at IS NULL
		ORDER BY t.invitation_sent_at ASC`, CycleStatusActive, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTokens(rows)
}

func scanToken(row *sql.Row) (*ReviewerToken, error) {
	var t ReviewerToken
	var invitedAt, claimedAt, completedAt, remindedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.CycleID, &t.Token, &t.Category, &t.ReviewerEmail,
		&invitedAt, &claimedAt, &completedAt, &remindedAt, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	assignTokenNullables(&t, invitedAt, claimedAt, completedAt, remindedAt)
	return &t, nil
}

func collectTokens(rows *sql.Rows) ([]ReviewerToken, error) {
	var out []ReviewerToken
	for rows.Next() {
		var t ReviewerToken
		var invitedAt, claimedAt, completedAt, remindedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.CycleID, &t.Token, &t.Category, &t.ReviewerEmail,
			&invitedAt, &claimedAt, &completedAt, &remindedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		assignTokenNullables(&t, invitedAt, claimedAt, completedAt, remindedAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func assignTokenNullables(t *ReviewerToken, invitedAt, claimedAt, completedAt, remindedAt sql.NullTime) {
	if invitedAt.Valid {
		v := invitedAt.Time
		t.InvitationSentAt = &v
	}
	if claimedAt.Valid {
		v := claimedAt.Time
		t.ClaimedAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	if remindedAt.Valid {
		v := remindedAt.Time
		t.ReminderSentAt = &v
	}
}
