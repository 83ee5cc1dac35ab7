package store

import (
	"context"
	"database/sql"
	"time"
)

type ResponsesStore interface {
	// ReplaceForToken swaps the token's full answer set in one
	// transaction, so a resubmitted form never leaves stale answers
	// behind.
	ReplaceForToken(ctx context.Context, tokenID int64, answers []Response) error
	ListByToken(ctx context.Context, tokenID int64) ([]Response, error)
	// ListByCycle joins each response with the category of its token;
	// report generation groups on that.
	ListByCycle(ctx context.Context, cycleID int64) ([]CycleResponse, error)
	CountByToken(ctx context.Context, tokenID int64) (int, error)
}

type responsesStore struct {
	db *sql.DB
}

func NewResponsesStore(db *sql.DB) ResponsesStore {
	return &responsesStore{db: db}
}

func (s *responsesStore) ReplaceForToken(ctx context.Context, tokenID int64, answers []Response) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM responses WHERE token_id=?`, tokenID); err != nil {
		tx.Rollback()
		return err
	}
	now := time.Now().UTC()
	for i := range answers {
		a := &answers[i]
		answer := a.Answer
		if answer == "" {
			answer = "{}"
		}
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO responses(token_id, question_id, answer, submitted_at)
			VALUES(?,?,?,?) RETURNING id`,
			tokenID, a.QuestionID, answer, now).Scan(&id)
		if err != nil {
			tx.Rollback()
			return err
		}
		a.ID = id
		a.TokenID = tokenID
		a.SubmittedAt = now
	}
	return tx.Commit()
}

func (s *responsesStore) ListByToken(ctx context.Context, tokenID int64) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token_id, question_id, answer, submitted_at
		FROM responses WHERE token_id=? ORDER BY question_id ASC`, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Response
	for rows.Next() {
		var r Response
		if err := rows.Scan(&r.ID, &r.TokenID, &r.QuestionID, &r.Answer, &r.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *responsesStore) ListByCycle(ctx context.Context, cycleID int64) ([]CycleResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.question_id, r.token_id, t.category, r.answer
		FROM responses r
		JOIN reviewer_tokens t ON t.id = r.token_id
		WHERE t.cycle_id=? ORDER BY r.question_id ASC, r.token_id ASC`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CycleResponse
	for rows.Next() {
		var r CycleResponse
		if err := rows.Scan(&r.QuestionID, &r.TokenID, &r.Category, &r.Answer); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *responsesStore) CountByToken(ctx context.Context, tokenID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses WHERE token_id=?`, tokenID).Scan(&n)
	return n, err
}
