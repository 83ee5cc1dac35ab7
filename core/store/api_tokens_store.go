package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type APITokensStore interface {
	Create(ctx context.Context, t *APIToken) (int64, error)
	// GetByHash resolves a presented token by its digest; revoked tokens
	// do not resolve.
	GetByHash(ctx context.Context, hash string) (*APIToken, error)
	ListByOrg(ctx context.Context, orgID int64) ([]APIToken, error)
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
	Revoke(ctx context.Context, orgID, id int64, at time.Time) error
}

type apiTokensStore struct {
	db *sql.DB
}

func NewAPITokensStore(db *sql.DB) APITokensStore {
	return &apiTokensStore{db: db}
}

const apiTokenColumns = `id, org_id, name, token_hash, created_at, last_used_at, revoked_at`

func (s *apiTokensStore) Create(ctx context.Context, t *APIToken) (int64, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return 0, errors.New("name is required")
	}
	if t.TokenHash == "" {
		return 0, errors.New("token hash is required")
	}
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens(org_id, name, token_hash, created_at)
		VALUES(?,?,?,?) RETURNING id`, t.OrgID, name, t.TokenHash, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	t.ID = id
	t.Name = name
	t.CreatedAt = now
	return id, nil
}

func (s *apiTokensStore) GetByHash(ctx context.Context, hash string) (*APIToken, error) {
	if hash == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+apiTokenColumns+` FROM api_tokens WHERE token_hash=? AND revoked_at IS NULL`, hash)
	return scanAPIToken(row)
}

func (s *apiTokensStore) ListByOrg(ctx context.Context, orgID int64) ([]APIToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+apiTokenColumns+` FROM api_tokens WHERE org_id=? ORDER BY created_at DESC, id DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []APIToken
	for rows.Next() {
		var t APIToken
		var lastUsed, revoked sql.NullTime
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name, &t.TokenHash, &t.CreatedAt, &lastUsed, &revoked); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			v := lastUsed.Time
			t.LastUsedAt = &v
		}
		if revoked.Valid {
			v := revoked.Time
			t.RevokedAt = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *apiTokensStore) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at=? WHERE id=?`, at.UTC(), id)
	return err
}

func (s *apiTokensStore) Revoke(ctx context.Context, orgID, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE api_tokens SET revoked_at=? WHERE org_id=? AND id=? AND revoked_at IS NULL`, at.UTC(), orgID, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIToken(row *sql.Row) (*APIToken, error) {
	var t APIToken
	var lastUsed, revoked sql.NullTime
	if err := row.Scan(&t.ID, &t.OrgID, &t.Name, &t.TokenHash, &t.CreatedAt, &lastUsed, &revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if lastUsed.Valid {
		v := lastUsed.Time
		t.LastUsedAt = &v
	}
	if revoked.Valid {
		v := revoked.Time
		t.RevokedAt = &v
	}
	return &t, nil
}
