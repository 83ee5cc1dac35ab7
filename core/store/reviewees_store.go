package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

type RevieweesStore interface {
	Create(ctx context.Context, r *Reviewee) (int64, error)
	GetByID(ctx context.Context, orgID, id int64) (*Reviewee, error)
	GetByUUID(ctx context.Context, orgID int64, publicID string) (*Reviewee, error)
	ListByOrg(ctx context.Context, orgID int64, activeOnly bool) ([]Reviewee, error)
	Update(ctx context.Context, r *Reviewee) error
	SetActive(ctx context.Context, orgID, id int64, active bool) error
	Delete(ctx context.Context, orgID, id int64) error
}

type revieweesStore struct {
	db *sql.DB
}

func NewRevieweesStore(db *sql.DB) RevieweesStore {
	return &revieweesStore{db: db}
}

const revieweeColumns = `id, org_id, uuid, name, email, role_title, active, created_at, updated_at`

func (s *revieweesStore) Create(ctx context.Context, r *Reviewee) (int64, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return 0, errors.New("name is required")
	}
	// The uuid is minted here rather than left to the column default so
	// both engines produce identical rows.
	publicID := r.UUID
	if publicID == "" {
		publicID = uuid.Must(uuid.NewV4()).String()
	}
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO reviewees(org_id, uuid, name, email, role_title, active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?) RETURNING id`,
		r.OrgID, publicID, name, strings.ToLower(strings.TrimSpace(r.Email)), strings.TrimSpace(r.RoleTitle),
		boolToInt(r.Active), now, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	r.ID = id
	r.UUID = publicID
	r.Name = name
	r.CreatedAt = now
	r.UpdatedAt = now
	return id, nil
}

func (s *revieweesStore) GetByID(ctx context.Context, orgID, id int64) (*Reviewee, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+revieweeColumns+` FROM reviewees WHERE org_id=? AND id=?`, orgID, id)
	return scanReviewee(row)
}

func (s *revieweesStore) GetByUUID(ctx context.Context, orgID int64, publicID string) (*Reviewee, error) {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+revieweeColumns+` FROM reviewees WHERE org_id=? AND uuid=?`, orgID, publicID)
	return scanReviewee(row)
}

func (s *revieweesStore) ListByOrg(ctx context.Context, orgID int64, activeOnly bool) ([]Reviewee, error) {
	query := `SELECT ` + revieweeColumns + ` FROM reviewees WHERE org_id=?`
	if activeOnly {
		query += ` AND active=1`
	}
	query += ` ORDER BY name ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reviewee
	for rows.Next() {
		var r Reviewee
		var active int
		if err := rows.Scan(&r.ID, &r.OrgID, &r.UUID, &r.Name, &r.Email, &r.RoleTitle, &active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Active = active == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *revieweesStore) Update(ctx context.Context, r *Reviewee) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE reviewees SET name=?, email=?, role_title=?, active=?, updated_at=?
		WHERE org_id=? AND id=?`,
		strings.TrimSpace(r.Name), strings.ToLower(strings.TrimSpace(r.Email)), strings.TrimSpace(r.RoleTitle),
		boolToInt(r.Active), now, r.OrgID, r.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	r.UpdatedAt = now
	return nil
}

func (s *revieweesStore) SetActive(ctx context.Context, orgID, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reviewees SET active=?, updated_at=? WHERE org_id=? AND id=?`,
		boolToInt(active), time.Now().UTC(), orgID, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *revieweesStore) Delete(ctx context.Context, orgID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reviewees WHERE org_id=? AND id=?`, orgID, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReviewee(row *sql.Row) (*Reviewee, error) {
	var r Reviewee
	var active int
	if err := row.Scan(&r.ID, &r.OrgID, &r.UUID, &r.Name, &r.Email, &r.RoleTitle, &active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.Active = active == 1
	return &r, nil
}
