package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type UsersStore interface {
	Create(ctx context.Context, user *User) (int64, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByOrg(ctx context.Context, orgID int64) ([]User, error)
	CountByOrg(ctx context.Context, orgID int64) (int, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash, salt string) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}

type usersStore struct {
	db *sql.DB
}

func NewUsersStore(db *sql.DB) UsersStore {
	return &usersStore{db: db}
}

const userColumns = `id, org_id, email, password_hash, salt, display_name, role, active, created_at, updated_at`

func (s *usersStore) Create(ctx context.Context, user *User) (int64, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" {
		return 0, errors.New("email is required")
	}
	role := user.Role
	if role == "" {
		role = RoleMember
	}
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users(org_id, email, password_hash, salt, display_name, role, active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?) RETURNING id`,
		user.OrgID, email, user.PasswordHash, user.Salt, strings.TrimSpace(user.DisplayName), role,
		boolToInt(user.Active), now, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	user.ID = id
	user.Email = email
	user.Role = role
	user.CreatedAt = now
	user.UpdatedAt = now
	return id, nil
}

func (s *usersStore) GetByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row)
}

func (s *usersStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email)
	return scanUser(row)
}

func (s *usersStore) ListByOrg(ctx context.Context, orgID int64) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE org_id=? ORDER BY email ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *usersStore) CountByOrg(ctx context.Context, orgID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE org_id=?`, orgID).Scan(&n)
	return n, err
}

func (s *usersStore) Update(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET email=?, display_name=?, role=?, active=?, updated_at=?
		WHERE id=?`,
		strings.ToLower(strings.TrimSpace(user.Email)), strings.TrimSpace(user.DisplayName),
		user.Role, boolToInt(user.Active), now, user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	user.UpdatedAt = now
	return nil
}

func (s *usersStore) UpdatePassword(ctx context.Context, id int64, passwordHash, salt string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=?, salt=?, updated_at=? WHERE id=?`,
		passwordHash, salt, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *usersStore) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET active=?, updated_at=? WHERE id=?`,
		boolToInt(active), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *usersStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var active int
	if err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.PasswordHash, &u.Salt, &u.DisplayName, &u.Role, &active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Active = active == 1
	return &u, nil
}

func scanUserRow(rows *sql.Rows) (*User, error) {
	var u User
	var active int
	if err := rows.Scan(&u.ID, &u.OrgID, &u.Email, &u.PasswordHash, &u.Salt, &u.DisplayName, &u.Role, &active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Active = active == 1
	return &u, nil
}

// isUniqueViolation matches both engines: pgx surfaces SQLSTATE 23505,
// modernc sqlite reports "UNIQUE constraint failed".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
