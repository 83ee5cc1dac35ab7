package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type OrganizationsStore interface {
	Create(ctx context.Context, org *Organization) (int64, error)
	GetByID(ctx context.Context, id int64) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	// FirstActive returns the oldest active organization. Standalone
	// deployments run a single organization and resolve it this way.
	FirstActive(ctx context.Context) (*Organization, error)
	// ListAllowingRegistration returns the active organizations with open
	// registration; signup requires exactly one.
	ListAllowingRegistration(ctx context.Context) ([]Organization, error)
	Update(ctx context.Context, org *Organization) error
	UpdateSMTP(ctx context.Context, id int64, host string, port int, username string, passwordEnc []byte, useTLS bool, from string) error
}

type organizationsStore struct {
	db *sql.DB
}

func NewOrganizationsStore(db *sql.DB) OrganizationsStore {
	return &organizationsStore{db: db}
}

const orgColumns = `id, name, slug, allow_registration, min_responses_for_anonymity, smtp_host, smtp_port, smtp_username, smtp_password_enc, smtp_use_tls, smtp_from, active, created_at, updated_at`

func (s *organizationsStore) Create(ctx context.Context, org *Organization) (int64, error) {
	if org.MinResponsesForAnonymity <= 0 {
		org.MinResponsesForAnonymity = 3
	}
	if org.SMTPPort <= 0 {
		org.SMTPPort = 587
	}
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO organizations(name, slug, allow_registration, min_responses_for_anonymity, smtp_host, smtp_port, smtp_username, smtp_password_enc, smtp_use_tls, smtp_from, active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?) RETURNING id`,
		strings.TrimSpace(org.Name), strings.ToLower(strings.TrimSpace(org.Slug)), boolToInt(org.AllowRegistration), org.MinResponsesForAnonymity,
		org.SMTPHost, org.SMTPPort, org.SMTPUsername, org.SMTPPasswordEnc, boolToInt(org.SMTPUseTLS), org.SMTPFrom,
		boolToInt(org.Active), now, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	org.ID = id
	org.CreatedAt = now
	org.UpdatedAt = now
	return id, nil
}

func (s *organizationsStore) GetByID(ctx context.Context, id int64) (*Organization, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id=?`, id)
	return scanOrganization(row)
}

func (s *organizationsStore) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE slug=?`, slug)
	return scanOrganization(row)
}

func (s *organizationsStore) FirstActive(ctx context.Context) (*Organization, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE active=1 ORDER BY id ASC LIMIT 1`)
	return scanOrganization(row)
}

func (s *organizationsStore) ListAllowingRegistration(ctx context.Context) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE active=1 AND allow_registration=1 ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Organization
	for rows.Next() {
		var org Organization
		var allowReg, anonMin, useTLS, active int
		var passwordEnc []byte
		if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &allowReg, &anonMin, &org.SMTPHost, &org.SMTPPort, &org.SMTPUsername, &passwordEnc, &useTLS, &org.SMTPFrom, &active, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		org.AllowRegistration = allowReg == 1
		org.MinResponsesForAnonymity = anonMin
		org.SMTPPasswordEnc = passwordEnc
		org.SMTPUseTLS = useTLS == 1
		org.Active = active == 1
		out = append(out, org)
	}
	return out, rows.Err()
}

func (s *organizationsStore) Update(ctx context.Context, org *Organization) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET name=?, slug=?, allow_registration=?, min_responses_for_anonymity=?, active=?, updated_at=?
		WHERE id=?`,
		strings.TrimSpace(org.Name), strings.ToLower(strings.TrimSpace(org.Slug)), boolToInt(org.AllowRegistration),
		org.MinResponsesForAnonymity, boolToInt(org.Active), now, org.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	org.UpdatedAt = now
	return nil
}

func (s *organizationsStore) UpdateSMTP(ctx context.Context, id int64, host string, port int, username string, passwordEnc []byte, useTLS bool, from string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET smtp_host=?, smtp_port=?, smtp_username=?, smtp_password_enc=?, smtp_use_tls=?, smtp_from=?, updated_at=?
		WHERE id=?`,
		strings.TrimSpace(host), port, strings.TrimSpace(username), passwordEnc, boolToInt(useTLS), strings.TrimSpace(from), now, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrganization(row *sql.Row) (*Organization, error) {
	var org Organization
	var allowReg, anonMin, useTLS, active int
	var passwordEnc []byte
	if err := row.Scan(&org.ID, &org.Name, &org.Slug, &allowReg, &anonMin, &org.SMTPHost, &org.SMTPPort, &org.SMTPUsername, &passwordEnc, &useTLS, &org.SMTPFrom, &active, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	org.AllowRegistration = allowReg == 1
	org.MinResponsesForAnonymity = anonMin
	org.SMTPPasswordEnc = passwordEnc
	org.SMTPUseTLS = useTLS == 1
	org.Active = active == 1
	return &org, nil
}
