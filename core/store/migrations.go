package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"blik/core/store/migrations"
	"blik/core/utils"
)

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT UNIQUE NOT NULL,
		allow_registration INTEGER NOT NULL DEFAULT 0,
		min_responses_for_anonymity INTEGER NOT NULL DEFAULT 3,
		smtp_host TEXT NOT NULL DEFAULT '',
		smtp_port INTEGER NOT NULL DEFAULT 587,
		smtp_username TEXT NOT NULL DEFAULT '',
		smtp_password_enc BLOB,
		smtp_use_tls INTEGER NOT NULL DEFAULT 1,
		smtp_from TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		salt TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'member',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(org_id) REFERENCES organizations(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		email TEXT NOT NULL,
		roles TEXT NOT NULL DEFAULT '[]',
		csrf_token TEXT NOT NULL,
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_seen_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS reviewees (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		role_title TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(org_id) REFERENCES organizations(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS questionnaires (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_default INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(org_id) REFERENCES organizations(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS question_sections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		questionnaire_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(questionnaire_id) REFERENCES questionnaires(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		section_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'rating',
		config TEXT NOT NULL DEFAULT '{}',
		position INTEGER NOT NULL DEFAULT 0,
		required INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY(section_id) REFERENCES question_sections(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS review_cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER NOT NULL,
		reviewee_id INTEGER NOT NULL,
		questionnaire_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		opened_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		closes_at TIMESTAMP,
		completed_at TIMESTAMP,
		created_by INTEGER,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(org_id) REFERENCES organizations(id) ON DELETE CASCADE,
		FOREIGN KEY(reviewee_id) REFERENCES reviewees(id) ON DELETE CASCADE,
		FOREIGN KEY(questionnaire_id) REFERENCES questionnaires(id)
	);`,
	`CREATE TABLE IF NOT EXISTS reviewer_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id INTEGER NOT NULL,
		token TEXT UNIQUE NOT NULL,
		category TEXT NOT NULL,
		reviewer_email TEXT NOT NULL DEFAULT '',
		invitation_sent_at TIMESTAMP,
		claimed_at TIMESTAMP,
		completed_at TIMESTAMP,
		reminder_sent_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(cycle_id) REFERENCES review_cycles(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		answer TEXT NOT NULL DEFAULT '{}',
		submitted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(token_id, question_id),
		FOREIGN KEY(token_id) REFERENCES reviewer_tokens(id) ON DELETE CASCADE,
		FOREIGN KEY(question_id) REFERENCES questions(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id INTEGER UNIQUE NOT NULL,
		generated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		data TEXT NOT NULL DEFAULT '{}',
		FOREIGN KEY(cycle_id) REFERENCES review_cycles(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS upgrade_steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		success INTEGER NOT NULL DEFAULT 0,
		error_text TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS api_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		token_hash TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_used_at TIMESTAMP,
		revoked_at TIMESTAMP,
		FOREIGN KEY(org_id) REFERENCES organizations(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS webhook_endpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		secret TEXT NOT NULL,
		events TEXT NOT NULL DEFAULT '[]',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(org_id) REFERENCES organizations(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS webhook_deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		endpoint_id INTEGER NOT NULL,
		uuid TEXT UNIQUE NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		delivered_at TIMESTAMP,
		FOREIGN KEY(endpoint_id) REFERENCES webhook_endpoints(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER UNIQUE NOT NULL,
		plan TEXT NOT NULL DEFAULT 'saas',
		stripe_customer_id TEXT NOT NULL DEFAULT '',
		stripe_subscription_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		current_period_end TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(org_id) REFERENCES organizations(id) ON DELETE CASCADE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_users_org ON users(org_id);`,
	`CREATE INDEX IF NOT EXISTS idx_reviewees_org ON reviewees(org_id);`,
	`CREATE INDEX IF NOT EXISTS idx_sections_questionnaire ON question_sections(questionnaire_id, position);`,
	`CREATE INDEX IF NOT EXISTS idx_questions_section ON questions(section_id, position);`,
	`CREATE INDEX IF NOT EXISTS idx_cycles_org_status ON review_cycles(org_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_cycle ON reviewer_tokens(cycle_id);`,
	`CREATE INDEX IF NOT EXISTS idx_responses_token ON responses(token_id);`,
	`CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_status ON webhook_deliveries(status, created_at);`,
}

func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	isPG, err := isPostgresDB(ctx, db)
	if err != nil {
		return err
	}
	if !isPG {
		if !isTestRuntime() {
			return fmt.Errorf("only postgres is supported outside go test runtime")
		}
		return applySQLiteTestMigrations(ctx, db, logger)
	}
	return applyGooseMigrations(ctx, db, logger)
}

func applyGooseMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("applying goose migrations")
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func applySQLiteTestMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if logger != nil {
		logger.Printf("applying sqlite test migrations")
	}
	for i, stmt := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
		}
	}
	post := []func(context.Context, *sql.DB) error{
		ensureRevieweeUUID,
		ensureQuestionnaireUUID,
		ensureQuestionUUID,
		ensureReportUUID,
		ensureCycleColumns,
	}
	for _, fn := range post {
		if err := fn(ctx, db); err != nil {
			return err
		}
	}
	if logger != nil {
		logger.Printf("sqlite test migrations applied")
	}
	return nil
}

func ensureCycleColumns(ctx context.Context, db *sql.DB) error {
	type col struct {
		Name string
		SQL  string
	}
	cols := []col{
		{Name: "close_check_sent_at", SQL: "ALTER TABLE review_cycles ADD COLUMN close_check_sent_at TIMESTAMP"},
	}
	for _, c := range cols {
		exists, err := columnExists(ctx, db, "review_cycles", c.Name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.ExecContext(ctx, c.SQL); err != nil {
			return fmt.Errorf("add column %s: %w", c.Name, err)
		}
	}
	return nil
}

func ensureRevieweeUUID(ctx context.Context, db *sql.DB) error {
	return ensurePublicIDColumn(ctx, db, "reviewees",
		`CREATE TABLE IF NOT EXISTS reviewees_new (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			org_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			role_title TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			uuid TEXT NOT NULL UNIQUE,
			FOREIGN KEY(org_id) REFERENCES organizations(id) ON DELETE CASCADE
		);`,
		[]string{"id", "org_id", "name", "email", "role_title", "active", "created_at", "updated_at", "uuid"},
		[]string{`CREATE INDEX IF NOT EXISTS idx_reviewees_org ON reviewees(org_id);`},
	)
}

func ensureQuestionnaireUUID(ctx context.Context, db *sql.DB) error {
	return ensurePublicIDColumn(ctx, db, "questionnaires",
		`CREATE TABLE IF NOT EXISTS questionnaires_new (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			org_id INTEGER,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_default INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			uuid TEXT NOT NULL UNIQUE,
			FOREIGN KEY(org_id) REFERENCES organizations(id) ON DELETE CASCADE
		);`,
		[]string{"id", "org_id", "title", "description", "is_default", "created_at", "updated_at", "uuid"},
		nil,
	)
}

func ensureQuestionUUID(ctx context.Context, db *sql.DB) error {
	return ensurePublicIDColumn(ctx, db, "questions",
		`CREATE TABLE IF NOT EXISTS questions_new (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			section_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'rating',
			config TEXT NOT NULL DEFAULT '{}',
			position INTEGER NOT NULL DEFAULT 0,
			required INTEGER NOT NULL DEFAULT 1,
			uuid TEXT NOT NULL UNIQUE,
			FOREIGN KEY(section_id) REFERENCES question_sections(id) ON DELETE CASCADE
		);`,
		[]string{"id", "section_id", "text", "kind", "config", "position", "required", "uuid"},
		[]string{`CREATE INDEX IF NOT EXISTS idx_questions_section ON questions(section_id, position);`},
	)
}

func ensureReportUUID(ctx context.Context, db *sql.DB) error {
	return ensurePublicIDColumn(ctx, db, "reports",
		`CREATE TABLE IF NOT EXISTS reports_new (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id INTEGER UNIQUE NOT NULL,
			generated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			data TEXT NOT NULL DEFAULT '{}',
			uuid TEXT NOT NULL UNIQUE,
			FOREIGN KEY(cycle_id) REFERENCES review_cycles(id) ON DELETE CASCADE
		);`,
		[]string{"id", "cycle_id", "generated_at", "data", "uuid"},
		nil,
	)
}

// ensurePublicIDColumn walks a table through the same three steps the
// postgres history applies: nullable uuid column, idempotent backfill, then
// a rebuild that imposes NOT NULL and UNIQUE. Each step is guarded, so a
// second run is a no-op.
func ensurePublicIDColumn(ctx context.Context, db *sql.DB, table, createSQL string, cols []string, indexes []string) error {
	exists, err := columnExists(ctx, db, table, "uuid")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN uuid TEXT", table)); err != nil {
			return fmt.Errorf("add uuid column to %s: %w", table, err)
		}
	}
	if err := migrations.BackfillUUID(ctx, db, table); err != nil {
		return err
	}
	constrained, err := uuidColumnConstrained(ctx, db, table)
	if err != nil {
		return err
	}
	if constrained {
		return nil
	}
	return rebuildWithConstrainedUUID(ctx, db, table, createSQL, cols, indexes)
}

func uuidColumnConstrained(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var sqlText sql.NullString
	err := db.QueryRowContext(ctx, `SELECT sql FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&sqlText)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	ddl := strings.ToLower(sqlText.String)
	return strings.Contains(ddl, "uuid text not null unique"), nil
}

func rebuildWithConstrainedUUID(ctx context.Context, db *sql.DB, table, createSQL string, cols []string, indexes []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		tx.Rollback()
		return err
	}
	colList := strings.Join(cols, ", ")
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s_new (%s) SELECT %s FROM %s", table, colList, colList, table)); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", table)); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s_new RENAME TO %s", table, table)); err != nil {
		tx.Rollback()
		return err
	}
	for _, idx := range indexes {
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt interface{}
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
