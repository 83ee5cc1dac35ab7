package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upReportUUID, downReportUUID)
}

func upReportUUID(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE reports ADD COLUMN IF NOT EXISTS uuid TEXT`); err != nil {
		return err
	}
	if err := BackfillUUID(ctx, tx, "reports"); err != nil {
		return err
	}
	for _, stmt := range []string{
		`ALTER TABLE reports ALTER COLUMN uuid SET NOT NULL`,
		`ALTER TABLE reports ALTER COLUMN uuid SET DEFAULT gen_random_uuid()::text`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reports_uuid ON reports(uuid)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func downReportUUID(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE reports DROP COLUMN IF EXISTS uuid`)
	return err
}
