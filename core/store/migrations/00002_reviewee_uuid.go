package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upRevieweeUUID, downRevieweeUUID)
}

// Rolls out the public identifier in three ordered steps so the table is
// never invalid in between: nullable column, per-row backfill, then NOT NULL
// with a uniqueness guarantee and a generated default for future inserts.
func upRevieweeUUID(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE reviewees ADD COLUMN IF NOT EXISTS uuid TEXT`); err != nil {
		return err
	}
	if err := BackfillUUID(ctx, tx, "reviewees"); err != nil {
		return err
	}
	for _, stmt := range []string{
		`ALTER TABLE reviewees ALTER COLUMN uuid SET NOT NULL`,
		`ALTER TABLE reviewees ALTER COLUMN uuid SET DEFAULT gen_random_uuid()::text`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reviewees_uuid ON reviewees(uuid)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func downRevieweeUUID(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE reviewees DROP COLUMN IF EXISTS uuid`)
	return err
}
