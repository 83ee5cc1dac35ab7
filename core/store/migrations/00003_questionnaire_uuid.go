package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upQuestionnaireUUID, downQuestionnaireUUID)
}

func upQuestionnaireUUID(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE questionnaires ADD COLUMN IF NOT EXISTS uuid TEXT`); err != nil {
		return err
	}
	if err := BackfillUUID(ctx, tx, "questionnaires"); err != nil {
		return err
	}
	for _, stmt := range []string{
		`ALTER TABLE questionnaires ALTER COLUMN uuid SET NOT NULL`,
		`ALTER TABLE questionnaires ALTER COLUMN uuid SET DEFAULT gen_random_uuid()::text`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_questionnaires_uuid ON questionnaires(uuid)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func downQuestionnaireUUID(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE questionnaires DROP COLUMN IF EXISTS uuid`)
	return err
}
