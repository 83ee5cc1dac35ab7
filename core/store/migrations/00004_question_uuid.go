package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upQuestionUUID, downQuestionUUID)
}

func upQuestionUUID(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE questions ADD COLUMN IF NOT EXISTS uuid TEXT`); err != nil {
		return err
	}
	if err := BackfillUUID(ctx, tx, "questions"); err != nil {
		return err
	}
	for _, stmt := range []string{
		`ALTER TABLE questions ALTER COLUMN uuid SET NOT NULL`,
		`ALTER TABLE questions ALTER COLUMN uuid SET DEFAULT gen_random_uuid()::text`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_questions_uuid ON questions(uuid)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func downQuestionUUID(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE questions DROP COLUMN IF EXISTS uuid`)
	return err
}
