// Package migrations holds the versioned schema history applied by goose on
// postgres. SQL files carry plain DDL; the numbered Go files carry the
// three-step public-identifier rollouts that need a data pass between the
// schema changes.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/gofrs/uuid/v5"
)

//go:embed *.sql
var FS embed.FS

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// BackfillUUID assigns a fresh random identifier to every row of table that
// still lacks one, touching only the uuid column. Rows that already have a
// value are skipped, so a retried run after a partial failure never
// reassigns identifiers.
func BackfillUUID(ctx context.Context, db execQueryer, table string) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE uuid IS NULL`, table))
	if err != nil {
		return fmt.Errorf("%s: list rows without uuid: %w", table, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()
	stmt := fmt.Sprintf(`UPDATE %s SET uuid = ? WHERE id = ? AND uuid IS NULL`, table)
	for _, id := range ids {
		val := uuid.Must(uuid.NewV4()).String()
		if _, err := db.ExecContext(ctx, stmt, val, id); err != nil {
			return fmt.Errorf("%s: backfill uuid for id %d: %w", table, id, err)
		}
	}
	return nil
}
