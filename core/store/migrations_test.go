package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"blik/config"
	"blik/core/utils"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.AppConfig{DBPath: filepath.Join(t.TempDir(), "blik.db")}
	db, err := NewDB(cfg, utils.NewLogger())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// applyLegacySchema stands in for a deployment that predates the public
// identifier rollout: the base tables without any uuid column.
func applyLegacySchema(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	for i, stmt := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("legacy migration #%d: %v", i+1, err)
		}
	}
}

func seedLegacyReviewees(t *testing.T, db *sql.DB, n int) {
	t.Helper()
	ctx := context.Background()
	if _, err := db.ExecContext(ctx,
		`INSERT INTO organizations (name, slug) VALUES ('Acme', 'acme')`); err != nil {
		t.Fatalf("seed org: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO reviewees (org_id, name) VALUES (1, 'Reviewee ' || ?)`, i); err != nil {
			t.Fatalf("seed reviewee %d: %v", i, err)
		}
	}
}

func TestBackfillAssignsUniqueNonNullUUIDs(t *testing.T) {
	db := openTestDB(t)
	applyLegacySchema(t, db)
	seedLegacyReviewees(t, db, 5)

	ctx := context.Background()
	if err := ApplyMigrations(ctx, db, utils.NewLogger()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	var total, withUUID, distinct int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(uuid), COUNT(DISTINCT uuid) FROM reviewees`).
		Scan(&total, &withUUID, &distinct); err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 5 || withUUID != 5 || distinct != 5 {
		t.Fatalf("total=%d withUUID=%d distinct=%d", total, withUUID, distinct)
	}

	// the rebuilt table enforces NOT NULL
	if _, err := db.ExecContext(ctx,
		`INSERT INTO reviewees (org_id, name, uuid) VALUES (1, 'nobody', NULL)`); err == nil {
		t.Fatalf("insert with NULL uuid should fail after migration")
	}
	// and UNIQUE
	var existing string
	if err := db.QueryRowContext(ctx, `SELECT uuid FROM reviewees LIMIT 1`).Scan(&existing); err != nil {
		t.Fatalf("read uuid: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO reviewees (org_id, name, uuid) VALUES (1, 'dup', ?)`, existing); err == nil {
		t.Fatalf("duplicate uuid insert should fail")
	}
}

func TestBackfillIsIdempotentAcrossReruns(t *testing.T) {
	db := openTestDB(t)
	applyLegacySchema(t, db)
	seedLegacyReviewees(t, db, 3)

	ctx := context.Background()
	logger := utils.NewLogger()
	if err := ApplyMigrations(ctx, db, logger); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	first := readUUIDs(t, db)

	// second application must be a schema no-op and keep every identifier
	if err := ApplyMigrations(ctx, db, logger); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	second := readUUIDs(t, db)
	if len(first) != len(second) {
		t.Fatalf("row count changed: %d -> %d", len(first), len(second))
	}
	for id, v := range first {
		if second[id] != v {
			t.Fatalf("uuid for row %d changed on re-run: %s -> %s", id, v, second[id])
		}
	}
}

func TestBackfillResumesAfterPartialRun(t *testing.T) {
	db := openTestDB(t)
	applyLegacySchema(t, db)
	seedLegacyReviewees(t, db, 4)

	ctx := context.Background()
	// simulate a partial earlier run: the column exists and some rows are
	// already assigned
	if _, err := db.ExecContext(ctx, `ALTER TABLE reviewees ADD COLUMN uuid TEXT`); err != nil {
		t.Fatalf("add column: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE reviewees SET uuid='pre-assigned-1' WHERE id=1`); err != nil {
		t.Fatalf("preassign: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE reviewees SET uuid='pre-assigned-2' WHERE id=2`); err != nil {
		t.Fatalf("preassign: %v", err)
	}

	if err := ApplyMigrations(ctx, db, utils.NewLogger()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	uuids := readUUIDs(t, db)
	if uuids[1] != "pre-assigned-1" || uuids[2] != "pre-assigned-2" {
		t.Fatalf("retry reassigned already-set identifiers: %v", uuids)
	}
	if uuids[3] == "" || uuids[4] == "" || uuids[3] == uuids[4] {
		t.Fatalf("unprocessed rows not backfilled: %v", uuids)
	}
}

func TestCycleCloseCheckColumnAdded(t *testing.T) {
	db := openTestDB(t)
	applyLegacySchema(t, db)

	ctx := context.Background()
	if err := ApplyMigrations(ctx, db, utils.NewLogger()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	exists, err := columnExists(ctx, db, "review_cycles", "close_check_sent_at")
	if err != nil {
		t.Fatalf("column check: %v", err)
	}
	if !exists {
		t.Fatalf("close_check_sent_at column missing")
	}
}

func TestNewRowsReceiveGeneratedUUIDs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := ApplyMigrations(ctx, db, utils.NewLogger()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	orgs := NewOrganizationsStore(db)
	orgID, err := orgs.Create(ctx, &Organization{Name: "Acme", Slug: "acme"})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	reviewees := NewRevieweesStore(db)
	id, err := reviewees.Create(ctx, &Reviewee{OrgID: orgID, Name: "New Hire"})
	if err != nil {
		t.Fatalf("create reviewee: %v", err)
	}
	created, err := reviewees.GetByID(ctx, orgID, id)
	if err != nil {
		t.Fatalf("get reviewee: %v", err)
	}
	if created == nil || created.UUID == "" {
		t.Fatalf("store insert did not mint a uuid: %+v", created)
	}
}

func readUUIDs(t *testing.T, db *sql.DB) map[int64]string {
	t.Helper()
	rows, err := db.QueryContext(context.Background(), `SELECT id, uuid FROM reviewees ORDER BY id`)
	if err != nil {
		t.Fatalf("query uuids: %v", err)
	}
	defer rows.Close()
	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var v string
		if err := rows.Scan(&id, &v); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out[id] = v
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}
