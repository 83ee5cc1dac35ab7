package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"blik/config"
	"blik/core/utils"
)

const pgDriverName = "blik-pgx"

var registerPGDriver sync.Once

// NewDB opens the application database. A configured db_path selects the
// sqlite runtime used by tests; everything else goes to postgres through a
// driver shim that rewrites '?' placeholders to '$n', so the stores can use
// one placeholder dialect for both engines.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	if cfg == nil {
		return nil, errors.New("store: nil config")
	}
	if strings.TrimSpace(cfg.DBPath) != "" || strings.EqualFold(cfg.DBDriver, "sqlite") {
		return openSQLite(cfg, logger)
	}
	registerPGDriver.Do(func() {
		sql.Register(pgDriverName, &translatingDriver{base: stdlib.GetDefaultDriver()})
	})
	db, err := sql.Open(pgDriverName, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if logger != nil {
		logger.Printf("connected to postgres")
	}
	return db, nil
}

func openSQLite(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	path := strings.TrimSpace(cfg.DBPath)
	if path == "" {
		path = ":memory:"
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer keeps the test runtime free of SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if logger != nil {
		logger.Printf("opened sqlite database at %s", path)
	}
	return db, nil
}

func isTestRuntime() bool {
	if flag.Lookup("test.v") != nil {
		return true
	}
	return strings.HasSuffix(os.Args[0], ".test")
}

func isPostgresDB(ctx context.Context, db *sql.DB) (bool, error) {
	var v string
	if err := db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&v); err == nil {
		return false, nil
	}
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&v); err != nil {
		return false, fmt.Errorf("detect database engine: %w", err)
	}
	return strings.Contains(v, "PostgreSQL"), nil
}

// rewritePlaceholders converts '?' markers to postgres '$n' ordinals,
// leaving string literals, quoted identifiers, and comments untouched.
func rewritePlaceholders(query string) string {
	if !strings.ContainsRune(query, '?') {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch c {
		case '\'', '"':
			quote := c
			b.WriteByte(c)
			for i++; i < len(query); i++ {
				b.WriteByte(query[i])
				if query[i] == quote {
					if i+1 < len(query) && query[i+1] == quote {
						i++
						b.WriteByte(quote)
						continue
					}
					break
				}
			}
		case '-':
			if i+1 < len(query) && query[i+1] == '-' {
				for ; i < len(query) && query[i] != '\n'; i++ {
					b.WriteByte(query[i])
				}
				if i < len(query) {
					b.WriteByte('\n')
				}
				continue
			}
			b.WriteByte(c)
		case '/':
			if i+1 < len(query) && query[i+1] == '*' {
				for ; i < len(query); i++ {
					b.WriteByte(query[i])
					if query[i] == '/' && i > 0 && query[i-1] == '*' {
						break
					}
				}
				continue
			}
			b.WriteByte(c)
		case '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

type translatingDriver struct {
	base driver.Driver
}

func (d *translatingDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.base.Open(name)
	if err != nil {
		return nil, err
	}
	return &translatingConn{base: conn}, nil
}

func (d *translatingDriver) OpenConnector(name string) (driver.Connector, error) {
	if dc, ok := d.base.(driver.DriverContext); ok {
		c, err := dc.OpenConnector(name)
		if err != nil {
			return nil, err
		}
		return &translatingConnector{base: c, drv: d}, nil
	}
	return &dsnConnector{dsn: name, drv: d}, nil
}

type translatingConnector struct {
	base driver.Connector
	drv  *translatingDriver
}

func (c *translatingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.base.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &translatingConn{base: conn}, nil
}

func (c *translatingConnector) Driver() driver.Driver { return c.drv }

type dsnConnector struct {
	dsn string
	drv *translatingDriver
}

func (c *dsnConnector) Connect(context.Context) (driver.Conn, error) { return c.drv.Open(c.dsn) }

func (c *dsnConnector) Driver() driver.Driver { return c.drv }

type translatingConn struct {
	base driver.Conn
}

func (c *translatingConn) Prepare(query string) (driver.Stmt, error) {
	return c.base.Prepare(rewritePlaceholders(query))
}

func (c *translatingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if p, ok := c.base.(driver.ConnPrepareContext); ok {
		return p.PrepareContext(ctx, rewritePlaceholders(query))
	}
	return c.base.Prepare(rewritePlaceholders(query))
}

func (c *translatingConn) Close() error { return c.base.Close() }

func (c *translatingConn) Begin() (driver.Tx, error) { return c.base.Begin() } //nolint:staticcheck

func (c *translatingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.base.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	return c.base.Begin() //nolint:staticcheck
}

func (c *translatingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if e, ok := c.base.(driver.ExecerContext); ok {
		return e.ExecContext(ctx, rewritePlaceholders(query), args)
	}
	return nil, driver.ErrSkip
}

func (c *translatingConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if q, ok := c.base.(driver.QueryerContext); ok {
		return q.QueryContext(ctx, rewritePlaceholders(query), args)
	}
	return nil, driver.ErrSkip
}

func (c *translatingConn) Ping(ctx context.Context) error {
	if p, ok := c.base.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *translatingConn) ResetSession(ctx context.Context) error {
	if r, ok := c.base.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *translatingConn) IsValid() bool {
	if v, ok := c.base.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

func (c *translatingConn) CheckNamedValue(nv *driver.NamedValue) error {
	if ch, ok := c.base.(driver.NamedValueChecker); ok {
		return ch.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}
