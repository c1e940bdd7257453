// Package sqlstore implements [store.Store] on database/sql.
//
// Two dialects are supported:
//   - sqlite: pure Go SQLite (modernc.org/sqlite), the default for local runs
//   - postgres: PostgreSQL through the pgx stdlib driver
//
// The schema is created on Open. Natural keys are enforced with UNIQUE
// constraints and every insert uses ON CONFLICT DO NOTHING followed by a
// select, so concurrent writers converge on one row per key.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/matzehuels/depscanner/pkg/store"
)

// Supported dialects.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

type dialect struct {
	name      string
	driver    string
	numbered  bool   // $1, $2 ... instead of ?
	forUpdate string // row lock suffix for SELECT inside transactions
	types     *strings.Replacer
}

var dialects = map[string]dialect{
	SQLite: {
		name:   SQLite,
		driver: "sqlite",
		types: strings.NewReplacer(
			"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{bool}}", "INTEGER",
			"{{float}}", "REAL",
		),
	},
	Postgres: {
		name:      Postgres,
		driver:    "pgx",
		numbered:  true,
		forUpdate: " FOR UPDATE",
		types: strings.NewReplacer(
			"{{pk}}", "BIGSERIAL PRIMARY KEY",
			"{{bool}}", "BOOLEAN",
			"{{float}}", "DOUBLE PRECISION",
		),
	},
}

// rebind rewrites ? placeholders for dialects that number their parameters.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store is a SQL-backed store.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the database, verifies the connection and migrates the
// schema. For SQLite, dsn is a file path; busy timeout, WAL and foreign keys
// are enabled unless the DSN already carries parameters.
func Open(ctx context.Context, name, dsn string) (*Store, error) {
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported sql dialect: %s", name)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s: connection string is required", d.name)
	}
	if d.name == SQLite && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if d.name == SQLite {
		// SQLite allows one writer; a single connection serializes access.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, s.dialect.types.Replace(stmt)); err != nil {
			return err
		}
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn binds a querier to the dialect's placeholder style.
type conn struct {
	q querier
	d dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}

func (s *Store) conn() conn { return conn{q: s.db, d: s.dialect} }

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(c conn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(conn{q: tx, d: s.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
