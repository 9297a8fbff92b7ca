// Package migrate applies the embedded profile-store schema.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultMigrationsTable = "schema_migrations"

//go:embed sql/*.sql
var embedded embed.FS

// ErrNoMigrations is returned by Down when nothing has been applied.
var ErrNoMigrations = errors.New("no migrations applied")

// Manager executes SQL migrations from a file system.
type Manager struct {
	db              *sql.DB
	files           fs.FS
	dir             string
	migrationsTable string
	logger          zerolog.Logger
	now             func() time.Time
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithFS reads migrations from dir inside files instead of the embedded set.
func WithFS(files fs.FS, dir string) Option {
	return func(m *Manager) {
		m.files = files
		m.dir = dir
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager constructs a Manager over the embedded migrations.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		files:           embedded,
		dir:             "sql",
		migrationsTable: defaultMigrationsTable,
		logger:          zerolog.Nop(),
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations in name order and returns the names it applied.
func (m *Manager) Up(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	executed, err := m.listExecuted(ctx)
	if err != nil {
		return nil, err
	}
	files, err := m.collect(".up.sql")
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, name := range files {
		if executed[name] {
			continue
		}
		if err := m.apply(ctx, name, func(tx *sql.Tx) error {
			return m.insertRecord(ctx, tx, name)
		}); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", name, err)
		}
		m.logger.Info().Str("migration", name).Msg("migrate: applied")
		applied = append(applied, name)
	}
	return applied, nil
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) (string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return "", err
	}
	history, err := m.history(ctx)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", ErrNoMigrations
	}
	last := history[len(history)-1]
	down := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	if _, err := fs.Stat(m.files, path.Join(m.dir, down)); err != nil {
		return "", fmt.Errorf("missing down migration for %s", last)
	}
	err = m.apply(ctx, down, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, m.migrationsTable), last)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("rollback migration %s: %w", last, err)
	}
	m.logger.Info().Str("migration", last).Msg("migrate: rolled back")
	return last, nil
}

// Status returns applied migrations in the order they ran.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	return m.history(ctx)
}

func (m *Manager) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`create table if not exists %s (
    name text primary key,
    applied_at timestamptz not null default now()
);`, m.migrationsTable)
	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure %s: %w", m.migrationsTable, err)
	}
	return nil
}

// apply runs the statements of name and then record in one transaction.
func (m *Manager) apply(ctx context.Context, name string, record func(*sql.Tx) error) error {
	body, err := fs.ReadFile(m.files, path.Join(m.dir, name))
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(body)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if err := record(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) insertRecord(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, m.migrationsTable),
		name, m.now())
	return err
}

func (m *Manager) listExecuted(ctx context.Context) (map[string]bool, error) {
	names, err := m.history(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(names))
	for _, name := range names {
		result[name] = true
	}
	return result, nil
}

func (m *Manager) history(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, m.migrationsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

func (m *Manager) collect(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(m.files, m.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements splits SQL on semicolons outside single-quoted strings.
func splitStatements(sql string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" && !commentOnly(s) {
			stmts = append(stmts, s)
		}
		current.Reset()
	}
	for _, r := range sql {
		switch {
		case r == '\'':
			inString = !inString
			current.WriteRune(r)
		case r == ';' && !inString:
			current.WriteRune(r)
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return stmts
}

func commentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
