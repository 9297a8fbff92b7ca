package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// SQLExecutor is what repositories need to run marker-tagged queries.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ErrMissingMarker rejects a query that does not start with "--sql <uuid>".
var ErrMissingMarker = errors.New("sql marker missing or invalid")

// SQLRunner strips the "--sql <uuid>" marker from each query, runs it on the
// underlying connection and logs the outcome under the marker.
type SQLRunner struct {
	db     SQLExecutor
	logger zerolog.Logger
}

// NewSQLRunner wraps db, usually a *pgxpool.Pool.
func NewSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{db: db, logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, trimmed, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.db.Exec(ctx, trimmed, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("sql", marker).Dur("took", time.Since(start)).Msg("sql exec failed")
		return tag, err
	}
	r.logger.Debug().Str("sql", marker).Int64("rows", tag.RowsAffected()).Dur("took", time.Since(start)).Msg("sql exec")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, trimmed, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return loggingRow{
		row:    r.db.QueryRow(ctx, trimmed, args...),
		logger: r.logger,
		marker: marker,
		start:  time.Now(),
	}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, trimmed, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.db.Query(ctx, trimmed, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("sql", marker).Dur("took", time.Since(start)).Msg("sql query failed")
		return nil, err
	}
	return loggingRows{Rows: rows, logger: r.logger, marker: marker, start: start}, nil
}

type loggingRow struct {
	row    pgx.Row
	logger zerolog.Logger
	marker string
	start  time.Time
}

func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	switch {
	case err == nil || IsNoRows(err):
		// No rows is an expected outcome for lookups.
		l.logger.Debug().Str("sql", l.marker).Bool("found", err == nil).Dur("took", time.Since(l.start)).Msg("sql query_row")
	default:
		l.logger.Error().Err(err).Str("sql", l.marker).Dur("took", time.Since(l.start)).Msg("sql scan failed")
	}
	return err
}

type loggingRows struct {
	pgx.Rows
	logger zerolog.Logger
	marker string
	start  time.Time
}

func (l loggingRows) Close() {
	l.Rows.Close()
	l.logger.Debug().Str("sql", l.marker).Dur("took", time.Since(l.start)).Msg("sql query")
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

func extractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	marker, body, _ := strings.Cut(trimmed, "\n")
	marker = strings.TrimSpace(marker)
	if !markerRegexp.MatchString(marker) {
		return "", "", ErrMissingMarker
	}
	return strings.TrimPrefix(marker, "--sql "), body, nil
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ SQLExecutor = (*SQLRunner)(nil)
