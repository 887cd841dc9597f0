// Package store is the sqlite-backed history backend.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/vthunder/acuity/internal/ledger"
	"github.com/vthunder/acuity/internal/logging"
	"github.com/vthunder/acuity/internal/types"
)

const (
	DriverCgo    = "sqlite3" // mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// DB stores observations and completed tasks
type DB struct {
	db     *sql.DB
	path   string
	driver string
	now    func() time.Time // range queries are relative to now
}

// Open opens or creates the database at path with the given driver
func Open(driver, path string) (*DB, error) {
	dsn, err := dataSource(driver, path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // one writer at a time

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &DB{db: db, path: path, driver: driver, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	logging.Info("store", "Opened %s (driver=%s)", path, driver)
	return s, nil
}

func dataSource(driver, path string) (string, error) {
	switch driver {
	case DriverCgo:
		return path + "?_journal_mode=WAL&_busy_timeout=5000", nil
	case DriverPureGo:
		return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	default:
		return "", fmt.Errorf("unknown sqlite driver %q (want %s or %s)", driver, DriverCgo, DriverPureGo)
	}
}

// Close closes the database connection
func (s *DB) Close() error {
	return s.db.Close()
}

// Path returns the database file
func (s *DB) Path() string {
	return s.path
}

func (s *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS observations (
		id TEXT PRIMARY KEY,
		ts INTEGER NOT NULL,
		activity TEXT NOT NULL,
		on_task INTEGER,
		task TEXT NOT NULL DEFAULT '',
		fault TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_observations_ts ON observations(ts);

	CREATE TABLE IF NOT EXISTS completed_tasks (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		started_at INTEGER,
		completed_at INTEGER NOT NULL,
		duration_ms INTEGER,
		focused_ms INTEGER NOT NULL DEFAULT 0,
		distracted_ms INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_completed_tasks_at ON completed_tasks(completed_at);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// AppendObservation stores an observation. Redelivery of the same id is a no-op.
func (s *DB) AppendObservation(ctx context.Context, obs types.Observation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO observations (id, ts, activity, on_task, task, fault)
		VALUES (?, ?, ?, ?, ?, ?)`,
		obs.ID, obs.Timestamp.UnixMilli(), obs.Activity, onTaskValue(obs.OnTask), obs.Task, string(obs.Fault))
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// AppendCompletedTask stores a completed task. Redelivery is a no-op.
func (s *DB) AppendCompletedTask(ctx context.Context, ct types.CompletedTask) error {
	var started sql.NullInt64
	if ct.StartedAt != nil {
		started = sql.NullInt64{Int64: ct.StartedAt.UnixMilli(), Valid: true}
	}
	var duration sql.NullInt64
	if ct.DurationMs != nil {
		duration = sql.NullInt64{Int64: *ct.DurationMs, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO completed_tasks
			(id, task, started_at, completed_at, duration_ms, focused_ms, distracted_ms, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ct.ID, ct.Task, started, ct.CompletedAt.UnixMilli(), duration, ct.FocusedMs, ct.DistractedMs, string(ct.Source))
	if err != nil {
		return fmt.Errorf("insert completed task: %w", err)
	}
	return nil
}

// Observations returns observations in the range, newest first (limit <= 0
// means no limit)
func (s *DB) Observations(ctx context.Context, r ledger.Range, limit int) ([]types.Observation, error) {
	query := `SELECT id, ts, activity, on_task, task, fault FROM observations
		WHERE ts >= ? ORDER BY ts DESC, rowid DESC`
	args := []any{rangeStart(r, s.now())}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []types.Observation
	for rows.Next() {
		var (
			obs    types.Observation
			ts     int64
			onTask sql.NullInt64
			fault  string
		)
		if err := rows.Scan(&obs.ID, &ts, &obs.Activity, &onTask, &obs.Task, &fault); err != nil {
			return nil, err
		}
		obs.Timestamp = time.UnixMilli(ts)
		obs.OnTask = onTaskFromValue(onTask)
		obs.Fault = types.Fault(fault)
		out = append(out, obs)
	}
	return out, rows.Err()
}

// CompletedTasks returns completed tasks in the range, newest first
func (s *DB) CompletedTasks(ctx context.Context, r ledger.Range) ([]types.CompletedTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task, started_at, completed_at, duration_ms, focused_ms, distracted_ms, source
		FROM completed_tasks WHERE completed_at >= ?
		ORDER BY completed_at DESC, rowid DESC`, rangeStart(r, s.now()))
	if err != nil {
		return nil, fmt.Errorf("query completed tasks: %w", err)
	}
	defer rows.Close()

	var out []types.CompletedTask
	for rows.Next() {
		var (
			ct          types.CompletedTask
			started     sql.NullInt64
			completedAt int64
			duration    sql.NullInt64
			source      string
		)
		if err := rows.Scan(&ct.ID, &ct.Task, &started, &completedAt, &duration, &ct.FocusedMs, &ct.DistractedMs, &source); err != nil {
			return nil, err
		}
		if started.Valid {
			t := time.UnixMilli(started.Int64)
			ct.StartedAt = &t
		}
		ct.CompletedAt = time.UnixMilli(completedAt)
		if duration.Valid {
			d := duration.Int64
			ct.DurationMs = &d
		}
		ct.Source = types.CompletionSource(source)
		out = append(out, ct)
	}
	return out, rows.Err()
}

func rangeStart(r ledger.Range, now time.Time) int64 {
	start := r.Start(now)
	if start.IsZero() {
		return 0
	}
	return start.UnixMilli()
}

// on_task is stored as 1, 0 or NULL
func onTaskValue(o types.OnTask) sql.NullInt64 {
	switch o {
	case types.OnTaskTrue:
		return sql.NullInt64{Int64: 1, Valid: true}
	case types.OnTaskFalse:
		return sql.NullInt64{Int64: 0, Valid: true}
	default:
		return sql.NullInt64{}
	}
}

func onTaskFromValue(v sql.NullInt64) types.OnTask {
	if !v.Valid {
		return types.OnTaskUnknown
	}
	return types.OnTaskFromBool(v.Int64 == 1)
}
