package report

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "report"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Workflow, string(run.Status), run.StartedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	var run Run
	var status, startedAt string
	var finishedAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow, status, started_at, finished_at FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Workflow, &status, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run.Status = JobStatus(status)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finishedAt.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]*Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow, status, started_at, finished_at FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var status, startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&run.ID, &run.Workflow, &status, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		run.Status = JobStatus(status)
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if finishedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, finishedAt.String)
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status JobStatus) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", id, "status", status)
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	return err
}

func (s *SQLiteStore) RecordStatus(ctx context.Context, u StatusUpdate) error {
	s.logger.Debug("sql", "op", "insert", "table", "status_updates", "run", u.RunID, "status", u.Status)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_updates (run_id, step, status, minor_status, application_status, source, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.RunID, u.Step, string(u.Status), u.Minor, u.Application, u.Source,
		u.Timestamp.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) ListStatus(ctx context.Context, runID string) ([]StatusUpdate, error) {
	s.logger.Debug("sql", "op", "select", "table", "status_updates", "run", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, step, status, minor_status, application_status, source, timestamp
		 FROM status_updates WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []StatusUpdate
	for rows.Next() {
		var u StatusUpdate
		var status, ts string
		if err := rows.Scan(&u.RunID, &u.Step, &status, &u.Minor, &u.Application, &u.Source, &ts); err != nil {
			return nil, err
		}
		u.Status = JobStatus(status)
		u.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

func (s *SQLiteStore) RecordMerge(ctx context.Context, e MergeEvent) error {
	s.logger.Debug("sql", "op", "insert", "table", "merge_events", "run", e.RunID, "step", e.Step)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO merge_events (run_id, step, new_entries, updated_entries, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.Step, e.New, e.Updated, e.Timestamp.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) ListMerges(ctx context.Context, runID string) ([]MergeEvent, error) {
	s.logger.Debug("sql", "op", "select", "table", "merge_events", "run", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, step, new_entries, updated_entries, timestamp
		 FROM merge_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []MergeEvent
	for rows.Next() {
		var e MergeEvent
		var ts string
		if err := rows.Scan(&e.RunID, &e.Step, &e.New, &e.Updated, &ts); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		events = append(events, e)
	}
	return events, rows.Err()
}
