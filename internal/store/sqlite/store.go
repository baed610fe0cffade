package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"planes_maxsum/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	start_every INTEGER NOT NULL,
	iterations INTEGER NOT NULL,
	planes INTEGER NOT NULL DEFAULT 0,
	tasks INTEGER NOT NULL DEFAULT 0,
	ticks INTEGER NOT NULL DEFAULT 0,
	total_cost REAL NULL,
	created_at INTEGER NOT NULL,
	finished_at INTEGER NULL
);

CREATE TABLE IF NOT EXISTS decision_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	tick INTEGER NOT NULL,
	task_id TEXT NOT NULL DEFAULT '',
	plane_id TEXT NOT NULL,
	action TEXT NOT NULL,
	reason TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_log_run ON decision_log(run_id, tick);
CREATE INDEX IF NOT EXISTS idx_decision_log_task ON decision_log(run_id, task_id, tick);

CREATE TABLE IF NOT EXISTS assignments (
	run_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	plane_id TEXT NOT NULL,
	cost REAL NOT NULL,
	PRIMARY KEY(run_id, task_id),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`

var ErrRunNotFound = errors.New("run not found")

// Run is the summary row of one simulation.
type Run struct {
	ID         string
	StartEvery int64
	Iterations int64
	Planes     int
	Tasks      int
	Ticks      int64
	TotalCost  *float64
	CreatedAt  time.Time
	FinishedAt *time.Time
}

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Planes journal from concurrent phases; one connection keeps writers
	// from tripping over each other.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs(id, start_every, iterations, planes, tasks, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartEvery, run.Iterations, run.Planes, run.Tasks, run.CreatedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun stores the final assignment table of a run and closes it.
func (s *Store) FinishRun(ctx context.Context, runID string, ticks int64, assignments []domain.Assignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total float64
	for _, a := range assignments {
		total += a.Cost
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO assignments(run_id, task_id, plane_id, cost) VALUES(?, ?, ?, ?)
			ON CONFLICT(run_id, task_id) DO UPDATE SET plane_id = excluded.plane_id, cost = excluded.cost`,
			runID, a.TaskID, a.PlaneID, a.Cost,
		); err != nil {
			return fmt.Errorf("save assignment %s: %w", a.TaskID, err)
		}
	}
	res, err := tx.ExecContext(
		ctx,
		`UPDATE runs SET ticks = ?, total_cost = ?, finished_at = ? WHERE id = ?`,
		ticks, total, time.Now().UTC().Unix(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, start_every, iterations, planes, tasks, ticks, total_cost, created_at, finished_at
		FROM runs WHERE id = ?`,
		runID,
	)
	var (
		run       Run
		total     sql.NullFloat64
		createdAt int64
		finished  sql.NullInt64
	)
	err := row.Scan(&run.ID, &run.StartEvery, &run.Iterations, &run.Planes, &run.Tasks, &run.Ticks, &total, &createdAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	if total.Valid {
		run.TotalCost = &total.Float64
	}
	run.CreatedAt = unixToTime(createdAt)
	run.FinishedAt = int64ToTimePtr(finished)
	return run, nil
}

func (s *Store) ListAssignments(ctx context.Context, runID string) ([]domain.Assignment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT task_id, plane_id, cost FROM assignments WHERE run_id = ? ORDER BY task_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var result []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.TaskID, &a.PlaneID, &a.Cost); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return result, nil
}

func (s *Store) LogDecision(ctx context.Context, entry domain.DecisionLog) error {
	payload := string(entry.Payload)
	if payload == "" {
		payload = "{}"
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO decision_log(run_id, tick, task_id, plane_id, action, reason, payload, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.Tick, entry.TaskID, entry.PlaneID, entry.Action, entry.Reason, payload, createdAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// ListTaskDecisions returns the decisions about one task of a run, oldest
// first.
func (s *Store) ListTaskDecisions(ctx context.Context, runID string, taskID domain.TaskID, limit int) ([]domain.DecisionLog, error) {
	if limit <= 0 {
		limit = 300
	}
	return s.listDecisions(
		ctx,
		`SELECT id, run_id, tick, task_id, plane_id, action, reason, payload, created_at
		FROM decision_log
		WHERE run_id = ? AND task_id = ?
		ORDER BY tick, id
		LIMIT ?`,
		runID, taskID, limit,
	)
}

// ListRunDecisions returns every decision of a run, oldest first.
func (s *Store) ListRunDecisions(ctx context.Context, runID string, limit int) ([]domain.DecisionLog, error) {
	if limit <= 0 {
		limit = 1000
	}
	return s.listDecisions(
		ctx,
		`SELECT id, run_id, tick, task_id, plane_id, action, reason, payload, created_at
		FROM decision_log
		WHERE run_id = ?
		ORDER BY tick, id
		LIMIT ?`,
		runID, limit,
	)
}

func (s *Store) listDecisions(ctx context.Context, query string, args ...any) ([]domain.DecisionLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var result []domain.DecisionLog
	for rows.Next() {
		var item domain.DecisionLog
		var payload string
		var createdAt int64
		if err := rows.Scan(&item.ID, &item.RunID, &item.Tick, &item.TaskID, &item.PlaneID, &item.Action, &item.Reason, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		item.Payload = []byte(payload)
		item.CreatedAt = unixToTime(createdAt)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return result, nil
}

func int64ToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid || v.Int64 <= 0 {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func unixToTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}
