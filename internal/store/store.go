package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/mdap-controller/internal/calibrate"
	"github.com/danielpatrickdp/mdap-controller/internal/logging"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
	"github.com/danielpatrickdp/mdap-controller/internal/orchestrator"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	initial_json  TEXT NOT NULL,
	goal_json     TEXT NOT NULL,
	config_json   TEXT NOT NULL,
	budget        INTEGER NOT NULL,
	started_at    TEXT NOT NULL,
	finished_at   TEXT,
	solved        INTEGER NOT NULL DEFAULT 0,
	halted        INTEGER NOT NULL DEFAULT 0,
	steps         INTEGER NOT NULL DEFAULT 0,
	final_json    TEXT,
	metrics_json  TEXT
);

CREATE TABLE IF NOT EXISTS decisions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	step          INTEGER NOT NULL,
	state_json    TEXT,
	move_json     TEXT,
	decision_key  TEXT,
	votes         INTEGER NOT NULL,
	margin        INTEGER NOT NULL,
	samples       INTEGER NOT NULL,
	valid         INTEGER NOT NULL,
	confidence    TEXT NOT NULL,
	red_flag      TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	UNIQUE (run_id, step),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS calibration_results (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id        TEXT NOT NULL,
	domain          TEXT NOT NULL,
	k_margin        INTEGER NOT NULL,
	max_candidates  INTEGER NOT NULL,
	batch_size      INTEGER NOT NULL,
	step_budget     INTEGER NOT NULL,
	episodes        INTEGER NOT NULL,
	solved          INTEGER NOT NULL,
	success_rate    REAL NOT NULL,
	avg_samples     REAL NOT NULL,
	efficiency      REAL NOT NULL,
	result_json     TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS calibration_batch ON calibration_results(batch_id);
`

// #endregion schema

// #region store-struct
// Store persists runs, decisions, rounds and calibration tables in SQLite.
// It implements orchestrator.Recorder.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

var _ orchestrator.Recorder = (*Store)(nil)

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer; also keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if _, err := db.Exec(logging.Schema); err != nil {
		return nil, fmt.Errorf("migrate round_log: %w", err)
	}
	return &Store{db: db, logger: log.New(io.Discard, "", 0)}, nil
}

// SetLogger enables [STORE] log lines.
func (s *Store) SetLogger(l *log.Logger) { s.logger = l }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region recorder
// StartRun inserts the run header.
func (s *Store) StartRun(ctx context.Context, runID string, initial, goal any, cfg mdap.Config, budget int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, initial_json, goal_json, config_json, budget, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, mustJSON(initial), mustJSON(goal), mustJSON(cfg), budget, now(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordStep stores the decision and its round in one transaction.
func (s *Store) RecordStep(ctx context.Context, d mdap.Decision, round mdap.Round) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO decisions (run_id, step, state_json, move_json, decision_key, votes, margin, samples, valid, confidence, red_flag, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		round.RunID, d.Step, mustJSON(d.State), nullJSON(d.Move), nullIfEmpty(d.Key),
		d.Votes, d.Margin, d.Samples, d.Valid, string(d.Confidence), string(d.RedFlag), now(),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	err = logging.LogRoundContext(ctx, tx, logging.RoundEntry{
		RunID:   round.RunID,
		Step:    d.Step,
		Key:     d.Key,
		RedFlag: d.RedFlag,
		Round:   round,
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FinishRun stores the outcome of the episode.
func (s *Store) FinishRun(ctx context.Context, ep orchestrator.Episode) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, solved = ?, halted = ?, steps = ?, final_json = ?, metrics_json = ?
		 WHERE run_id = ?`,
		now(), ep.Solved, ep.Halted, ep.Steps(), mustJSON(ep.FinalState), mustJSON(ep.Metrics), ep.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: not started", ep.RunID)
	}
	s.logger.Printf("[STORE] run=%s solved=%v steps=%d", ep.RunID, ep.Solved, ep.Steps())
	return nil
}

// #endregion recorder

// #region calibration
// SaveCalibration stores a calibration table.
func (s *Store) SaveCalibration(results []calibrate.Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	for _, r := range results {
		_, err := tx.Exec(
			`INSERT INTO calibration_results (batch_id, domain, k_margin, max_candidates, batch_size, step_budget, episodes, solved, success_rate, avg_samples, efficiency, result_json, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.BatchID, r.Domain, r.Config.KMargin, r.Config.MaxCandidates, r.Config.Increment(), r.StepBudget,
			r.Episodes, r.Solved, r.SuccessRate, r.AvgSamplesPerEpisode, r.Efficiency, mustJSON(r), ts,
		)
		if err != nil {
			return fmt.Errorf("insert calibration result: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Printf("[STORE] saved %d calibration results", len(results))
	return nil
}

// ListCalibration returns the results of one batch in insertion order. An
// empty batchID selects the most recent batch.
func (s *Store) ListCalibration(batchID string) ([]calibrate.Result, error) {
	if batchID == "" {
		err := s.db.QueryRow(
			`SELECT batch_id FROM calibration_results ORDER BY id DESC LIMIT 1`,
		).Scan(&batchID)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("latest batch: %w", err)
		}
	}

	rows, err := s.db.Query(
		`SELECT result_json FROM calibration_results WHERE batch_id = ? ORDER BY id ASC`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query calibration: %w", err)
	}
	defer rows.Close()

	var out []calibrate.Result
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan calibration: %w", err)
		}
		var r calibrate.Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("parse calibration: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion calibration

// #region helpers
func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(v))
	}
	return string(b)
}

func nullJSON(v any) interface{} {
	if v == nil {
		return nil
	}
	return mustJSON(v)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
