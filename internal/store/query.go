package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/mdap-controller/internal/logging"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #region types
// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID      string
	Config     mdap.Config
	Budget     int
	StartedAt  time.Time
	Finished   bool
	Solved     bool
	Halted     bool
	Steps      int
	Initial    json.RawMessage
	Goal       json.RawMessage
	FinalState json.RawMessage
	Metrics    mdap.Snapshot
}

// DecisionRow is one persisted decision. States and moves stay as JSON.
type DecisionRow struct {
	RunID      string
	Step       int
	State      json.RawMessage
	Move       json.RawMessage
	Key        string
	Votes      int
	Margin     int
	Samples    int
	Valid      int
	Confidence mdap.Confidence
	RedFlag    mdap.Reason
}

// #endregion types

// #region runs
// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT run_id, config_json, budget, started_at, finished_at, solved, halted, steps,
		        initial_json, goal_json, final_json, metrics_json
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns one run header.
func (s *Store) GetRun(runID string) (RunSummary, error) {
	row := s.db.QueryRow(
		`SELECT run_id, config_json, budget, started_at, finished_at, solved, halted, steps,
		        initial_json, goal_json, final_json, metrics_json
		 FROM runs WHERE run_id = ?`, runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return RunSummary{}, fmt.Errorf("run %s not found", runID)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunSummary, error) {
	var (
		r                     RunSummary
		cfgJSON, started      string
		finished              sql.NullString
		initial, goal         string
		finalJSON, metricJSON sql.NullString
	)
	err := sc.Scan(&r.RunID, &cfgJSON, &r.Budget, &started, &finished, &r.Solved, &r.Halted, &r.Steps,
		&initial, &goal, &finalJSON, &metricJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return r, err
		}
		return r, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
		return r, fmt.Errorf("parse config of %s: %w", r.RunID, err)
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	r.Finished = finished.Valid
	r.Initial = json.RawMessage(initial)
	r.Goal = json.RawMessage(goal)
	if finalJSON.Valid {
		r.FinalState = json.RawMessage(finalJSON.String)
	}
	if metricJSON.Valid {
		if err := json.Unmarshal([]byte(metricJSON.String), &r.Metrics); err != nil {
			return r, fmt.Errorf("parse metrics of %s: %w", r.RunID, err)
		}
	}
	return r, nil
}

// #endregion runs

// #region trace
// GetTrace returns the decisions of a run in step order.
func (s *Store) GetTrace(runID string) ([]DecisionRow, error) {
	rows, err := s.db.Query(
		`SELECT run_id, step, state_json, move_json, decision_key, votes, margin, samples, valid, confidence, red_flag
		 FROM decisions WHERE run_id = ? ORDER BY step ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var (
			d                DecisionRow
			state, move, key sql.NullString
			confidence, flag string
		)
		if err := rows.Scan(&d.RunID, &d.Step, &state, &move, &key, &d.Votes, &d.Margin, &d.Samples, &d.Valid, &confidence, &flag); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if state.Valid {
			d.State = json.RawMessage(state.String)
		}
		if move.Valid {
			d.Move = json.RawMessage(move.String)
		}
		d.Key = key.String
		d.Confidence = mdap.Confidence(confidence)
		d.RedFlag = mdap.Reason(flag)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListRounds returns the recorded rounds of a run.
func (s *Store) ListRounds(runID string) ([]logging.RoundEntry, error) {
	return logging.ListRounds(s.db, runID)
}

// #endregion trace
