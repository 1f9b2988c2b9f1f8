package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #region schema
// Schema creates the round_log table. The store runs it with its own migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS round_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	step         INTEGER NOT NULL,
	decision_key TEXT,
	red_flag     TEXT NOT NULL,
	round_json   TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS round_log_run ON round_log(run_id, step);
`

// #endregion schema

// #region log-round
// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// LogRound writes one round to the round_log table.
func LogRound(ex Execer, entry RoundEntry) error {
	return LogRoundContext(context.Background(), ex, entry)
}

// LogRoundContext is LogRound inside the caller's transaction or context.
func LogRoundContext(ctx context.Context, ex Execer, entry RoundEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.RedFlag == "" {
		entry.RedFlag = mdap.ReasonNone
	}
	raw, err := json.Marshal(entry.Round)
	if err != nil {
		return fmt.Errorf("marshal round: %w", err)
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO round_log (run_id, step, decision_key, red_flag, round_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Step,
		nullIfEmpty(entry.Key),
		string(entry.RedFlag),
		string(raw),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log round: %w", err)
	}
	return nil
}

// #endregion log-round

// #region list-rounds
// ListRounds returns the rounds of one run in step order.
func ListRounds(db *sql.DB, runID string) ([]RoundEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, step, decision_key, red_flag, round_json, created_at
		 FROM round_log WHERE run_id = ? ORDER BY step ASC, id ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundEntry
	for rows.Next() {
		var (
			e         RoundEntry
			key       sql.NullString
			flag, raw string
			created   string
		)
		if err := rows.Scan(&e.RunID, &e.Step, &key, &flag, &raw, &created); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Round); err != nil {
			return nil, fmt.Errorf("parse round %s/%d: %w", e.RunID, e.Step, err)
		}
		e.Key = key.String
		e.RedFlag = mdap.Reason(flag)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-rounds

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
