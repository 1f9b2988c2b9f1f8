package logging

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func sampleRound(step int) mdap.Round {
	return mdap.Round{
		RunID:  "run-1",
		Step:   step,
		Prev:   [][]int{{3, 2, 1}, {}, {}},
		Config: mdap.Config{KMargin: 2, MaxCandidates: 6},
		Issued: 3,
		Failed: 1,
		Samples: []mdap.RoundSample{
			{Sample: 0, Text: `{"move":[1,0,1]}`, Valid: true, Key: "a"},
			{Sample: 2, Text: "garbage", Reason: mdap.ReasonMalformedOutput},
		},
	}
}

// #endregion helpers

// #region log-round-tests
func TestLogRound_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := RoundEntry{
		RunID:     "run-1",
		Step:      1,
		Key:       "a",
		RedFlag:   mdap.ReasonLowConfidence,
		Round:     sampleRound(1),
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogRound(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM round_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var flag string
	db.QueryRow("SELECT red_flag FROM round_log").Scan(&flag)
	if flag != "low_confidence" {
		t.Errorf("expected red_flag 'low_confidence', got %q", flag)
	}
}

func TestLogRound_DefaultsFlagAndTime(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogRound(db, RoundEntry{RunID: "run-2", Step: 1, Round: sampleRound(1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var flag, created string
	var key sql.NullString
	db.QueryRow("SELECT red_flag, decision_key, created_at FROM round_log").Scan(&flag, &key, &created)
	if flag != "none" {
		t.Errorf("expected red_flag 'none', got %q", flag)
	}
	if key.Valid {
		t.Errorf("expected NULL decision_key, got %q", key.String)
	}
	if _, err := time.Parse(time.RFC3339Nano, created); err != nil {
		t.Errorf("created_at not RFC3339: %q", created)
	}
}

func TestLogRound_MissingTable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := LogRound(db, RoundEntry{RunID: "x", Step: 1}); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestLogRound_InsideTransaction(t *testing.T) {
	db := setupDB(t)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := LogRound(tx, RoundEntry{RunID: "run-tx", Step: 1, Round: sampleRound(1)}); err != nil {
		t.Fatalf("LogRound: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM round_log WHERE run_id = 'run-tx'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("rolled back round still stored: %d rows", n)
	}
}

// #endregion log-round-tests

// #region list-rounds-tests
func TestListRounds_OrderAndContent(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	for _, step := range []int{2, 1, 3} {
		if err := LogRound(db, RoundEntry{RunID: "run-1", Step: step, Key: "a", Round: sampleRound(step)}); err != nil {
			t.Fatalf("log step %d: %v", step, err)
		}
	}
	LogRound(db, RoundEntry{RunID: "other", Step: 1, Round: sampleRound(1)})

	got, err := ListRounds(db, "run-1")
	if err != nil {
		t.Fatalf("ListRounds: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rounds, got %d", len(got))
	}
	for i, e := range got {
		if e.Step != i+1 || e.Round.Step != i+1 {
			t.Errorf("round %d out of order: step %d", i, e.Step)
		}
	}
	r := got[0].Round
	if r.Config.KMargin != 2 || r.Issued != 3 || r.Failed != 1 {
		t.Errorf("round fields lost: %+v", r)
	}
	if len(r.Samples) != 2 || r.Samples[1].Reason != mdap.ReasonMalformedOutput {
		t.Errorf("samples lost: %+v", r.Samples)
	}
	if _, ok := r.Prev.([]any); !ok {
		t.Errorf("prev state should decode as []any, got %T", r.Prev)
	}
}

func TestListRounds_UnknownRun(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	got, err := ListRounds(db, "missing")
	if err != nil {
		t.Fatalf("ListRounds: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no rounds, got %d", len(got))
	}
}

// #endregion list-rounds-tests
