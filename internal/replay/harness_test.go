package replay

import (
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/mdap-controller/internal/hanoi"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

func loadSession(t *testing.T) []Recorded {
	t.Helper()
	f, err := LoadFixture(filepath.Join("testdata", "hanoi_session.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	return f.Recorded()
}

func replayWith(t *testing.T, cfg mdap.Config) []ReplayResult {
	t.Helper()
	results, err := Replay(loadSession(t), cfg, hanoi.NewValidator(), hanoi.Codec{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	return results
}

// 1. Lower k: every step confident after one valid sample, tie disappears.
func TestReplay_LowerMarginStopsEarlier(t *testing.T) {
	results := replayWith(t, mdap.Config{KMargin: 1, MaxCandidates: 6})

	wantSamples := []int{1, 1, 1}
	for i, r := range results {
		if r.Decision.Confidence != mdap.Confident {
			t.Errorf("step %d: expected confident, got %s", r.Step, r.Decision.RedFlag)
		}
		if r.Decision.Samples != wantSamples[i] {
			t.Errorf("step %d: expected %d samples, got %d", r.Step, wantSamples[i], r.Decision.Samples)
		}
	}
	if !results[2].Changed {
		t.Error("step 3 should change from tie to a confident decision")
	}
	if results[0].Changed || results[1].Changed {
		t.Error("steps 1 and 2 keep their recorded keys")
	}
}

// 2. Higher k than the evidence supports: recorded samples run out.
func TestReplay_HigherMarginExhaustsEvidence(t *testing.T) {
	results := replayWith(t, mdap.Config{KMargin: 3, MaxCandidates: 9})

	r := results[0]
	if !r.Exhausted {
		t.Error("step 1 has only 2 samples and should be exhausted under k=3")
	}
	if r.Decision.RedFlag != mdap.ReasonLowConfidence {
		t.Errorf("expected low_confidence, got %s", r.Decision.RedFlag)
	}
	if r.Decision.Key != r.RecordedKey {
		t.Errorf("leader should still be the recorded winner, got %q", r.Decision.Key)
	}
	if results[2].Decision.RedFlag != mdap.ReasonTie {
		t.Errorf("step 3 stays tied, got %s", results[2].Decision.RedFlag)
	}
}

// 3. Lower cap truncates the stream.
func TestReplay_LowerCapTruncates(t *testing.T) {
	results := replayWith(t, mdap.Config{KMargin: 2, MaxCandidates: 3})

	r := results[2]
	if r.Decision.Samples != 3 {
		t.Errorf("expected 3 samples at cap, got %d", r.Decision.Samples)
	}
	if r.Exhausted {
		t.Error("cap reached is not exhaustion")
	}
	// C, D, C: C leads by one
	if r.Decision.RedFlag != mdap.ReasonLowConfidence || r.Decision.Key != "[3][][2,1]|1->2" {
		t.Errorf("expected low_confidence on C, got %s %q", r.Decision.RedFlag, r.Decision.Key)
	}
	if r.Decision.Move == nil {
		t.Error("replayed decision should carry the leader's move")
	}
}

// 4. Invalid config is rejected before replaying anything.
func TestReplay_InvalidConfig(t *testing.T) {
	_, err := Replay(loadSession(t), mdap.Config{KMargin: 4, MaxCandidates: 2}, hanoi.NewValidator(), hanoi.Codec{})
	if err == nil {
		t.Fatal("expected config error")
	}
	if _, err := Replay(nil, mdap.DefaultConfig(), nil, hanoi.Codec{}); err == nil {
		t.Fatal("expected error for missing validator")
	}
}

// 5. Summary counts.
func TestSummarize(t *testing.T) {
	recs := loadSession(t)
	results, err := Replay(recs, mdap.Config{KMargin: 2, MaxCandidates: 6}, hanoi.NewValidator(), hanoi.Codec{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	s := Summarize(recs, results)

	if s.TotalSteps != 3 || s.Confident != 2 || s.Flagged != 1 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.ByReason[mdap.ReasonTie] != 1 {
		t.Errorf("expected one tie, got %v", s.ByReason)
	}
	if s.RecordedSamples != 12 {
		t.Errorf("expected 12 recorded samples, got %d", s.RecordedSamples)
	}
	if s.ReplayedSamples != 11 {
		t.Errorf("expected 11 replayed samples, got %d", s.ReplayedSamples)
	}
	if s.Changed != 0 {
		t.Errorf("same config changed %d steps", s.Changed)
	}
}
