package replay

import (
	"fmt"

	"github.com/danielpatrickdp/mdap-controller/internal/logging"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #region types
// Recorded is one committed round as it was persisted.
type Recorded struct {
	Round   mdap.Round
	Key     string
	RedFlag mdap.Reason
}

// ReplayResult is the outcome of re-deciding one recorded round.
type ReplayResult struct {
	Step         int
	Decision     mdap.Decision
	RecordedKey  string
	RecordedFlag mdap.Reason
	// Exhausted means the recorded samples ran out before the replay config
	// would have stopped; the decision is a lower bound on what a live run
	// would have drawn.
	Exhausted bool
	Changed   bool
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalSteps      int
	Confident       int
	Flagged         int
	Exhausted       int
	Changed         int
	RecordedSamples int
	ReplayedSamples int
	ByReason        map[mdap.Reason]int
}

// #endregion types

// FromEntries converts persisted round log rows.
func FromEntries(entries []logging.RoundEntry) []Recorded {
	out := make([]Recorded, len(entries))
	for i, e := range entries {
		out[i] = Recorded{Round: e.Round, Key: e.Key, RedFlag: e.RedFlag}
	}
	return out
}

// #region replay
// Replay re-decides every recorded round under cfg. Each round is replayed
// against its own recorded previous state: samples are re-validated in
// arrival order and the tally stops where a live step with cfg would have
// stopped. Calls that failed live are not replayed. Operates entirely
// in-memory.
func Replay(recs []Recorded, cfg mdap.Config, v mdap.Validator, codec mdap.Codec) ([]ReplayResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if v == nil || codec == nil {
		return nil, fmt.Errorf("%w: replay needs a validator and a codec", mdap.ErrInvalidConfig)
	}

	results := make([]ReplayResult, 0, len(recs))
	for _, rec := range recs {
		results = append(results, redecide(rec, cfg, v, codec))
	}
	return results, nil
}

func redecide(rec Recorded, cfg mdap.Config, v mdap.Validator, codec mdap.Codec) ReplayResult {
	prev := rec.Round.Prev
	tally := mdap.NewTally()
	verdict := mdap.Decide(tally, cfg.KMargin)

	used := 0
	for _, s := range rec.Round.Samples {
		if verdict.Confident || used >= cfg.MaxCandidates {
			break
		}
		used++
		c := v.Validate(prev, mdap.Raw{Sample: s.Sample, Text: s.Text})
		if c.Valid {
			c.Key = mdap.CandidateKey(codec, c)
			tally.Add(c)
		}
		verdict = mdap.Decide(tally, cfg.KMargin)
	}

	d := mdap.Decision{
		Step:    rec.Round.Step,
		Key:     verdict.Winner,
		Votes:   verdict.WinnerVotes,
		Margin:  verdict.Margin,
		Samples: used,
		Valid:   tally.Total(),
		State:   prev,
	}
	if verdict.Confident {
		d.Confidence, d.RedFlag = mdap.Confident, mdap.ReasonNone
	} else {
		d.Confidence, d.RedFlag = mdap.Inconclusive, verdict.Reason()
	}
	if c, ok := tally.Candidate(verdict.Winner); ok {
		d.State, d.Move = c.State, c.Move
	}

	recordedFlag := rec.RedFlag
	if recordedFlag == "" {
		recordedFlag = mdap.ReasonNone
	}
	return ReplayResult{
		Step:         d.Step,
		Decision:     d,
		RecordedKey:  rec.Key,
		RecordedFlag: recordedFlag,
		Exhausted:    !verdict.Confident && used < cfg.MaxCandidates,
		Changed:      d.Key != rec.Key || d.RedFlag != recordedFlag,
	}
}

// Summarize computes aggregate stats from replay results.
func Summarize(recs []Recorded, results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalSteps: len(results), ByReason: make(map[mdap.Reason]int)}
	for _, rec := range recs {
		s.RecordedSamples += rec.Round.Issued
	}
	for _, r := range results {
		s.ReplayedSamples += r.Decision.Samples
		if r.Decision.Confidence == mdap.Confident {
			s.Confident++
		} else {
			s.Flagged++
			s.ByReason[r.Decision.RedFlag]++
		}
		if r.Exhausted {
			s.Exhausted++
		}
		if r.Changed {
			s.Changed++
		}
	}
	return s
}

// #endregion replay
