package orchestrator

// #region imports
import (
	"context"
	"io"
	"log"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #endregion

// #region episode

// Episode is the outcome of one run from an initial state.
type Episode struct {
	RunID      string
	Initial    any
	Goal       any
	Budget     int
	Trace      []mdap.Decision
	FinalState any
	Solved     bool
	Halted     bool
	Metrics    mdap.Snapshot // this run only
}

// Steps returns the number of committed decisions.
func (e Episode) Steps() int { return len(e.Trace) }

// #endregion

// #region recorder

// Recorder receives committed decisions. Errors are logged, never fatal.
type Recorder interface {
	StartRun(ctx context.Context, runID string, initial, goal any, cfg mdap.Config, budget int) error
	RecordStep(ctx context.Context, d mdap.Decision, round mdap.Round) error
	FinishRun(ctx context.Context, ep Episode) error
}

// #endregion

// #region options

// FallbackPolicy picks the candidate to apply when a step is red-flagged.
// Returning false keeps the current leader.
type FallbackPolicy func(prev any, v mdap.Verdict, t *mdap.Tally) (mdap.Candidate, bool)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger; the default discards.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRecorder attaches a decision recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithFallback overrides the leader on red-flagged steps.
func WithFallback(f FallbackPolicy) Option {
	return func(o *Orchestrator) { o.fallback = f }
}

// WithHaltOn makes the given decision red flags stop the run with ErrHalted.
func WithHaltOn(reasons ...mdap.Reason) Option {
	return func(o *Orchestrator) {
		for _, r := range reasons {
			o.haltOn[r] = true
		}
	}
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// #endregion
