package mdap

// #region imports
import (
	"context"
	"errors"
)

// #endregion

// #region errors

var (
	// ErrInvalidConfig wraps every configuration error. Returned before any sampling.
	ErrInvalidConfig = errors.New("invalid mdap config")

	// ErrHalted is returned when a red flag the caller marked as fatal is raised.
	ErrHalted = errors.New("run halted on red flag")
)

// #endregion

// #region reason

// Reason is a red-flag reason code. Candidate-level reasons come from the
// domain validator; decision-level reasons come from the aggregator.
type Reason string

const (
	ReasonNone Reason = "none"

	// candidate-level
	ReasonIllegalSource      Reason = "illegal_source"
	ReasonIllegalDestination Reason = "illegal_destination"
	ReasonStateMismatch      Reason = "state_mismatch"
	ReasonMalformedOutput    Reason = "malformed_output"

	// decision-level
	ReasonLowConfidence     Reason = "low_confidence"
	ReasonTie               Reason = "tie"
	ReasonNoValidCandidates Reason = "no_valid_candidates"
)

// IsDecisionLevel reports whether r is raised by aggregation rather than validation.
func (r Reason) IsDecisionLevel() bool {
	switch r {
	case ReasonLowConfidence, ReasonTie, ReasonNoValidCandidates:
		return true
	}
	return false
}

// #endregion

// #region confidence

// Confidence is the outcome class of a decision round.
type Confidence string

const (
	Confident    Confidence = "confident"
	Inconclusive Confidence = "inconclusive"
)

// #endregion

// #region context

// Context is the opaque payload handed to the predictor for one decision point.
type Context struct {
	RunID        string
	Step         int
	Sample       int // set by the sampler per call
	State        any
	PreviousMove any
	Goal         any
}

// #endregion

// #region raw

// Raw is one predictor response before validation.
type Raw struct {
	Sample int    // 0-based index within the step
	Text   string // predictor output, possibly malformed
}

// #endregion

// #region candidate

// Candidate is a validated sample. Exactly one of the two shapes holds:
// Valid with State, Move and Key set, or !Valid with Reason set.
type Candidate struct {
	Valid  bool
	State  any
	Move   any
	Key    string
	Reason Reason
}

// ValidCandidate builds the valid shape. Key is filled in by the orchestrator.
func ValidCandidate(state, move any) Candidate {
	return Candidate{Valid: true, State: state, Move: move, Reason: ReasonNone}
}

// InvalidCandidate builds the invalid shape.
func InvalidCandidate(reason Reason) Candidate {
	return Candidate{Reason: reason}
}

// #endregion

// #region decision

// Decision is the committed outcome of one step.
type Decision struct {
	Step       int
	State      any
	Move       any
	Key        string
	Votes      int
	Margin     int
	Samples    int
	Valid      int
	Confidence Confidence
	RedFlag    Reason
}

// Flagged reports whether the decision carries a red flag.
func (d Decision) Flagged() bool {
	return d.RedFlag != "" && d.RedFlag != ReasonNone
}

// #endregion

// #region interfaces

// Predictor is the generative model boundary. A returned error counts as a
// missing candidate, never as a step failure.
type Predictor interface {
	Predict(ctx context.Context, in Context) (string, error)
}

// PredictorFunc adapts a plain function to Predictor.
type PredictorFunc func(ctx context.Context, in Context) (string, error)

// Predict calls f.
func (f PredictorFunc) Predict(ctx context.Context, in Context) (string, error) {
	return f(ctx, in)
}

// Codec canonicalizes domain values into comparable keys.
// Implementations must be deterministic, total and side-effect free.
type Codec interface {
	StateKey(state any) string
	MoveKey(move any) string
	Equal(a, b any) bool
}

// Validator checks a raw predictor output against the previous state.
// Must be pure; malformed output is an invalid candidate, not an error.
type Validator interface {
	Validate(prev any, raw Raw) Candidate
}

// CandidateKey is the vote bucket for a valid candidate.
func CandidateKey(codec Codec, c Candidate) string {
	return codec.StateKey(c.State) + "|" + codec.MoveKey(c.Move)
}

// #endregion

// #region round

// RoundSample is one delivered response and its verdict.
type RoundSample struct {
	Sample int    `json:"sample"`
	Text   string `json:"text"`
	Valid  bool   `json:"valid"`
	Key    string `json:"key,omitempty"`
	Reason Reason `json:"reason,omitempty"`
}

// Round is the full evidence behind one decision, kept for provenance and replay.
type Round struct {
	RunID   string        `json:"run_id"`
	Step    int           `json:"step"`
	Prev    any           `json:"prev_state"`
	Config  Config        `json:"config"`
	Issued  int           `json:"issued"`
	Failed  int           `json:"failed"`
	Samples []RoundSample `json:"samples"`
}

// #endregion
