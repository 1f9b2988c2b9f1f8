package orchestrator

import "github.com/danielpatrickdp/mdap-controller/internal/mdap"

// #region engine

// EscalationEngine decides how many more samples a step should draw.
type EscalationEngine struct {
	cfg mdap.Config
}

// NewEscalationEngine creates an engine for a validated config.
func NewEscalationEngine(cfg mdap.Config) *EscalationEngine {
	return &EscalationEngine{cfg: cfg}
}

// #endregion

// #region next-batch

// NextBatch returns the size of the next batch, or 0 to stop.
// drawn is the number of samples already issued this step and v the verdict
// over everything validated so far. A batch is never smaller than the votes
// the leader still needs, and never crosses MaxCandidates.
func (e *EscalationEngine) NextBatch(drawn int, v mdap.Verdict) int {
	if v.Confident {
		return 0
	}
	remaining := e.cfg.MaxCandidates - drawn
	if remaining <= 0 {
		return 0
	}

	n := e.cfg.Increment()
	if !v.Empty {
		if need := e.cfg.KMargin - v.Margin; need > n {
			n = need
		}
	}
	if n > remaining {
		n = remaining
	}
	return n
}

// #endregion
