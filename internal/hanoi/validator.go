package hanoi

import (
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #region validator

// Validator checks a predictor's proposed move and claimed next state
// against the previous state. It is pure.
type Validator struct{}

// NewValidator returns the reference move validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs the checks in order; the first failure decides the reason.
func (v *Validator) Validate(prev any, raw mdap.Raw) mdap.Candidate {
	prop, ok := parseProposal(raw.Text)
	if !ok {
		return mdap.InvalidCandidate(mdap.ReasonMalformedOutput)
	}
	return v.Check(prev, prop.Move, prop.State)
}

// Check validates an already decoded move and claimed state.
func (v *Validator) Check(prev, move, claimed any) mdap.Candidate {
	state, ok := toPegs(prev)
	if !ok {
		return mdap.InvalidCandidate(mdap.ReasonMalformedOutput)
	}
	m, ok := toMove(move)
	if !ok {
		return mdap.InvalidCandidate(mdap.ReasonMalformedOutput)
	}

	// 1. Source must hold a disk, and a named disk must be its top.
	top := state.Top(m.From)
	if top == 0 {
		return mdap.InvalidCandidate(mdap.ReasonIllegalSource)
	}
	if m.Disk != 0 && m.Disk != top {
		return mdap.InvalidCandidate(mdap.ReasonIllegalSource)
	}

	// 2. Destination must exist, differ, and be empty or hold a larger top.
	if m.To < 0 || m.To >= len(state) || m.To == m.From {
		return mdap.InvalidCandidate(mdap.ReasonIllegalDestination)
	}
	if dest := state.Top(m.To); dest != 0 && dest <= top {
		return mdap.InvalidCandidate(mdap.ReasonIllegalDestination)
	}

	// 3. The claimed state must equal the applied move exactly.
	next, _ := state.Apply(m)
	claimedPegs, ok := toPegs(claimed)
	if !ok {
		return mdap.InvalidCandidate(mdap.ReasonMalformedOutput)
	}
	if claimedPegs.String() != next.String() {
		return mdap.InvalidCandidate(mdap.ReasonStateMismatch)
	}

	m.Disk = top
	return mdap.ValidCandidate(next, m)
}

// #endregion
