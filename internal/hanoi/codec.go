package hanoi

import "fmt"

// #region codec

// Codec canonicalizes puzzle states and moves for vote bucketing.
type Codec struct{}

// Canonical returns the normalized state, or false if v is not a state.
func (Codec) Canonical(v any) (Pegs, bool) {
	return toPegs(v)
}

// StateKey never fails: unrecognized values get a key no real state can have.
func (Codec) StateKey(state any) string {
	p, ok := toPegs(state)
	if !ok {
		return fmt.Sprintf("invalid:%v", state)
	}
	return p.String()
}

// MoveKey ignores the disk label since the source peg determines it.
func (Codec) MoveKey(move any) string {
	m, ok := toMove(move)
	if !ok {
		return fmt.Sprintf("invalid:%v", move)
	}
	return fmt.Sprintf("%d->%d", m.From, m.To)
}

// Equal compares two states after normalization. Unrecognized values are
// never equal to anything.
func (c Codec) Equal(a, b any) bool {
	pa, ok := toPegs(a)
	if !ok {
		return false
	}
	pb, ok := toPegs(b)
	if !ok {
		return false
	}
	return pa.String() == pb.String()
}

// #endregion
