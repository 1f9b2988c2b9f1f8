// Package hanoi is the reference domain: a three-peg disk transfer puzzle used
// to calibrate the voting protocol. Pegs are listed bottom first, so the last
// element of a peg is its top disk.
package hanoi

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// #region types

// Pegs is a puzzle state. Disk sizes are 1..n, larger numbers are larger disks.
type Pegs [][]int

// Move transfers the top disk of From onto To. Disk 0 means unspecified.
type Move struct {
	Disk int `json:"disk"`
	From int `json:"from"`
	To   int `json:"to"`
}

// String renders the move as "disk d: a->b".
func (m Move) String() string {
	if m.Disk == 0 {
		return fmt.Sprintf("%d->%d", m.From, m.To)
	}
	return fmt.Sprintf("disk %d: %d->%d", m.Disk, m.From, m.To)
}

// MarshalJSON emits the [disk, from, to] triple predictors are prompted with.
func (m Move) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{m.Disk, m.From, m.To})
}

// #endregion

// #region constructors

// Tower returns n disks stacked on peg, out of pegs total.
func Tower(n, peg, pegs int) Pegs {
	p := make(Pegs, pegs)
	for i := range p {
		p[i] = []int{}
	}
	for d := n; d >= 1; d-- {
		p[peg] = append(p[peg], d)
	}
	return p
}

// Clone deep-copies the state.
func (p Pegs) Clone() Pegs {
	out := make(Pegs, len(p))
	for i, peg := range p {
		out[i] = append([]int{}, peg...)
	}
	return out
}

// #endregion

// #region accessors

// Top returns the top disk of peg i, or 0 if it is empty or out of range.
func (p Pegs) Top(i int) int {
	if i < 0 || i >= len(p) || len(p[i]) == 0 {
		return 0
	}
	return p[i][len(p[i])-1]
}

// Disks counts all disks.
func (p Pegs) Disks() int {
	n := 0
	for _, peg := range p {
		n += len(peg)
	}
	return n
}

// PegOf returns the peg holding disk d, or -1.
func (p Pegs) PegOf(d int) int {
	for i, peg := range p {
		for _, x := range peg {
			if x == d {
				return i
			}
		}
	}
	return -1
}

// Wellformed reports whether every peg is strictly decreasing bottom to top
// and the disks are exactly 1..n.
func (p Pegs) Wellformed() bool {
	seen := make(map[int]bool)
	for _, peg := range p {
		for i, d := range peg {
			if d < 1 || seen[d] {
				return false
			}
			if i > 0 && peg[i-1] <= d {
				return false
			}
			seen[d] = true
		}
	}
	for d := 1; d <= len(seen); d++ {
		if !seen[d] {
			return false
		}
	}
	return true
}

// Apply performs m without legality checks beyond bounds.
func (p Pegs) Apply(m Move) (Pegs, bool) {
	if m.From < 0 || m.From >= len(p) || m.To < 0 || m.To >= len(p) || len(p[m.From]) == 0 {
		return nil, false
	}
	next := p.Clone()
	d := next[m.From][len(next[m.From])-1]
	next[m.From] = next[m.From][:len(next[m.From])-1]
	next[m.To] = append(next[m.To], d)
	return next, true
}

// LegalMoves lists every legal move from p.
func (p Pegs) LegalMoves() []Move {
	var out []Move
	for from := range p {
		d := p.Top(from)
		if d == 0 {
			continue
		}
		for to := range p {
			if to == from {
				continue
			}
			if t := p.Top(to); t == 0 || t > d {
				out = append(out, Move{Disk: d, From: from, To: to})
			}
		}
	}
	return out
}

// String renders the canonical key form, e.g. "[3,2,1][][]".
func (p Pegs) String() string {
	var b strings.Builder
	for _, peg := range p {
		b.WriteByte('[')
		for i, d := range peg {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(d))
		}
		b.WriteByte(']')
	}
	return b.String()
}

// #endregion

// #region conversion

// toPegs normalizes any decoded representation into Pegs. Nested lists inside
// a peg are flattened and a peg written top first is reversed.
func toPegs(v any) (Pegs, bool) {
	switch s := v.(type) {
	case Pegs:
		return normalizePegs(s), true
	case [][]int:
		return normalizePegs(Pegs(s)), true
	case []any:
		out := make(Pegs, 0, len(s))
		for _, pv := range s {
			var peg []int
			if !flattenInts(pv, &peg) {
				return nil, false
			}
			out = append(out, peg)
		}
		return normalizePegs(out), true
	}
	return nil, false
}

func normalizePegs(p Pegs) Pegs {
	out := make(Pegs, len(p))
	for i, peg := range p {
		c := append([]int{}, peg...)
		if increasing(c) {
			for l, r := 0, len(c)-1; l < r; l, r = l+1, r-1 {
				c[l], c[r] = c[r], c[l]
			}
		}
		out[i] = c
	}
	return out
}

func increasing(peg []int) bool {
	if len(peg) < 2 {
		return false
	}
	for i := 1; i < len(peg); i++ {
		if peg[i] <= peg[i-1] {
			return false
		}
	}
	return true
}

func flattenInts(v any, out *[]int) bool {
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			if !flattenInts(e, out) {
				return false
			}
		}
		return true
	case []int:
		*out = append(*out, x...)
		return true
	case float64:
		if x != math.Trunc(x) {
			return false
		}
		*out = append(*out, int(x))
		return true
	case int:
		*out = append(*out, x)
		return true
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return false
		}
		*out = append(*out, int(n))
		return true
	}
	return false
}

// toMove normalizes [disk, from, to], [from, to], {"disk","from","to"} or a Move.
func toMove(v any) (Move, bool) {
	switch m := v.(type) {
	case Move:
		return m, true
	case *Move:
		if m == nil {
			return Move{}, false
		}
		return *m, true
	case []any:
		var ints []int
		if !flattenInts(m, &ints) {
			return Move{}, false
		}
		switch len(ints) {
		case 3:
			return Move{Disk: ints[0], From: ints[1], To: ints[2]}, true
		case 2:
			return Move{From: ints[0], To: ints[1]}, true
		}
	case []int:
		return toMove(intsToAny(m))
	case map[string]any:
		var mv Move
		var ok bool
		if mv.From, ok = intField(m, "from", "from_peg", "source"); !ok {
			return Move{}, false
		}
		if mv.To, ok = intField(m, "to", "to_peg", "destination"); !ok {
			return Move{}, false
		}
		mv.Disk, _ = intField(m, "disk", "disk_id")
		return mv, true
	}
	return Move{}, false
}

func intsToAny(in []int) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func intField(m map[string]any, names ...string) (int, bool) {
	for _, n := range names {
		if v, ok := m[n]; ok {
			var ints []int
			if flattenInts(v, &ints) && len(ints) == 1 {
				return ints[0], true
			}
		}
	}
	return 0, false
}

// #endregion
