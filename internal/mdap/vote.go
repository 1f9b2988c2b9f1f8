package mdap

import "sort"

// #region tally

// Tally counts valid candidates per canonical key. It also keeps the first
// candidate seen for each key so the winner can be applied.
type Tally struct {
	counts map[string]int
	first  map[string]Candidate
	total  int
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[string]int), first: make(map[string]Candidate)}
}

// TallyCandidates builds a tally from a batch. Invalid candidates are skipped.
func TallyCandidates(cands []Candidate) *Tally {
	t := NewTally()
	for _, c := range cands {
		t.Add(c)
	}
	return t
}

// Add records one candidate. Returns false if it was invalid or unkeyed.
func (t *Tally) Add(c Candidate) bool {
	if !c.Valid || c.Key == "" {
		return false
	}
	if _, ok := t.first[c.Key]; !ok {
		t.first[c.Key] = c
	}
	t.counts[c.Key]++
	t.total++
	return true
}

// Count returns the votes for key.
func (t *Tally) Count(key string) int { return t.counts[key] }

// Total returns the number of valid votes.
func (t *Tally) Total() int { return t.total }

// Distinct returns the number of distinct keys.
func (t *Tally) Distinct() int { return len(t.counts) }

// Candidate returns the representative candidate for key.
func (t *Tally) Candidate(key string) (Candidate, bool) {
	c, ok := t.first[key]
	return c, ok
}

// Ranked returns keys by count descending, ties broken by key so the order
// never depends on insertion order.
func (t *Tally) Ranked() []string {
	keys := make([]string, 0, len(t.counts))
	for k := range t.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := t.counts[keys[i]], t.counts[keys[j]]
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Counts returns a copy of the key counts.
func (t *Tally) Counts() map[string]int {
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// #endregion

// #region verdict

// Verdict is the aggregator output for one tally.
type Verdict struct {
	Winner      string
	WinnerVotes int
	RunnerUp    int
	Margin      int
	Confident   bool
	Tie         bool
	Empty       bool
}

// Reason maps an inconclusive verdict to its red flag.
func (v Verdict) Reason() Reason {
	switch {
	case v.Confident:
		return ReasonNone
	case v.Empty:
		return ReasonNoValidCandidates
	case v.Tie:
		return ReasonTie
	default:
		return ReasonLowConfidence
	}
}

// Decide applies the margin rule. A shared top count is never confident:
// its margin is 0 regardless of the absolute counts.
func Decide(t *Tally, kMargin int) Verdict {
	if t == nil || t.Total() == 0 {
		return Verdict{Empty: true}
	}
	ranked := t.Ranked()
	v := Verdict{
		Winner:      ranked[0],
		WinnerVotes: t.counts[ranked[0]],
	}
	if len(ranked) > 1 {
		v.RunnerUp = t.counts[ranked[1]]
	}
	v.Margin = v.WinnerVotes - v.RunnerUp
	v.Tie = v.Margin == 0
	v.Confident = !v.Tie && v.Margin >= kMargin
	return v
}

// #endregion
