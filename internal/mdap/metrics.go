package mdap

import (
	"fmt"
	"sort"
	"sync"
)

// #region step-record

// StepRecord is what one committed step contributes to the metrics.
type StepRecord struct {
	Samples int      // predictor calls issued this step
	Failed  int      // calls that errored or timed out
	Flags   []Reason // candidate-level and decision-level red flags
}

// #endregion

// #region snapshot

// Snapshot is a read-only copy of the metrics.
type Snapshot struct {
	TotalSamples     int            `json:"total_samples"`
	SamplesPerStep   []int          `json:"samples_per_step"`
	TotalRedFlags    int            `json:"total_red_flags"`
	RedFlagsByReason map[Reason]int `json:"red_flags_by_reason"`
	FailedSamples    int            `json:"failed_samples"`
	FlaggedSteps     int            `json:"flagged_steps"`
}

// Steps returns the number of recorded steps.
func (s Snapshot) Steps() int { return len(s.SamplesPerStep) }

// AvgSamplesPerStep returns 0 when no steps were recorded.
func (s Snapshot) AvgSamplesPerStep() float64 {
	if len(s.SamplesPerStep) == 0 {
		return 0
	}
	return float64(s.TotalSamples) / float64(len(s.SamplesPerStep))
}

// Reasons returns the recorded reasons in stable order.
func (s Snapshot) Reasons() []Reason {
	out := make([]Reason, 0, len(s.RedFlagsByReason))
	for r := range s.RedFlagsByReason {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Check verifies both sum invariants.
func (s Snapshot) Check() error {
	sum := 0
	for _, n := range s.SamplesPerStep {
		sum += n
	}
	if sum != s.TotalSamples {
		return fmt.Errorf("samples_per_step sums to %d, total_samples is %d", sum, s.TotalSamples)
	}
	flags := 0
	for _, n := range s.RedFlagsByReason {
		flags += n
	}
	if flags != s.TotalRedFlags {
		return fmt.Errorf("red_flags_by_reason sums to %d, total_red_flags is %d", flags, s.TotalRedFlags)
	}
	return nil
}

// #endregion

// #region metrics

// Metrics accumulates per-run counters. It is owned by one orchestrator;
// concurrent episodes each get their own and are merged afterwards.
type Metrics struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewMetrics returns zeroed metrics.
func NewMetrics() *Metrics {
	return &Metrics{snap: Snapshot{RedFlagsByReason: make(map[Reason]int)}}
}

// RecordStep appends one step.
func (m *Metrics) RecordStep(rec StepRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap.TotalSamples += rec.Samples
	m.snap.SamplesPerStep = append(m.snap.SamplesPerStep, rec.Samples)
	m.snap.FailedSamples += rec.Failed
	stepFlagged := false
	for _, r := range rec.Flags {
		if r == "" || r == ReasonNone {
			continue
		}
		m.snap.RedFlagsByReason[r]++
		m.snap.TotalRedFlags++
		if r.IsDecisionLevel() {
			stepFlagged = true
		}
	}
	if stepFlagged {
		m.snap.FlaggedSteps++
	}
}

// Merge folds another snapshot in, appending its steps after ours.
func (m *Metrics) Merge(other Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap.TotalSamples += other.TotalSamples
	m.snap.SamplesPerStep = append(m.snap.SamplesPerStep, other.SamplesPerStep...)
	m.snap.TotalRedFlags += other.TotalRedFlags
	m.snap.FailedSamples += other.FailedSamples
	m.snap.FlaggedSteps += other.FlaggedSteps
	for r, n := range other.RedFlagsByReason {
		m.snap.RedFlagsByReason[r] += n
	}
}

// Snapshot returns a deep copy; it never mutates the metrics.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.snap
	out.SamplesPerStep = append([]int(nil), m.snap.SamplesPerStep...)
	out.RedFlagsByReason = make(map[Reason]int, len(m.snap.RedFlagsByReason))
	for r, n := range m.snap.RedFlagsByReason {
		out.RedFlagsByReason[r] = n
	}
	return out
}

// #endregion
