package calibrate

import (
	"bytes"
	"context"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/mdap-controller/internal/hanoi"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
	"github.com/danielpatrickdp/mdap-controller/internal/orchestrator"
	"github.com/danielpatrickdp/mdap-controller/internal/sampler"
)

// #region helpers

func oracleFactory(mdap.Config, int) mdap.Predictor { return hanoi.Oracle{} }

func noisyFactory(rate float64) PredictorFactory {
	return func(cfg mdap.Config, episode int) mdap.Predictor {
		return &hanoi.Noisy{ErrorRate: rate, Seed: int64(episode)}
	}
}

func quietOpts(concurrency int) Options {
	return Options{Concurrency: concurrency, Sampler: sampler.Options{Concurrency: 2}}
}

// serialOpts issues one predictor call at a time, so early stopping sees
// samples in index order and seeded runs repeat exactly.
func serialOpts(concurrency int) Options {
	return Options{Concurrency: concurrency, Sampler: sampler.Options{Concurrency: 1}}
}

// #endregion

// #region calibrate

func TestCalibrate_PerfectPredictor(t *testing.T) {
	var buf bytes.Buffer
	opts := quietOpts(4)
	opts.Logger = log.New(&buf, "", 0)
	h, err := NewHanoiCalibrator(3, oracleFactory, opts)
	require.NoError(t, err)

	grid := []mdap.Config{{KMargin: 1, MaxCandidates: 3}, {KMargin: 2, MaxCandidates: 4}}
	results, err := h.Calibrate(context.Background(), grid, 5, 20)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i, r := range results {
		assert.Equal(t, grid[i], r.Config)
		assert.Equal(t, 5, r.Episodes)
		assert.Equal(t, 1.0, r.SuccessRate)
		assert.Equal(t, 7.0, r.AvgStepsSolved)
		assert.Equal(t, 1.0, r.Efficiency)
		assert.Empty(t, r.RedFlagRates)
		require.NoError(t, r.Metrics.Check())
	}
	// unanimous agreement stops after exactly k samples per step
	assert.Equal(t, 7.0, results[0].AvgSamplesPerEpisode)
	assert.Equal(t, 14.0, results[1].AvgSamplesPerEpisode)
	assert.Equal(t, results[0].BatchID, results[1].BatchID)
	assert.Equal(t, "hanoi-3", results[0].Domain)
	assert.Contains(t, buf.String(), "[CALIB]")
}

func TestCalibrate_RejectsBadGridBeforeRunning(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	factory := func(mdap.Config, int) mdap.Predictor {
		mu.Lock()
		calls++
		mu.Unlock()
		return hanoi.Oracle{}
	}
	h, err := NewHanoiCalibrator(3, factory, quietOpts(1))
	require.NoError(t, err)

	_, err = h.Calibrate(context.Background(),
		[]mdap.Config{{KMargin: 1, MaxCandidates: 3}, {KMargin: 4, MaxCandidates: 2}}, 2, 20)
	assert.ErrorIs(t, err, mdap.ErrInvalidConfig)
	assert.Equal(t, 0, calls)

	_, err = h.Calibrate(context.Background(), []mdap.Config{mdap.DefaultConfig()}, 0, 20)
	assert.ErrorIs(t, err, mdap.ErrInvalidConfig)
	_, err = h.Calibrate(context.Background(), []mdap.Config{mdap.DefaultConfig()}, 1, 0)
	assert.ErrorIs(t, err, mdap.ErrInvalidConfig)
}

func TestCalibrate_UnsolvableWithinBudget(t *testing.T) {
	h, err := NewHanoiCalibrator(3, oracleFactory, quietOpts(2))
	require.NoError(t, err)

	results, err := h.Calibrate(context.Background(), []mdap.Config{{KMargin: 1, MaxCandidates: 1}}, 3, 6)
	require.NoError(t, err)
	assert.Equal(t, 0.0, results[0].SuccessRate)
	assert.Equal(t, 0.0, results[0].Efficiency)
	assert.Equal(t, 6.0, results[0].AvgSamplesPerEpisode)
}

func TestCalibrate_RedFlagRatesAreFractionsOfSamples(t *testing.T) {
	factory := func(mdap.Config, int) mdap.Predictor {
		return &hanoi.Noisy{ErrorRate: 1, Faults: []hanoi.Fault{hanoi.FaultMalformed}}
	}
	h, err := NewHanoiCalibrator(2, factory, quietOpts(2))
	require.NoError(t, err)

	results, err := h.Calibrate(context.Background(), []mdap.Config{{KMargin: 1, MaxCandidates: 2}}, 2, 4)
	require.NoError(t, err)
	r := results[0]
	// every sample malformed, every step has no valid candidates
	assert.Equal(t, 1.0, r.RedFlagRates[mdap.ReasonMalformedOutput])
	assert.Equal(t, 0.5, r.RedFlagRates[mdap.ReasonNoValidCandidates])
	assert.Equal(t, 8, r.Metrics.FlaggedSteps)
}

func TestCalibrate_ConcurrentEpisodesMergeCleanly(t *testing.T) {
	h, err := NewHanoiCalibrator(3, noisyFactory(0.2), quietOpts(8))
	require.NoError(t, err)

	results, err := h.Calibrate(context.Background(), []mdap.Config{{KMargin: 2, MaxCandidates: 6}}, 16, 21)
	require.NoError(t, err)
	r := results[0]
	require.NoError(t, r.Metrics.Check())
	assert.Equal(t, float64(r.Metrics.TotalSamples)/16, r.AvgSamplesPerEpisode)
	assert.InDelta(t, float64(r.Solved)/16, r.SuccessRate, 1e-9)
}

// Success should not drop when the cap grows for a fixed k.
func TestCalibrate_MonotoneInCap(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical")
	}
	h, err := NewHanoiCalibrator(3, noisyFactory(0.3), serialOpts(8))
	require.NoError(t, err)

	grid := Grid([]int{2}, []int{2, 9}, 2)
	results, err := h.Calibrate(context.Background(), grid, 40, hanoi.OptimalLength(3))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.GreaterOrEqual(t, results[1].SuccessRate, results[0].SuccessRate-0.1)
}

func TestCalibrate_ReproducibleWithFixedSeeds(t *testing.T) {
	h, err := NewHanoiCalibrator(3, noisyFactory(0.3), serialOpts(4))
	require.NoError(t, err)
	grid := []mdap.Config{{KMargin: 2, MaxCandidates: 4}, {KMargin: 1, MaxCandidates: 3}}

	first, err := h.Calibrate(context.Background(), grid, 20, 21)
	require.NoError(t, err)
	second, err := h.Calibrate(context.Background(), grid, 20, 21)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	assert.NotEqual(t, first[0].BatchID, second[0].BatchID)
	for i := range first {
		first[i].BatchID, second[i].BatchID = "", ""
	}
	assert.Equal(t, first, second)
	assert.Positive(t, first[0].Metrics.TotalRedFlags)
}

func TestCalibrate_ReportsProgress(t *testing.T) {
	opts := quietOpts(3)
	opts.Progress = mdap.NewMetrics()
	var seen []Result
	opts.OnResult = func(r Result) { seen = append(seen, r) }
	h, err := NewHanoiCalibrator(2, oracleFactory, opts)
	require.NoError(t, err)

	grid := []mdap.Config{{KMargin: 1, MaxCandidates: 2}, {KMargin: 2, MaxCandidates: 2}}
	results, err := h.Calibrate(context.Background(), grid, 4, h.DefaultStepBudget())
	require.NoError(t, err)

	assert.Equal(t, results, seen)
	// 4 episodes x 3 steps x (1 + 2) samples
	snap := opts.Progress.Snapshot()
	assert.Equal(t, 36, snap.TotalSamples)
	assert.Equal(t, 24, snap.Steps())
	require.NoError(t, snap.Check())
}

func TestCalibrate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h, err := NewHanoiCalibrator(3, oracleFactory, quietOpts(2))
	require.NoError(t, err)
	_, err = h.Calibrate(ctx, []mdap.Config{mdap.DefaultConfig()}, 2, 20)
	assert.ErrorIs(t, err, context.Canceled)
}

type countingRecorder struct {
	mu       sync.Mutex
	finished int
}

func (r *countingRecorder) StartRun(context.Context, string, any, any, mdap.Config, int) error {
	return nil
}
func (r *countingRecorder) RecordStep(context.Context, mdap.Decision, mdap.Round) error { return nil }
func (r *countingRecorder) FinishRun(context.Context, orchestrator.Episode) error {
	r.mu.Lock()
	r.finished++
	r.mu.Unlock()
	return nil
}

func TestCalibrate_RecorderSeesEveryEpisode(t *testing.T) {
	rec := &countingRecorder{}
	opts := quietOpts(3)
	opts.Recorder = rec
	results, err := RunHanoiCalibration(context.Background(), 2, oracleFactory,
		Grid([]int{1, 2}, []int{2}, 0), 3, 0, opts)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 6, rec.finished)
	assert.Equal(t, 9, results[0].StepBudget)
}

// #endregion

// #region construction

func TestNewHanoiCalibrator_Validation(t *testing.T) {
	_, err := NewHanoiCalibrator(0, oracleFactory, Options{})
	assert.ErrorIs(t, err, mdap.ErrInvalidConfig)

	_, err = NewHanoiCalibratorFor(hanoi.Pegs{{1, 2}, {}, {}}, hanoi.Tower(2, 1, 3), oracleFactory, Options{})
	assert.ErrorIs(t, err, mdap.ErrInvalidConfig)

	_, err = New(Domain{}, oracleFactory, Options{})
	assert.ErrorIs(t, err, mdap.ErrInvalidConfig)

	h, err := NewHanoiCalibratorFor(hanoi.Pegs{{3}, {2, 1}, {}}, hanoi.Tower(3, 2, 3), oracleFactory, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, h.Disks)
	assert.Greater(t, h.Domain().Optimal, 0)
}

// #endregion

// #region policy

func TestGrid_SkipsUnreachableCells(t *testing.T) {
	grid := Grid([]int{3, 1}, []int{2, 5}, 2)
	assert.Equal(t, []mdap.Config{
		{KMargin: 1, MaxCandidates: 2, BatchSize: 2},
		{KMargin: 1, MaxCandidates: 5, BatchSize: 2},
		{KMargin: 3, MaxCandidates: 5, BatchSize: 2},
	}, grid)
	assert.Empty(t, Grid([]int{0}, []int{3}, 0))
}

func TestGrid_DropsRepeatedCells(t *testing.T) {
	grid := Grid([]int{2, 2}, []int{4, 4, 3}, 0)
	assert.Equal(t, []mdap.Config{
		{KMargin: 2, MaxCandidates: 3},
		{KMargin: 2, MaxCandidates: 4},
	}, grid)
}

func TestRecommend_CheapestMeetingThreshold(t *testing.T) {
	results := []Result{
		{Config: mdap.Config{KMargin: 1, MaxCandidates: 3}, SuccessRate: 0.6, AvgSamplesPerEpisode: 8},
		{Config: mdap.Config{KMargin: 2, MaxCandidates: 5}, SuccessRate: 0.95, AvgSamplesPerEpisode: 16},
		{Config: mdap.Config{KMargin: 3, MaxCandidates: 9}, SuccessRate: 1.0, AvgSamplesPerEpisode: 24},
		{Config: mdap.Config{KMargin: 2, MaxCandidates: 9}, SuccessRate: 0.97, AvgSamplesPerEpisode: 16},
	}
	best, ok := Recommend(results, 0.9)
	require.True(t, ok)
	assert.Equal(t, mdap.Config{KMargin: 2, MaxCandidates: 9}, best.Config)

	_, ok = Recommend(results, 1.01)
	assert.False(t, ok)
}

func TestResult_Row(t *testing.T) {
	r := Result{
		Config:       mdap.Config{KMargin: 2, MaxCandidates: 6},
		Episodes:     4,
		Solved:       3,
		SuccessRate:  0.75,
		RedFlagRates: map[mdap.Reason]float64{mdap.ReasonTie: 0.1, mdap.ReasonLowConfidence: 0.05},
	}
	row := r.Row()
	require.Len(t, row, len(Header()))
	assert.Equal(t, "2", row[0])
	assert.Equal(t, "2", row[2])
	assert.Equal(t, "0.750", row[5])
	assert.Equal(t, "low_confidence=0.050 tie=0.100", row[9])
}

// #endregion
