package calibrate

// #region imports
import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
	"github.com/danielpatrickdp/mdap-controller/internal/orchestrator"
	"github.com/danielpatrickdp/mdap-controller/internal/sampler"
)

// #endregion

// #region calibrator

// Calibrator evaluates MDAP configurations by running full episodes on a domain.
type Calibrator struct {
	domain  Domain
	factory PredictorFactory
	opts    Options
}

// New creates a calibrator. The domain needs a validator and a codec.
func New(domain Domain, factory PredictorFactory, opts Options) (*Calibrator, error) {
	if domain.Validator == nil || domain.Codec == nil || factory == nil {
		return nil, fmt.Errorf("%w: calibrator needs validator, codec and predictor factory", mdap.ErrInvalidConfig)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Calibrator{domain: domain, factory: factory, opts: opts}, nil
}

// Domain returns the problem being calibrated on.
func (c *Calibrator) Domain() Domain { return c.domain }

// #endregion

// #region calibrate

// Calibrate runs episodesPerConfig episodes for every config in grid and
// returns one Result per config, in grid order. Every config is validated
// before the first episode starts.
func (c *Calibrator) Calibrate(ctx context.Context, grid []mdap.Config, episodesPerConfig, stepBudget int) ([]Result, error) {
	if episodesPerConfig < 1 {
		return nil, fmt.Errorf("%w: episodes_per_config must be >= 1, got %d", mdap.ErrInvalidConfig, episodesPerConfig)
	}
	if stepBudget < 1 {
		return nil, fmt.Errorf("%w: step_budget must be >= 1, got %d", mdap.ErrInvalidConfig, stepBudget)
	}
	for i, cfg := range grid {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("grid[%d]: %w", i, err)
		}
	}

	logger := c.opts.logger()
	batchID := uuid.NewString()
	results := make([]Result, 0, len(grid))
	for _, cfg := range grid {
		episodes, err := c.runEpisodes(ctx, cfg, episodesPerConfig, stepBudget)
		if err != nil {
			return results, fmt.Errorf("calibrate %s: %w", cfg, err)
		}
		r := c.reduce(batchID, cfg, stepBudget, episodes)
		logger.Printf("[CALIB] %s episodes=%d success=%.3f avg_samples=%.1f efficiency=%.3f",
			cfg, r.Episodes, r.SuccessRate, r.AvgSamplesPerEpisode, r.Efficiency)
		results = append(results, r)
		if c.opts.OnResult != nil {
			c.opts.OnResult(r)
		}
	}
	return results, nil
}

// runEpisodes runs independent episodes concurrently. Each episode owns its
// orchestrator and metrics; results land in distinct slots.
func (c *Calibrator) runEpisodes(ctx context.Context, cfg mdap.Config, n, budget int) ([]orchestrator.Episode, error) {
	out := make([]orchestrator.Episode, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for i := 0; i < n; i++ {
		i := i // per-iteration copy; go.mod targets go1.21 (pre-1.22 loop semantics)
		g.Go(func() error {
			s := sampler.New(c.factory(cfg, i), c.opts.Sampler)
			opts := []orchestrator.Option{}
			if c.opts.Recorder != nil {
				opts = append(opts, orchestrator.WithRecorder(c.opts.Recorder))
			}
			o, err := orchestrator.New(cfg, s, c.domain.Validator, c.domain.Codec, mdap.NewMetrics(), opts...)
			if err != nil {
				return err
			}
			ep, err := o.Run(gctx, c.domain.Initial, c.domain.Goal, budget)
			if err != nil {
				return fmt.Errorf("episode %d: %w", i, err)
			}
			out[i] = ep
			if c.opts.Progress != nil {
				c.opts.Progress.Merge(ep.Metrics)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// reduce merges per-episode metrics after all episodes have finished.
func (c *Calibrator) reduce(batchID string, cfg mdap.Config, budget int, episodes []orchestrator.Episode) Result {
	merged := mdap.NewMetrics()
	solved, solvedSteps := 0, 0
	for _, ep := range episodes {
		merged.Merge(ep.Metrics)
		if ep.Solved {
			solved++
			solvedSteps += ep.Steps()
		}
	}
	snap := merged.Snapshot()

	r := Result{
		BatchID:      batchID,
		Domain:       c.domain.Name,
		Config:       cfg,
		StepBudget:   budget,
		Episodes:     len(episodes),
		Solved:       solved,
		RedFlagRates: make(map[mdap.Reason]float64),
		Metrics:      snap,
	}
	if r.Episodes > 0 {
		r.SuccessRate = float64(solved) / float64(r.Episodes)
		r.AvgSamplesPerEpisode = float64(snap.TotalSamples) / float64(r.Episodes)
	}
	if solved > 0 {
		r.AvgStepsSolved = float64(solvedSteps) / float64(solved)
		if c.domain.Optimal > 0 && r.AvgStepsSolved > 0 {
			r.Efficiency = float64(c.domain.Optimal) / r.AvgStepsSolved
		}
	}
	if snap.TotalSamples > 0 {
		for reason, n := range snap.RedFlagsByReason {
			r.RedFlagRates[reason] = float64(n) / float64(snap.TotalSamples)
		}
		r.FailedRate = float64(snap.FailedSamples) / float64(snap.TotalSamples)
	}
	return r
}

// #endregion
