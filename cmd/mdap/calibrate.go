package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/mdap-controller/internal/calibrate"
	"github.com/danielpatrickdp/mdap-controller/internal/config"
	"github.com/danielpatrickdp/mdap-controller/internal/hanoi"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
	"github.com/danielpatrickdp/mdap-controller/internal/predictor"
	"github.com/danielpatrickdp/mdap-controller/internal/telemetry"
)

// #region calibrate-cmd
func newCalibrateCmd(root *rootOptions) *cobra.Command {
	var (
		kMargins []int
		caps     []int
		episodes int
		budget   int
		disks    int
		format   string
	)
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Sweep k_margin and max_candidates over repeated episodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			f, err := root.load()
			if err != nil {
				return err
			}
			if len(kMargins) > 0 {
				f.Calibration.KMargins = kMargins
			}
			if len(caps) > 0 {
				f.Calibration.MaxCandidates = caps
			}
			if episodes > 0 {
				f.Calibration.Episodes = episodes
			}
			if disks > 0 {
				f.Hanoi.InitialPegs = hanoi.Tower(disks, 0, 3)
				f.Hanoi.GoalPegs = hanoi.Tower(disks, 1, 3)
			}
			grid := f.Grid()
			if len(grid) == 0 {
				return fmt.Errorf("%w: calibration grid has no reachable cells", mdap.ErrInvalidConfig)
			}
			logger := root.logger()

			factory, closeFn, err := predictorFactory(f.Predictor)
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := root.openStore(f, logger)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			// live totals while the grid runs; gauges fill in per config
			progress := mdap.NewMetrics()
			collector := telemetry.NewCollector(progress.Snapshot)
			root.serveMetrics(collector, logger)

			var done []calibrate.Result
			so := f.SamplerOptions()
			so.Logger = logger
			opts := calibrate.Options{
				Concurrency: f.Calibration.Concurrency,
				Sampler:     so,
				Logger:      logger,
				Progress:    progress,
				OnResult: func(r calibrate.Result) {
					done = append(done, r)
					collector.ObserveCalibration(done)
				},
			}
			if st != nil {
				opts.Recorder = st
			}
			cal, err := calibrate.NewHanoiCalibratorFor(f.Initial(), f.Goal(), factory, opts)
			if err != nil {
				return err
			}
			if budget <= 0 {
				budget = cal.DefaultStepBudget()
			}

			ctx, cancel := signalContext()
			defer cancel()
			results, err := cal.Calibrate(ctx, grid, f.Calibration.Episodes, budget)
			if err != nil {
				return err
			}
			if st != nil {
				if err := st.SaveCalibration(results); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if err := writeResults(w, results, format); err != nil {
				return err
			}
			if format != "table" {
				return nil
			}
			best, ok := calibrate.Recommend(results, f.Calibration.MinSuccessRate)
			if !ok {
				fmt.Fprintf(w, "\nno configuration reached success rate %.2f\n", f.Calibration.MinSuccessRate)
				return nil
			}
			fmt.Fprintf(w, "\nrecommended: %s (success %.3f, %.1f samples/episode)\n",
				best.Config, best.SuccessRate, best.AvgSamplesPerEpisode)
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&kMargins, "k", nil, "k_margin values (overrides config)")
	cmd.Flags().IntSliceVar(&caps, "max", nil, "max_candidates values (overrides config)")
	cmd.Flags().IntVar(&episodes, "episodes", 0, "episodes per configuration (overrides config)")
	cmd.Flags().IntVar(&budget, "budget", 0, "step budget per episode (default 3x optimal)")
	cmd.Flags().IntVar(&disks, "disks", 0, "use a standard tower of this many disks")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, csv or json (csv and json print the table only)")
	return cmd
}

// predictorFactory gives noisy predictors a distinct seed per episode and
// shares every other predictor across episodes.
func predictorFactory(c config.Predictor) (calibrate.PredictorFactory, func() error, error) {
	if c.Kind == "noisy" {
		return func(_ mdap.Config, episode int) mdap.Predictor {
			return &hanoi.Noisy{ErrorRate: c.ErrorRate, Seed: c.Seed + int64(episode)}
		}, func() error { return nil }, nil
	}
	p, closeFn, err := predictor.FromConfig(c)
	if err != nil {
		return nil, nil, err
	}
	return func(mdap.Config, int) mdap.Predictor { return p }, closeFn, nil
}

// #endregion calibrate-cmd

// #region results
func checkFormat(format string) error {
	switch format {
	case "table", "csv", "json":
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table, csv or json)", format)
	}
}

func writeResults(w io.Writer, results []calibrate.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write(calibrate.Header()); err != nil {
			return err
		}
		for _, r := range results {
			if err := cw.Write(r.Row()); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case "table":
		writeTable(w, results)
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeTable(w io.Writer, results []calibrate.Result) {
	if len(results) > 0 {
		fmt.Fprintf(w, "batch %s  domain %s  budget %d\n", results[0].BatchID, results[0].Domain, results[0].StepBudget)
	}
	fmt.Fprintf(w, "%-4s %-5s %-9s %-8s %-12s %-10s %s\n", "K", "MAX", "EPISODES", "SUCCESS", "AVG_SAMPLES", "EFFICIENCY", "RED_FLAG_RATES")
	for _, r := range results {
		row := r.Row()
		fmt.Fprintf(w, "%-4d %-5d %-9d %-8.3f %-12.1f %-10.3f %s\n",
			r.Config.KMargin, r.Config.MaxCandidates, r.Episodes, r.SuccessRate,
			r.AvgSamplesPerEpisode, r.Efficiency, row[len(row)-1])
	}
}

// #endregion results
