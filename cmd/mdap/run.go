package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/mdap-controller/internal/hanoi"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
	"github.com/danielpatrickdp/mdap-controller/internal/orchestrator"
	"github.com/danielpatrickdp/mdap-controller/internal/predictor"
	"github.com/danielpatrickdp/mdap-controller/internal/sampler"
	"github.com/danielpatrickdp/mdap-controller/internal/telemetry"
)

// #region run-cmd
func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		haltOn  []string
		jsonOut bool
		budget  int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Solve the configured puzzle once",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := root.load()
			if err != nil {
				return err
			}
			if budget > 0 {
				f.Hanoi.StepBudget = budget
			}
			logger := root.logger()

			p, closeFn, err := predictor.FromConfig(f.Predictor)
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := root.openStore(f, logger)
			if err != nil {
				return err
			}
			opts := []orchestrator.Option{orchestrator.WithLogger(stepLogger(root, logger))}
			if st != nil {
				defer st.Close()
				opts = append(opts, orchestrator.WithRecorder(st))
			}
			if len(haltOn) > 0 {
				reasons := make([]mdap.Reason, len(haltOn))
				for i, r := range haltOn {
					reasons[i] = mdap.Reason(r)
				}
				opts = append(opts, orchestrator.WithHaltOn(reasons...))
			}

			so := f.SamplerOptions()
			so.Logger = logger
			o, err := orchestrator.New(f.Protocol(), sampler.New(p, so), hanoi.NewValidator(), hanoi.Codec{}, nil, opts...)
			if err != nil {
				return err
			}
			root.serveMetrics(telemetry.NewCollector(o.Metrics), logger)

			ctx, cancel := signalContext()
			defer cancel()
			ep, runErr := o.Run(ctx, f.Initial(), f.Goal(), f.Hanoi.StepBudget)
			if runErr != nil && !errors.Is(runErr, mdap.ErrHalted) {
				return runErr
			}
			if err := printEpisode(cmd.OutOrStdout(), ep, jsonOut); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringSliceVar(&haltOn, "halt-on", nil, "decision red flags that stop the run (low_confidence, tie, no_valid_candidates)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the episode as JSON")
	cmd.Flags().IntVar(&budget, "budget", 0, "step budget (overrides config)")
	return cmd
}

func stepLogger(root *rootOptions, logger *log.Logger) *log.Logger {
	if root.quiet {
		return log.New(io.Discard, "", 0)
	}
	return logger
}

// #endregion run-cmd

// #region output
type episodeJSON struct {
	RunID   string         `json:"run_id"`
	Solved  bool           `json:"solved"`
	Halted  bool           `json:"halted"`
	Steps   int            `json:"steps"`
	Final   string         `json:"final_state"`
	Trace   []decisionJSON `json:"trace"`
	Metrics mdap.Snapshot  `json:"metrics"`
}

type decisionJSON struct {
	Step       int             `json:"step"`
	Move       any             `json:"move"`
	State      string          `json:"state"`
	Votes      int             `json:"votes"`
	Margin     int             `json:"margin"`
	Samples    int             `json:"samples"`
	Confidence mdap.Confidence `json:"confidence"`
	RedFlag    mdap.Reason     `json:"red_flag"`
}

func printEpisode(w io.Writer, ep orchestrator.Episode, asJSON bool) error {
	codec := hanoi.Codec{}
	out := episodeJSON{
		RunID:   ep.RunID,
		Solved:  ep.Solved,
		Halted:  ep.Halted,
		Steps:   ep.Steps(),
		Final:   codec.StateKey(ep.FinalState),
		Metrics: ep.Metrics,
	}
	for _, d := range ep.Trace {
		out.Trace = append(out.Trace, decisionJSON{
			Step: d.Step, Move: d.Move, State: codec.StateKey(d.State),
			Votes: d.Votes, Margin: d.Margin, Samples: d.Samples,
			Confidence: d.Confidence, RedFlag: d.RedFlag,
		})
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "run %s\n", out.RunID)
	fmt.Fprintf(w, "%-5s %-10s %-16s %-6s %-7s %-8s %s\n", "STEP", "MOVE", "STATE", "VOTES", "MARGIN", "SAMPLES", "FLAG")
	for _, d := range out.Trace {
		move := "-"
		if d.Move != nil {
			move = codec.MoveKey(d.Move)
		}
		fmt.Fprintf(w, "%-5d %-10s %-16s %-6d %-7d %-8d %s\n", d.Step, move, d.State, d.Votes, d.Margin, d.Samples, d.RedFlag)
	}
	m := out.Metrics
	fmt.Fprintf(w, "\nsolved=%v halted=%v steps=%d final=%s\n", out.Solved, out.Halted, out.Steps, out.Final)
	fmt.Fprintf(w, "samples=%d avg/step=%.2f failed=%d red_flags=%d flagged_steps=%d\n",
		m.TotalSamples, m.AvgSamplesPerStep(), m.FailedSamples, m.TotalRedFlags, m.FlaggedSteps)
	for _, r := range m.Reasons() {
		fmt.Fprintf(w, "  %-20s %d\n", r, m.RedFlagsByReason[r])
	}
	return nil
}

// #endregion output
