package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/mdap-controller/internal/calibrate"
	"github.com/danielpatrickdp/mdap-controller/internal/store"
)

// #region main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dbPath  string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:           "inspect",
		Short:         "Inspect recorded runs and calibration tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "mdap.db", "path to mdap.db")
	cmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")

	withStore := func(fn func(st *store.Store) error) error {
		st, err := store.NewStore(dbPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer st.Close()
		return fn(st)
	}

	var last int
	runs := &cobra.Command{
		Use:   "runs",
		Short: "List the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(st *store.Store) error { return runListMode(st, last, jsonOut) })
		},
	}
	runs.Flags().IntVar(&last, "last", 20, "show N most recent runs")

	var rounds bool
	trace := &cobra.Command{
		Use:   "trace <run-id>",
		Short: "Show the decision trace of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(st *store.Store) error { return runDetailMode(st, args[0], rounds, jsonOut) })
		},
	}
	trace.Flags().BoolVar(&rounds, "rounds", false, "include every sample of each round")

	calibration := &cobra.Command{
		Use:   "calibration [batch-id]",
		Short: "Show a calibration table (default most recent batch)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch := ""
			if len(args) == 1 {
				batch = args[0]
			}
			return withStore(func(st *store.Store) error { return runCalibrationMode(st, batch, jsonOut) })
		},
	}

	cmd.AddCommand(runs, trace, calibration)
	return cmd
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID      string  `json:"run_id"`
	StartedAt  string  `json:"started_at"`
	Config     string  `json:"config"`
	Finished   bool    `json:"finished"`
	Solved     bool    `json:"solved"`
	Halted     bool    `json:"halted"`
	Steps      int     `json:"steps"`
	Budget     int     `json:"budget"`
	Samples    int     `json:"samples"`
	AvgPerStep float64 `json:"avg_samples_per_step"`
	RedFlags   int     `json:"red_flags"`
}

func runListMode(st *store.Store, last int, jsonOut bool) error {
	runs, err := st.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[i] = listRow{
			RunID:      r.RunID,
			StartedAt:  r.StartedAt.Format("2006-01-02 15:04:05"),
			Config:     r.Config.String(),
			Finished:   r.Finished,
			Solved:     r.Solved,
			Halted:     r.Halted,
			Steps:      r.Steps,
			Budget:     r.Budget,
			Samples:    r.Metrics.TotalSamples,
			AvgPerStep: r.Metrics.AvgSamplesPerStep(),
			RedFlags:   r.Metrics.TotalRedFlags,
		}
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-36s  %-19s  %-28s  %-8s  %-11s  %-7s  %-8s  %s\n",
		"RUN", "STARTED", "CONFIG", "OUTCOME", "STEPS", "SAMPLES", "AVG/STEP", "RED_FLAGS")
	fmt.Println(strings.Repeat("-", 140))
	for _, r := range rows {
		fmt.Printf("%-36s  %-19s  %-28s  %-8s  %-11s  %-7d  %-8.2f  %d\n",
			r.RunID, r.StartedAt, r.Config, outcome(r.Finished, r.Solved, r.Halted),
			fmt.Sprintf("%d/%d", r.Steps, r.Budget), r.Samples, r.AvgPerStep, r.RedFlags)
	}
	return nil
}

func outcome(finished, solved, halted bool) string {
	switch {
	case !finished:
		return "running"
	case solved:
		return "solved"
	case halted:
		return "halted"
	default:
		return "failed"
	}
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	Run    store.RunSummary    `json:"run"`
	Trace  []store.DecisionRow `json:"trace"`
	Rounds any                 `json:"rounds,omitempty"`
}

func runDetailMode(st *store.Store, runID string, withRounds, jsonOut bool) error {
	run, err := st.GetRun(runID)
	if err != nil {
		return err
	}
	trace, err := st.GetTrace(runID)
	if err != nil {
		return err
	}
	entries, err := st.ListRounds(runID)
	if err != nil {
		return err
	}

	if jsonOut {
		out := detailOutput{Run: run, Trace: trace}
		if withRounds {
			out.Rounds = entries
		}
		return printJSON(out)
	}

	fmt.Printf("Run:      %s\n", run.RunID)
	fmt.Printf("Config:   %s\n", run.Config)
	fmt.Printf("Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Outcome:  %s after %d/%d steps\n", outcome(run.Finished, run.Solved, run.Halted), run.Steps, run.Budget)
	fmt.Printf("Initial:  %s\n", run.Initial)
	fmt.Printf("Goal:     %s\n", run.Goal)
	if run.FinalState != nil {
		fmt.Printf("Final:    %s\n", run.FinalState)
	}
	m := run.Metrics
	fmt.Printf("Samples:  %d (%.2f/step, %d failed)\n", m.TotalSamples, m.AvgSamplesPerStep(), m.FailedSamples)
	for _, r := range m.Reasons() {
		fmt.Printf("  %-20s %d\n", r, m.RedFlagsByReason[r])
	}

	fmt.Printf("\n%-5s  %-10s  %-22s  %-5s  %-6s  %-7s  %-5s  %s\n",
		"STEP", "MOVE", "KEY", "VOTES", "MARGIN", "SAMPLES", "VALID", "FLAG")
	fmt.Println(strings.Repeat("-", 90))
	byStep := make(map[int]int, len(entries))
	for i, e := range entries {
		byStep[e.Step] = i
	}
	for _, d := range trace {
		move := "-"
		if d.Move != nil {
			move = string(d.Move)
		}
		key := d.Key
		if key == "" {
			key = "-"
		}
		fmt.Printf("%-5d  %-10s  %-22s  %-5d  %-6d  %-7d  %-5d  %s\n",
			d.Step, move, key, d.Votes, d.Margin, d.Samples, d.Valid, d.RedFlag)

		if i, ok := byStep[d.Step]; withRounds && ok {
			for _, s := range entries[i].Round.Samples {
				mark := "ok"
				if !s.Valid {
					mark = string(s.Reason)
				}
				fmt.Printf("        #%-3d %-22s %-20s %q\n", s.Sample, orDash(s.Key), mark, truncate(s.Text, 60))
			}
		}
	}
	return nil
}

// #endregion detail-mode

// #region calibration-mode

func runCalibrationMode(st *store.Store, batch string, jsonOut bool) error {
	results, err := st.ListCalibration(batch)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "no calibration results found")
		return nil
	}
	if jsonOut {
		return printJSON(results)
	}

	fmt.Printf("Batch:  %s\nDomain: %s\nBudget: %d steps\n\n", results[0].BatchID, results[0].Domain, results[0].StepBudget)
	fmt.Println(strings.Join(calibrate.Header(), "\t"))
	for _, r := range results {
		fmt.Println(strings.Join(r.Row(), "\t"))
	}
	return nil
}

// #endregion calibration-mode

// #region helpers

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// #endregion helpers
