package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
	"github.com/danielpatrickdp/mdap-controller/internal/replay"
	"github.com/danielpatrickdp/mdap-controller/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to mdap.db (DB mode)")
	runID := flag.String("run", "", "run to replay (DB mode, default most recent)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	k := flag.Int("k", 0, "k_margin override")
	maxCandidates := flag.Int("max", 0, "max_candidates override")
	batch := flag.Int("batch", -1, "batch_escalation_size override")
	jsonOut := flag.Bool("json", false, "output per-step results as JSON")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/mdap.db [--run id] [--k N] [--max N] [--batch N] [--json]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	o := overrides{k: *k, max: *maxCandidates, batch: *batch}
	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath, *jsonOut)
	} else {
		exitCode = runDBMode(*dbPath, *runID, o, *jsonOut)
	}
	os.Exit(exitCode)
}

type overrides struct {
	k, max, batch int
}

func (o overrides) apply(cfg mdap.Config) mdap.Config {
	if o.k > 0 {
		cfg.KMargin = o.k
	}
	if o.max > 0 {
		cfg.MaxCandidates = o.max
	}
	if o.batch >= 0 {
		cfg.BatchSize = o.batch
	}
	return cfg
}

// #endregion main

// #region db-mode

func runDBMode(dbPath, runID string, o overrides, jsonOut bool) int {
	st, err := store.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer st.Close()

	if runID == "" {
		runs, err := st.ListRuns(1)
		if err != nil || len(runs) == 0 {
			fmt.Fprintf(os.Stderr, "no runs found in %s\n", dbPath)
			return 2
		}
		runID = runs[0].RunID
	}
	run, err := st.GetRun(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load run: %v\n", err)
		return 2
	}
	entries, err := st.ListRounds(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load rounds: %v\n", err)
		return 2
	}
	if len(entries) == 0 {
		fmt.Fprintf(os.Stderr, "run %s has no recorded rounds\n", runID)
		return 2
	}

	v, codec, _ := replay.DomainLogic("hanoi")
	cfg := o.apply(run.Config)
	recs := replay.FromEntries(entries)
	results, err := replay.Replay(recs, cfg, v, codec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 1
	}

	fmt.Printf("run %s recorded with %s, replayed with %s\n", runID, run.Config, cfg)
	printResults(results, jsonOut)
	printSummary(replay.Summarize(recs, results))
	return 0
}

// #endregion db-mode

// #region fixture-mode

func runFixtureMode(path string, jsonOut bool) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	results, err := f.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 1
	}

	fmt.Printf("fixture: %s\n", f.Description)
	printResults(results, jsonOut)
	printSummary(replay.Summarize(f.Recorded(), results))

	mismatches := f.Mismatches(results)
	if len(mismatches) > 0 {
		fmt.Println("\nMISMATCHES:")
		for _, m := range mismatches {
			fmt.Printf("  %s\n", m)
		}
		return 1
	}
	fmt.Println("\nall expected results match")
	return 0
}

// #endregion fixture-mode

// #region output

func printResults(results []replay.ReplayResult, jsonOut bool) {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		}
		return
	}
	fmt.Printf("%-5s %-24s %-24s %-20s %-8s %s\n", "STEP", "RECORDED", "REPLAYED", "FLAG", "SAMPLES", "NOTE")
	for _, r := range results {
		note := ""
		if r.Changed {
			note = "changed"
		}
		if r.Exhausted {
			if note != "" {
				note += ","
			}
			note += "exhausted"
		}
		fmt.Printf("%-5d %-24s %-24s %-20s %-8d %s\n",
			r.Step, orDash(r.RecordedKey), orDash(r.Decision.Key), r.Decision.RedFlag, r.Decision.Samples, note)
	}
}

func printSummary(s replay.ReplaySummary) {
	fmt.Printf("\nsteps=%d confident=%d flagged=%d changed=%d exhausted=%d samples recorded=%d replayed=%d\n",
		s.TotalSteps, s.Confident, s.Flagged, s.Changed, s.Exhausted, s.RecordedSamples, s.ReplayedSamples)
	reasons := make([]string, 0, len(s.ByReason))
	for r := range s.ByReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Printf("  %-20s %d\n", r, s.ByReason[mdap.Reason(r)])
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// #endregion output
