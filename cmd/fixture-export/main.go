package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
	"github.com/danielpatrickdp/mdap-controller/internal/replay"
	"github.com/danielpatrickdp/mdap-controller/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to mdap.db")
	runID := flag.String("run", "", "run to export (default most recent)")
	outPath := flag.String("out", "", "output fixture JSON path")
	k := flag.Int("k", 0, "k_margin for expected results (default: recorded)")
	maxCandidates := flag.Int("max", 0, "max_candidates for expected results (default: recorded)")
	desc := flag.String("desc", "", "fixture description")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/mdap.db --out path/to/fixture.json [--run id] [--k N] [--max N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *runID, *outPath, *desc, *k, *maxCandidates); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, runID, outPath, desc string, k, maxCandidates int) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	if runID == "" {
		runs, err := st.ListRuns(1)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return fmt.Errorf("no runs in %s", dbPath)
		}
		runID = runs[0].RunID
	}
	r, err := st.GetRun(runID)
	if err != nil {
		return err
	}
	entries, err := st.ListRounds(runID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("run %s has no recorded rounds", runID)
	}

	cfg := r.Config
	if k > 0 {
		cfg.KMargin = k
	}
	if maxCandidates > 0 {
		cfg.MaxCandidates = maxCandidates
	}
	if desc == "" {
		desc = describe(runID, r.Config, cfg, len(entries))
	}

	f, err := replay.FromRounds(desc, "hanoi", cfg, entries)
	if err != nil {
		return err
	}
	if err := f.Write(outPath); err != nil {
		return err
	}
	fmt.Printf("wrote %d rounds (%d expected results) to %s\n", len(f.Rounds), len(f.ExpectedResults), outPath)
	return nil
}

func describe(runID string, recorded, cfg mdap.Config, rounds int) string {
	if recorded == cfg {
		return fmt.Sprintf("run %s: %d rounds under %s", runID, rounds, cfg)
	}
	return fmt.Sprintf("run %s: %d rounds recorded under %s, expected under %s", runID, rounds, recorded, cfg)
}

// #endregion extract
