package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/mdap-controller/internal/config"
	"github.com/danielpatrickdp/mdap-controller/internal/store"
	"github.com/danielpatrickdp/mdap-controller/internal/telemetry"
)

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath  string
	dbPath      string
	noStore     bool
	metricsAddr string
	quiet       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "mdap",
		Short:         "Multi-sample voting over an unreliable predictor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML or TOML config file")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "sqlite path (overrides config and MDAP_DB)")
	cmd.PersistentFlags().BoolVar(&opts.noStore, "no-store", false, "do not persist runs")
	cmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress per-step log lines")

	cmd.AddCommand(newRunCmd(opts), newCalibrateCmd(opts), newServeOracleCmd(opts))
	return cmd
}

// #endregion main

// #region helpers
func (o *rootOptions) load() (config.File, error) {
	f, err := config.Load(o.configPath)
	if err != nil {
		return config.File{}, err
	}
	if o.dbPath != "" {
		f.Storage.DBPath = o.dbPath
	}
	return f, nil
}

func (o *rootOptions) logger() *log.Logger {
	return log.New(os.Stderr, "", log.LstdFlags)
}

// openStore returns nil when persistence is disabled.
func (o *rootOptions) openStore(f config.File, logger *log.Logger) (*store.Store, error) {
	if o.noStore {
		return nil, nil
	}
	s, err := store.NewStore(f.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", f.Storage.DBPath, err)
	}
	s.SetLogger(logger)
	return s, nil
}

// serveMetrics starts the Prometheus endpoint in the background.
func (o *rootOptions) serveMetrics(c *telemetry.Collector, logger *log.Logger) {
	if o.metricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler(telemetry.NewRegistry(c)))
	go func() {
		logger.Printf("[MDAP] metrics on http://%s/metrics", o.metricsAddr)
		if err := http.ListenAndServe(o.metricsAddr, mux); err != nil {
			logger.Printf("[MDAP] metrics server: %v", err)
		}
	}()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// #endregion helpers
