package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/mdap-controller/internal/hanoi"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
	"github.com/danielpatrickdp/mdap-controller/internal/predictor"
)

// #region serve-oracle
func newServeOracleCmd(root *rootOptions) *cobra.Command {
	var (
		addr      string
		errorRate float64
		seed      int64
	)
	cmd := &cobra.Command{
		Use:   "serve-oracle",
		Short: "Serve the Hanoi oracle over gRPC, optionally with injected faults",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := root.logger()
			var p mdap.Predictor = hanoi.Oracle{}
			if errorRate > 0 {
				p = &hanoi.Noisy{ErrorRate: errorRate, Seed: seed}
			}

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			s := grpc.NewServer()
			predictor.RegisterPredictorServer(s, p)

			ctx, cancel := signalContext()
			defer cancel()
			go func() {
				<-ctx.Done()
				logger.Printf("[ORACLE] shutting down")
				s.GracefulStop()
			}()

			logger.Printf("[ORACLE] listening on %s error_rate=%.2f seed=%d", lis.Addr(), errorRate, seed)
			return s.Serve(lis)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:50061", "listen address")
	cmd.Flags().Float64Var(&errorRate, "error-rate", 0, "fraction of faulty answers")
	cmd.Flags().Int64Var(&seed, "seed", 1, "fault seed")
	return cmd
}

// #endregion serve-oracle
