package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/oasis-extract/internal/metrics"
	"github.com/sells-group/oasis-extract/internal/worker"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume final transcripts from Kafka and publish extractions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(cfg.Kafka.Brokers) == 0 {
			return eris.New("consume: kafka.brokers is required")
		}

		m := metrics.New()
		env, err := initPipeline(ctx, m, true)
		if err != nil {
			return err
		}
		defer env.Close()

		startMonitoring(ctx, env.Store, cfg.Monitoring)

		metricsPort, _ := cmd.Flags().GetInt("metrics-port")
		if metricsPort > 0 {
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", metricsPort),
				Handler:           m.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Error("consume: metrics server", zap.Error(err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		w := worker.New(
			worker.NewReader(cfg.Kafka),
			worker.NewWriter(cfg.Kafka),
			env.Service,
			cfg.Kafka.OutputTopic,
			worker.WithStore(env.Store),
			worker.WithMetrics(m),
			worker.WithRetry(retryConfig(cfg.Retry)),
		)
		defer w.Close() //nolint:errcheck

		zap.L().Info("consuming transcripts",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("input_topic", cfg.Kafka.InputTopic),
			zap.String("group_id", cfg.Kafka.GroupID),
		)
		return w.Run(ctx)
	},
}

func init() {
	consumeCmd.Flags().Int("metrics-port", 0, "serve /metrics on this port (0 disables)")
	rootCmd.AddCommand(consumeCmd)
}
