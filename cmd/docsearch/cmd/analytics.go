package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/middleware"
)

func newAnalyticsCmd(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Aggregate published search events and serve the statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Setup(opts.cfg.Logging.Level, opts.cfg.Logging.Format)
			if len(opts.cfg.Kafka.Brokers) == 0 {
				return errors.New("kafka.brokers must be set for the analytics service")
			}
			return runAnalytics(cmd.Context(), opts.cfg, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8090, "port for the statistics API")
	return cmd
}

func runAnalytics(ctx context.Context, cfg *config.Config, port int) error {
	aggregator := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, aggregator.HandleMessage)

	checker := health.NewChecker()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.Timeout(cfg.Server.RequestTimeout)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr, "topic", cfg.Kafka.Topics.SearchEvents)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("analytics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
