package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/assets"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/controller"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/session"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/redis"
)

// maxAPILimit caps the limit query parameter of the search API.
const maxAPILimit = 200

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the search API, page sessions and metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Setup(opts.cfg.Logging.Level, opts.cfg.Logging.Format)
			return runServe(cmd.Context(), opts.cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting docsearch",
		"port", cfg.Server.Port,
		"index", cfg.Assets.IndexPath,
		"dictionary", cfg.Assets.DictionaryPath,
	)
	m := metrics.New()
	eng := engine.New(engine.OptionsFromConfig(cfg), assets.NewLoader(m), assets.NewFetcher(cfg.Assets), m)

	var tier cache.Tier
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, shared result cache disabled", "error", err)
		} else {
			defer rc.Close()
			redisClient, tier = rc, rc
			slog.Info("shared result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	resultCache := cache.New(cfg.Cache.LRUSize, tier, cfg.Redis.CacheTTL, m)

	var publisher analytics.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		publisher = producer
		slog.Info("publishing search events", "topic", cfg.Kafka.Topics.SearchEvents)
	}
	aggregator := analytics.NewAggregator()
	collector := analytics.NewCollector(publisher, aggregator, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval)

	sessions := session.NewServer(eng, controller.Options{
		ShortcutKey: cfg.Search.ShortcutKey,
		Observer:    collector,
		Metrics:     m,
	}, cfg.Server.AllowedOrigins)

	checker := health.NewChecker()
	checker.Register("index", health.IndexCheck(eng))
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient))
	}

	searchH := handler.New(eng, resultCache, collector, maxAPILimit)
	analyticsH := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", searchH.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", searchH.CacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", searchH.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.Handle("GET /ws", sessions)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)),
	}
	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		mws = append(mws, middleware.RateLimit(limiter))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.RequestTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return collector.Run(gctx) })
	g.Go(func() error {
		if err := eng.Initialize(gctx); err != nil {
			slog.Error("search index warm-up failed, searches will report it unavailable", "error", err)
			return nil
		}
		slog.Info("search index ready",
			"fingerprint", eng.Fingerprint(),
			"tokenizer", eng.TokenizerStrategy(),
			"limit", eng.Limit(),
		)
		return nil
	})
	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("search server: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	if limiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					limiter.Prune()
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := sessions.Shutdown(shutdownCtx); err != nil {
			slog.Error("page sessions did not close in time", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		return nil
	})

	err := g.Wait()
	collector.Wait()
	slog.Info("docsearch stopped")
	return err
}
