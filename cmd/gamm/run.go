package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/objones25/gamm/internal/benchmark"
	"github.com/objones25/gamm/internal/config"
	"github.com/objones25/gamm/internal/logging"
	"github.com/objones25/gamm/internal/matio"
	"github.com/objones25/gamm/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Benchmark the reduction strategies on a pair of matrices",
		Long: `Load X and Y, compute the exact product X·Yᵗ and run every selected
strategy against it, reporting time, spectral error and resource usage.

Example:
  gamm run --x data/x.bin --y data/y.bin -l 400 -t 8 --bins all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBenchmark(ctx, cmd, cfg)
		},
	}
}

func runBenchmark(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	if cfg.X == "" || cfg.Y == "" {
		return fmt.Errorf("%w: both --x and --y are required", config.ErrInvalid)
	}

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to stop metrics server")
			}
		}()
	}

	cache, err := openCache(cfg)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	x, y, err := matio.LoadPair(ctx, cfg.X, cfg.Y)
	if err != nil {
		return err
	}

	report, err := benchmark.NewRunner(benchmark.FromConfig(cfg), cache).Run(ctx, x, y)
	if report != nil {
		report.WriteTable(cmd.OutOrStdout())
	}
	if err != nil {
		return err
	}
	if cfg.Report != "" {
		if err := report.Save(cfg.Report); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		log.Info().Str("path", cfg.Report).Msg("Report written")
	}
	return nil
}

// openCache returns nil when no Redis address is configured.
func openCache(cfg *config.Config) (*store.SketchCache, error) {
	if cfg.Cache.RedisAddr == "" {
		return nil, nil
	}
	cache, err := store.NewSketchCache(store.Config{
		Addr:                 cfg.Cache.RedisAddr,
		DefaultTTL:           cfg.Cache.TTL,
		CompressionThreshold: cfg.Cache.CompressionThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sketch cache: %w", err)
	}
	return cache, nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}
