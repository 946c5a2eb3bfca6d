package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/backend"
	"tally/internal/cli"
	"tally/internal/config"
	"tally/internal/dispatch"
	apphttp "tally/internal/http"
	"tally/internal/intent"
	"tally/internal/log"
	"tally/internal/metrics"
	"tally/internal/oracle/gemini"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)
	cfg = cli.LoadAndValidateConfig(logger)

	m := metrics.New()
	appLogger := log.Wrap(logger, log.ComponentApp)

	factory := backend.NewFactory(logger, m)
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	var oracle intent.Oracle
	switch cfg.OracleBackend {
	case "gemini":
		o, err := gemini.New(context.Background(), gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.OracleModel})
		if err != nil {
			logger.Error("Failed to initialize Gemini oracle", "error", err)
			os.Exit(1)
		}
		oracle = o
		logger.Info("Initialized Gemini oracle", "model", cfg.OracleModel)
	default:
		logger.Info("Oracle disabled, free text outside the fixed phrasings resolves to unknown")
	}

	entities := cfg.EntitySet()
	resolver := intent.NewResolver(entities, oracle,
		intent.WithTimeout(cfg.OracleTimeout),
		intent.WithLogger(appLogger.WithComponent(log.ComponentIntent)))
	d := dispatch.New(resolver, result.Backend, dispatch.Config{
		Entities:        entities,
		DefaultLanguage: cfg.DefaultLanguage,
		Metrics:         m,
		Logger:          appLogger,
	})

	srv := apphttp.NewServer(":"+cfg.Port, d, result.Backend, entities, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		DefaultLanguage:    cfg.DefaultLanguage,
		// One retry means up to two oracle round trips per message.
		WriteTimeout: 2*cfg.OracleTimeout + 10*time.Second,
		Readiness:    result.Backend,
		Metrics:      m,
		Logger:       appLogger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting tally server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"oracle", cfg.OracleBackend,
			"entities", entities.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Covers listener failures, where no signal arrives.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
