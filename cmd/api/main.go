// Package main - точка входа HTTP API uconnect-ledger.
//
// API принимает регистрации и активности, отдаёт рейтинг и профили.
// Все записи идут через LedgerWriter, все чтения через RankingEngine
// и ProfileReader.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/uconnect/uconnect-ledger/config"
	"github.com/uconnect/uconnect-ledger/internal/bootstrap"
	httpserver "github.com/uconnect/uconnect-ledger/internal/interface/http"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Загрузка конфигурации
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(os.Getenv(config.EnvPrefix + "_CONFIG"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Логирование
	// ─────────────────────────────────────────────────────────────────────────
	log := bootstrap.NewLogger(cfg.Observability).With(logger.Component("api"))
	log.Info("starting api",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.StorageDriver(cfg.Storage.Driver),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Хранилище, кеш и сервисы
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to assemble application: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("failed to release resources", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP сервер
	// ─────────────────────────────────────────────────────────────────────────
	srvCfg := httpserver.DefaultConfig()
	srvCfg.Addr = cfg.HTTP.Addr
	srvCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	srvCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	srvCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	srvCfg.RateLimit = cfg.HTTP.RateLimit
	srvCfg.RateBurst = cfg.HTTP.RateBurst
	srvCfg.Version = cfg.App.Version
	srvCfg.MetricsPath = ""
	if cfg.Observability.MetricsEnabled {
		srvCfg.MetricsPath = cfg.Observability.MetricsPath
	}

	server := httpserver.NewServer(srvCfg, httpserver.Dependencies{
		Writer:        app.Writer,
		Awarder:       app.Awarder,
		Ranking:       app.Ranking,
		Profiles:      app.Profiles,
		HealthChecker: app.HealthChecker(),
		Metrics:       app.Metrics,
		Logger:        log,
	})
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Ожидание сигнала и graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("received shutdown signal, starting graceful shutdown",
		logger.Duration("timeout", cfg.App.ShutdownTimeout),
	)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("api stopped")
	return nil
}
