// Package main - точка входа для фоновых процессов (Worker) uconnect-ledger.
//
// Worker отвечает за периодические задачи:
// - Прогрев кеша рейтинга для популярных окон
// - Сверку xp_total с журналом активностей
//
// Worker открывает то же хранилище, что и API, но ничего в нём не пишет.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uconnect/uconnect-ledger/config"
	"github.com/uconnect/uconnect-ledger/internal/bootstrap"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/scheduler"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/scheduler/jobs"
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
	if !cfg.Scheduler.Enabled {
		return errors.New("scheduler is disabled (scheduler.enabled=false)")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Логирование
	// ─────────────────────────────────────────────────────────────────────────
	log := bootstrap.NewLogger(cfg.Observability).With(logger.Component("worker"))
	log.Info("starting worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
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
	// 4. Планировщик и задачи
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultConfig()
	schedCfg.Logger = log
	schedCfg.Metrics = app.Metrics
	if cfg.Scheduler.JobTimeout > 0 {
		schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
	}
	sched := scheduler.New(schedCfg)

	warm := jobs.NewWarmRankingCacheJob(app.Ranking, cfg.Scheduler.WarmWindows, cfg.Ranking.DefaultLimit, log)
	if err := sched.Register(warm, scheduler.NewIntervalSchedule(cfg.Scheduler.WarmRankingInterval)); err != nil {
		return fmt.Errorf("failed to register %s: %w", warm.Name(), err)
	}

	// Прогрев in-process кеша воркера не виден API, без Redis он бесполезен.
	if !app.SharedCache() {
		log.Warn("ranking cache is not shared, cache warming disabled")
		if err := sched.SetEnabled(warm.Name(), false); err != nil {
			return err
		}
	}

	reconcileSchedule, err := reconcileSchedule(cfg.Scheduler, schedCfg.Timezone)
	if err != nil {
		return err
	}
	reconcile := jobs.NewReconcileLedgerJob(app.Reconciler, log)
	if err := sched.Register(reconcile, reconcileSchedule); err != nil {
		return fmt.Errorf("failed to register %s: %w", reconcile.Name(), err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Запуск
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Сверка при старте, чтобы расхождения после деплоя были видны сразу.
	if _, err := sched.RunNow(ctx, reconcile.Name()); err != nil {
		log.Warn("initial reconciliation failed", logger.Err(err))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Ожидание сигнала и graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal, stopping scheduler",
		logger.Duration("timeout", cfg.App.ShutdownTimeout),
	)

	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	log.Info("worker stopped")
	return nil
}

// reconcileSchedule возвращает cron-расписание, если оно задано, иначе интервал.
func reconcileSchedule(cfg config.SchedulerConfig, loc *time.Location) (scheduler.Schedule, error) {
	if cfg.ReconcileCron == "" {
		return scheduler.NewIntervalSchedule(cfg.ReconcileInterval), nil
	}
	s, err := scheduler.ParseSchedule(cfg.ReconcileCron, loc)
	if err != nil {
		return nil, fmt.Errorf("scheduler.reconcile_cron: %w", err)
	}
	return s, nil
}
