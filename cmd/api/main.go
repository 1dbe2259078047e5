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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	httpadp "coop-ledger/internal/adapter/http"
	appmw "coop-ledger/internal/adapter/middleware"
	notifyadp "coop-ledger/internal/adapter/notify"
	"coop-ledger/internal/adapter/repository/mysql"
	"coop-ledger/internal/config"
	"coop-ledger/internal/infrastructure/cache"
	"coop-ledger/internal/infrastructure/db"
	"coop-ledger/internal/infrastructure/logging"
	"coop-ledger/internal/infrastructure/metrics"
	"coop-ledger/internal/scheduler"
	"coop-ledger/internal/usecase/approval"
	"coop-ledger/internal/usecase/credit"
	"coop-ledger/internal/usecase/disbursement"
	"coop-ledger/internal/usecase/distribution"
	"coop-ledger/internal/usecase/entry"
	"coop-ledger/internal/usecase/liquidation"
	"coop-ledger/internal/usecase/loan"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	gdb, err := db.OpenGorm(cfg.MySQLDSN(), db.DefaultPool(), log)
	if err != nil {
		return fmt.Errorf("mysql: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := mysql.Migrate(ctx, gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	rdb, err := cache.OpenRedis(cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer func() { _ = rdb.Close() }()

	tx := mysql.NewGormUoW(gdb)
	pub := notifyadp.Multi{
		notifyadp.NewRedisPublisher(rdb, cfg.NotifyPrefix, log),
		notifyadp.NewLogPublisher(log.Named("notify")),
	}
	engine := credit.NewEngine(cfg.Policy.Credit, log.Named("credit"))
	approvals := approval.NewUsecase(tx, engine, cfg.Policy, cfg.Gateway, pub, log.Named("approval"))
	disburse := disbursement.NewSweeper(tx, engine, approvals, log.Named("disbursement"))
	liquidate := liquidation.NewSweeper(tx, cfg.Policy.Liquidation, pub, log.Named("liquidation"))
	distribute := distribution.NewEngine(tx, cfg.Policy.Distribution, pub, log.Named("distribution"))

	runner := scheduler.NewRunner(scheduler.NewRedisLocker(rdb, "coop:batch:", cfg.BatchLockTTL), log.Named("scheduler"))
	jobs := []struct {
		name, spec string
		job        scheduler.Job
	}{
		{"disbursement", cfg.DisburseCron, func(ctx context.Context) (any, error) { return disburse.Sweep(ctx) }},
		{"liquidation", cfg.LiquidateCron, func(ctx context.Context) (any, error) { return liquidate.Sweep(ctx) }},
		{"distribution", cfg.DistributeCron, func(ctx context.Context) (any, error) { return distribute.Distribute(ctx) }},
	}
	for _, j := range jobs {
		if err := runner.Register(j.name, j.spec, j.job); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(middleware.Logger(), middleware.Recover())

	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	httpadp.Routes{
		Health: httpadp.NewHandler(map[string]httpadp.Pinger{
			"mysql": sqlDB.PingContext,
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		Approval:    httpadp.NewApprovalHandler(approvals, log),
		Loan:        httpadp.NewLoanHandler(loan.NewUsecase(tx, engine, cfg.Policy.Credit), credit.NewUsecase(tx, engine), log),
		Entry:       httpadp.NewEntryHandler(entry.NewUsecase(tx, cfg.Policy, log.Named("entry")), log),
		Batch:       httpadp.NewBatchHandler(runner, log),
		Metrics:     metrics.Handler(),
		Idempotency: appmw.Idempotency(rdb, appmw.IdempotencyConfig{TTL: cfg.IdempTTL}, log.Named("idempotency")),
	}.Mount(e)

	runner.Start()

	addr := ":" + cfg.AppPort
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdown); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := runner.Stop(shutdown); err != nil {
		log.Warn("scheduler stop", zap.Error(err))
	}
	return nil
}
