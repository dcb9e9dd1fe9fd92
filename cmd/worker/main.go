package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/odyssey-erp/replenishment/internal/app"
	"github.com/odyssey-erp/replenishment/jobs"
)

func main() {
	if app.InTestMode() {
		fmt.Fprintln(os.Stderr, "test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	defer func() { _ = logger.Sync() }()

	rt, err := app.NewRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init runtime", zap.Error(err))
	}
	defer rt.Close()

	cron, err := jobs.PipelineCron(cfg.CronPipeline, cfg.CronSchedule)
	if err != nil {
		logger.Fatal("build cron tasks", zap.Error(err))
	}
	stageJob := jobs.NewStageJob(rt.Runner, logger.Named("jobs"))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger.Named("worker"),
		Location:  cfg.Location(),
		Handlers:  stageJob.Handlers(),
		Cron:      cron,
	})
	if err != nil {
		logger.Fatal("init worker", zap.Error(err))
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", zap.Error(err))
		os.Exit(1)
	}
}
