package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/reservations/config"
	"github.com/Domenick1991/reservations/internal/bootstrap"
	"github.com/Domenick1991/reservations/internal/kafka"
	"github.com/Domenick1991/reservations/internal/logger"
	"github.com/Domenick1991/reservations/internal/notify"
	"github.com/Domenick1991/reservations/internal/service/reconciler"
	"github.com/go-co-op/gocron/v2"
)

func main() {
	cfg, err := config.LoadConfig(bootstrap.ConfigPath())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg := logger.New(cfg.Log, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, lg *slog.Logger) error {
	store, err := bootstrap.OpenStore(ctx, cfg.Database, lg)
	if err != nil {
		return err
	}
	defer store.Close()

	redisCache, err := bootstrap.OpenCache(ctx, cfg.Redis, lg)
	if err != nil {
		return err
	}
	var opts []reconciler.Option
	if redisCache != nil {
		defer redisCache.Close()
		opts = append(opts, reconciler.WithSweepLock(redisCache, cfg.Reconciler.LockTTL))
	}

	producer := bootstrap.OpenProducer(ctx, cfg.Kafka, lg)
	if producer != nil {
		defer producer.Close()
	}

	manager := bootstrap.NewManager(cfg, store, redisCache, producer, lg)
	sweeper := reconciler.New(store, manager, append(opts, reconciler.WithLogger(lg))...)

	scheduler, err := gocron.NewScheduler(gocron.WithLogger(gocron.NewLogger(gocron.LogLevelWarn)))
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.Reconciler.Interval),
		gocron.NewTask(func() {
			if _, err := sweeper.Sweep(ctx); err != nil {
				lg.Warn("sweep failed", "error", err)
			}
		}),
		gocron.WithName("reconcile-pools"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}
	scheduler.Start()
	lg.Info("reconciler scheduled", "interval", cfg.Reconciler.Interval)

	if cfg.Kafka.Enabled() {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic)
		defer consumer.Close()

		sender := notify.NewSender(lg)
		go func() {
			if err := consumer.ConsumeEvents(ctx, sender.Handle); err != nil && ctx.Err() == nil {
				lg.Error("consumer stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	lg.Info("received signal, shutting down")
	return scheduler.Shutdown()
}
