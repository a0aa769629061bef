package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-pos-ledger/internal/config"
	kafkax "github.com/ariefcatur/go-pos-ledger/internal/kafka"
	"github.com/ariefcatur/go-pos-ledger/internal/logger"
	"github.com/ariefcatur/go-pos-ledger/internal/notify"
	"github.com/ariefcatur/go-pos-ledger/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", cfg.App.Name+"-notifier"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("notifier exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required for the notifier")
	}
	if cfg.Redis.Addr == "" {
		return errors.New("redis.addr is required for the notifier")
	}
	rdb, err := redisx.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	svc := &notify.Service{
		Dedup:   notify.RedisDedup{RDB: rdb, Service: "notifier"},
		Board:   redisx.NewLowStockBoard(rdb),
		Takings: notify.RedisTakings{RDB: rdb, Loc: cfg.Reports.Location},
		Log:     log.Named("notify"),
	}

	alertsC := kafkax.NewConsumer(cfg.Kafka.Brokers, cfg.Notifier.Group, cfg.Kafka.AlertTopic, cfg.Notifier.Workers, log.Named("kafka"))
	salesC := kafkax.NewConsumer(cfg.Kafka.Brokers, cfg.Notifier.Group, cfg.Kafka.SaleTopic, cfg.Notifier.Workers, log.Named("kafka"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return alertsC.Start(gctx, svc.HandleAlert) })
	g.Go(func() error { return salesC.Start(gctx, svc.HandleSale) })
	log.Info("notifier consuming",
		zap.Strings("topics", []string{cfg.Kafka.AlertTopic, cfg.Kafka.SaleTopic}),
		zap.String("group", cfg.Notifier.Group),
		zap.Int("workers", cfg.Notifier.Workers))
	return g.Wait()
}
