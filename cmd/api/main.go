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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-pos-ledger/internal/alerts"
	"github.com/ariefcatur/go-pos-ledger/internal/auth"
	"github.com/ariefcatur/go-pos-ledger/internal/catalog"
	"github.com/ariefcatur/go-pos-ledger/internal/config"
	"github.com/ariefcatur/go-pos-ledger/internal/events"
	"github.com/ariefcatur/go-pos-ledger/internal/httpx"
	kafkax "github.com/ariefcatur/go-pos-ledger/internal/kafka"
	"github.com/ariefcatur/go-pos-ledger/internal/logger"
	"github.com/ariefcatur/go-pos-ledger/internal/postgres"
	"github.com/ariefcatur/go-pos-ledger/internal/redisx"
	"github.com/ariefcatur/go-pos-ledger/internal/reports"
	"github.com/ariefcatur/go-pos-ledger/internal/sales"
	"github.com/ariefcatur/go-pos-ledger/internal/store"
	"github.com/ariefcatur/go-pos-ledger/internal/store/memstore"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateAPI()
	}
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
	log = log.With(zap.String("service", cfg.App.Name), zap.String("env", cfg.App.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis backs optional features only; the ledger runs without it.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redisx.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, continuing without cache, idempotency and shared invoice sequence", zap.Error(err))
		} else {
			defer rdb.Close()
		}
	}

	// Producers get their own context so they can flush after the HTTP server stops.
	pctx, cancelProducers := context.WithCancel(context.Background())
	defer cancelProducers()
	var pub events.Publisher = events.Nop{}
	var producers []*kafkax.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		saleProd := kafkax.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.SaleTopic, 1024, log.Named("kafka"))
		alertProd := kafkax.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic, 1024, log.Named("kafka"))
		saleProd.Start(pctx)
		alertProd.Start(pctx)
		producers = append(producers, saleProd, alertProd)
		pub = &events.KafkaPublisher{Sales: saleProd, Alerts: alertProd, Service: cfg.App.Name}
	}

	mon := alerts.NewMonitor(st, pub, log.Named("alerts"))
	cat := catalog.New(st, log.Named("catalog"), catalog.Options{
		DefaultThreshold: cfg.Catalog.DefaultLowStockThreshold,
		ReserveAttempts:  cfg.Sales.ReserveAttempts,
	}, mon)

	var invoices sales.InvoiceGenerator = sales.TimestampInvoices{Prefix: cfg.Sales.InvoicePrefix}
	if rdb != nil {
		invoices = sales.FallbackInvoices{
			Primary:   redisx.NewInvoiceSequence(rdb, cfg.Sales.InvoicePrefix, cfg.Reports.Location),
			Secondary: invoices,
			Log:       log.Named("invoices"),
		}
	}
	proc := sales.NewProcessor(cat, st, invoices, sales.FlatTax{Rate: cfg.Sales.TaxRate}, pub, log.Named("sales"), sales.Options{
		InvoiceAttempts:     cfg.Sales.InvoiceAttempts,
		CompensationTimeout: cfg.Sales.CompensationTimeout,
	})

	var cache reports.Cache
	var idem httpx.Idempotency
	if rdb != nil {
		cache = redisx.NewReportCache(rdb, cfg.Reports.CacheTTL, log.Named("report-cache"))
		idem = redisx.NewSaleIdempotency(rdb, cfg.HTTP.RequestTimeout+5*time.Second)
	}
	agg := reports.NewAggregator(st, reports.FlatMargin{Fraction: cfg.Reports.MarginFraction}, cache, log.Named("reports"),
		reports.Options{Location: cfg.Reports.Location})

	dir, err := auth.ParseDirectory(cfg.Auth.Users)
	if err != nil {
		return fmt.Errorf("auth.users: %w", err)
	}

	httpLog := log.Named("http")
	router := httpx.NewRouter(httpLog, cfg.HTTP.RequestTimeout)
	(&httpx.API{
		Tokens:   auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Products: &httpx.ProductsHandler{Catalog: cat, Alerts: mon, Log: httpLog},
		Sales:    &httpx.SalesHandler{Sales: proc, Reports: agg, Idem: idem, Log: httpLog},
		Reports:  &httpx.ReportsHandler{Reports: agg, Log: httpLog},
		Users:    &httpx.UsersHandler{Directory: dir, Log: httpLog},
		Log:      httpLog,
	}).Register(router)
	srv := httpx.NewServer(cfg.HTTP, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTP.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	err = g.Wait()

	for _, p := range producers {
		p.Close()
	}
	cancelProducers()
	for _, p := range producers {
		p.WaitClosed()
	}
	return err
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		return postgres.NewStore(pool), pool.Close, nil
	default:
		log.Warn("using the in-memory store; data is lost on restart")
		st, err := memstore.New()
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	}
}
