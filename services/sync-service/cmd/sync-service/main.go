package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/calendarsync/libs/config"
	"github.com/md-rashed-zaman/calendarsync/libs/db"
	"github.com/md-rashed-zaman/calendarsync/libs/httpx"
	"github.com/md-rashed-zaman/calendarsync/libs/kafkax"
	"github.com/md-rashed-zaman/calendarsync/libs/mongox"
	otelx "github.com/md-rashed-zaman/calendarsync/libs/otel"
	"github.com/md-rashed-zaman/calendarsync/libs/redisx"
	"github.com/md-rashed-zaman/calendarsync/libs/runtime"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/browser"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/calsync"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/events"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/extract"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/metrics"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/storage"
)

type appointmentStore interface {
	calsync.Store
	Ping(ctx context.Context) error
}

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(config.String("SERVICE_NAME", "sync-service"), config.String("LOG_LEVEL", "info"))

	if err := run(logger); err != nil {
		logger.Error("sync service failed", "err", err)
		os.Exit(1)
	}
	logger.Info("sync service stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelCfg, err := otelx.ConfigFromEnv(cfg.Service)
	if err != nil {
		logger.Warn("invalid tracing config, tracing disabled", "err", err)
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	checks := []runtime.ReadyCheck{{Name: "store", Check: store.Ping}}

	var guard calsync.TickGuard
	rdb, err := redisx.Open(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		// The lock is an optimisation; run unguarded rather than not at all.
		logger.Warn("redis unavailable, sync lock disabled", "err", err)
	} else if rdb != nil {
		defer func() { _ = rdb.Close() }()
		guard = redisx.NewLock(rdb, "calendarsync:tick:"+cfg.Collection, cfg.LockTTL)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}

	publisher := events.NewPublisher(logger, events.PublisherConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	})
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka writer close failed", "err", err)
		}
	}()
	var notifier calsync.Notifier
	if publisher.Enabled() {
		notifier = publisher
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	logger.Info("starting browser", "headless", cfg.Browser.Headless, "base_url", cfg.Browser.BaseURL)
	page, err := browser.Launch(ctx, cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Error("browser close failed", "err", err)
		}
	}()
	checks = append(checks, runtime.ReadyCheck{Name: "browser", Check: page.Ping})

	engine := calsync.NewEngine(page, page, store, logger, calsync.EngineConfig{
		Extractor: extract.Extractor{
			Site:     cfg.Site,
			Owner:    cfg.Owner,
			Location: cfg.Location,
		},
		Notifier: notifier,
		Metrics:  m,
	})
	scheduler := calsync.NewScheduler(page, engine, logger, calsync.SchedulerConfig{
		Interval: cfg.Interval,
		Guard:    guard,
		Metrics:  m,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newHandler(logger, reg, scheduler, checks),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		logger.Info("http server stopped")
	}()

	return scheduler.Run(ctx)
}

// openStore connects the configured backend and prepares its indexes. Index
// failures are logged; the store still works without them.
func openStore(ctx context.Context, cfg appConfig, logger *slog.Logger) (appointmentStore, func(), error) {
	switch cfg.StoreDriver {
	case driverPostgres:
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		repo := storage.NewPostgresRepository(pool, cfg.Collection)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Warn("ensure appointments schema failed", "err", err)
		}
		logger.Info("store connected", "driver", driverPostgres, "table", cfg.Collection)
		return repo, pool.Close, nil
	default:
		client, err := mongox.Open(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo: %w", err)
		}
		repo := storage.NewMongoRepository(client, cfg.DBName, cfg.Collection)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("ensure appointment indexes failed", "err", err)
		}
		logger.Info("store connected", "driver", driverMongo, "db", cfg.DBName, "collection", cfg.Collection)
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Error("mongo disconnect failed", "err", err)
			}
		}
		return repo, closeFn, nil
	}
}

type statusSource interface {
	State() calsync.State
	LastTick() (calsync.TickReport, bool)
}

type statusResponse struct {
	State    string              `json:"state"`
	LastTick *calsync.TickReport `json:"last_tick,omitempty"`
}

func newHandler(logger *slog.Logger, gatherer prometheus.Gatherer, status statusSource, checks []runtime.ReadyCheck) http.Handler {
	mux := runtime.NewBaseMuxWithReady(2*time.Second, checks...)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		resp := statusResponse{State: status.State().String()}
		if last, ok := status.LastTick(); ok {
			resp.LastTick = &last
		}
		runtime.WriteJSON(w, http.StatusOK, resp)
	})

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, "/healthz", "/readyz", "/metrics"),
		httpx.WithTimeout(10*time.Second),
	)
	return otelhttp.NewHandler(handler, "sync")
}
