// Command dispatchd runs the field-service dispatch core: REST and
// WebSocket surface, matcher, no-show timers, emergency layer, and the
// SLA monitor, against a Postgres or in-memory store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/api"
	"github.com/alanoney1-alt/UpTend-sub013/emergency"
	"github.com/alanoney1-alt/UpTend-sub013/engine"
	"github.com/alanoney1-alt/UpTend-sub013/geo"
	"github.com/alanoney1-alt/UpTend-sub013/hub"
	"github.com/alanoney1-alt/UpTend-sub013/match"
	"github.com/alanoney1-alt/UpTend-sub013/notify"
	"github.com/alanoney1-alt/UpTend-sub013/observability"
	"github.com/alanoney1-alt/UpTend-sub013/pro"
	"github.com/alanoney1-alt/UpTend-sub013/sla"
	"github.com/alanoney1-alt/UpTend-sub013/store"
	"github.com/alanoney1-alt/UpTend-sub013/store/memory"
	"github.com/alanoney1-alt/UpTend-sub013/store/postgres"
	redisstore "github.com/alanoney1-alt/UpTend-sub013/store/redis"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "listen address override")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := dispatch.LoadConfig(*configPath)
	if err != nil {
		logger.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("dispatchd exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(ctx context.Context, cfg dispatch.Config, logger *slog.Logger) error {
	// ──────────────────────────────────────────────────
	// Storage
	// ──────────────────────────────────────────────────
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, postgres.WithLogger(logger))
		if err != nil {
			return err
		}
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		st = pg
		logger.Info("using postgres store")
	} else {
		st = memory.New()
		logger.Warn("using in-memory store, data will not survive restarts")
	}
	defer st.Close()

	var pros pro.Store = st
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pros = redisstore.New(rdb, st, redisstore.WithLogger(logger))
		logger.Info("redis presence overlay enabled", slog.String("addr", cfg.RedisAddr))
	}

	// ──────────────────────────────────────────────────
	// Geo, hub, notifications
	// ──────────────────────────────────────────────────
	var (
		ranker   geo.Ranker
		geocoder geo.Geocoder
	)
	if cfg.MapsAPIKey != "" {
		client := geo.NewClient(cfg.MapsAPIKey, logger)
		ranker, geocoder = client, client
	} else {
		logger.Warn("no maps api key, matcher runs in degraded mode")
	}
	matcher := match.New(pros, ranker, logger)

	h := hub.New(logger, hub.WithHeartbeat(cfg.HeartbeatInterval()))
	h.Start()
	defer h.Stop()

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, logger)
	}

	// ──────────────────────────────────────────────────
	// Engine, emergency layer, SLA monitor
	// ──────────────────────────────────────────────────
	metrics := observability.NewMetricsExtension(prometheus.DefaultRegisterer)
	eng := engine.New(st, pros, logger,
		engine.WithMatcher(matcher),
		engine.WithGeocoder(geocoder),
		engine.WithBroadcaster(h),
		engine.WithNotifier(notifier),
		engine.WithAdminContact(cfg.AdminPhone, cfg.AdminEmail),
		engine.WithMatchRadius(cfg.MatchRadiusMiles),
		engine.WithExtension(metrics),
	)
	defer eng.Shutdown(context.Background())
	observability.RegisterHubGauges(prometheus.DefaultRegisterer, h)

	emrg := emergency.NewDispatcher(st, pros, matcher, logger,
		emergency.WithRadius(cfg.EmergencyRadiusMiles),
		emergency.WithSurgeStore(st),
		emergency.WithBroadcaster(h),
		emergency.WithNotifier(notifier),
		emergency.WithClaimFunc(eng.Accept),
		emergency.WithExtensions(eng.Extensions()),
	)

	monitor := sla.NewMonitor(st, notifier, logger,
		sla.WithBroadcaster(h),
		sla.WithAdminContact(cfg.AdminPhone, cfg.AdminEmail),
	)
	if err := monitor.Start(); err != nil {
		return err
	}
	defer monitor.Stop()

	// ──────────────────────────────────────────────────
	// HTTP
	// ──────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.New(eng, emrg, h, pros, logger).Router(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("dispatchd listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
