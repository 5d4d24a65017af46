package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadpool-crm/internal/activity"
	"leadpool-crm/internal/auth"
	"leadpool-crm/internal/config"
	"leadpool-crm/internal/httpapi"
	"leadpool-crm/internal/importer"
	"leadpool-crm/internal/jobs"
	"leadpool-crm/internal/leads"
	"leadpool-crm/internal/outreach"
	"leadpool-crm/internal/realtime"
	"leadpool-crm/internal/settings"
	"leadpool-crm/internal/stats"
	"leadpool-crm/internal/users"
	"leadpool-crm/migrations"
	"leadpool-crm/pkg/logger"
	"leadpool-crm/pkg/metrics"
	"leadpool-crm/pkg/phone"
	"leadpool-crm/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	applied, err := utils.Migrate(rootCtx, db, migrations.FS)
	if err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	if len(applied) > 0 {
		log.Info("migrations applied", "versions", applied)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	phones := phone.NewNormalizer(cfg.Phone.DefaultRegion)
	feed := realtime.NewFeed(rdb, realtime.DefaultChannel)

	leadStore := leads.NewSelfHealingStore(leads.NewPostgresStore(db), log.With("component", "lead-store")).OnHeal(m.ObserveHeal)
	activitySvc := activity.NewService(activity.NewPostgresRepo(db), leads.NewContactStamper(leadStore))
	leadSvc := leads.NewService(leadStore, activitySvc, leads.Options{Notifier: feed, Phones: phones})
	userSvc := users.NewService(users.NewPostgresRepo(db), authManager, phones, users.Bootstrap{
		Email:    cfg.Bootstrap.AdminEmail,
		Name:     cfg.Bootstrap.AdminName,
		Phone:    cfg.Bootstrap.AdminPhone,
		Password: cfg.Bootstrap.AdminPassword,
	})
	settingSvc := settings.NewService(settings.NewPostgresRepo(db))

	engineOpts := importer.Options{
		Locker:   utils.NewLocker(rdb, "crm:lock:"),
		Observer: m,
		Phones:   phones,
		Timeout:  cfg.Sync.Timeout,
	}
	src, err := importer.NewSheetsSource(rootCtx, importer.SheetsConfig{
		ServiceAccountEmail: cfg.Sheets.ServiceAccountEmail,
		PrivateKey:          cfg.Sheets.PrivateKey,
		SpreadsheetID:       cfg.Sheets.SpreadsheetID,
		Range:               cfg.Sheets.Range,
	}, log)
	switch {
	case errors.Is(err, importer.ErrSyncDisabled):
		log.Warn("google sheets credentials missing; spreadsheet sync disabled")
	case err != nil:
		log.Error("google sheets init failed; spreadsheet sync disabled", "err", err)
	default:
		engineOpts.Source = src
	}
	engine := importer.NewEngine(leadStore, importer.NewPostgresRunRepo(db), engineOpts)

	scheduler, err := jobs.NewScheduler(engine, cfg.Sync.Schedule, cfg.Sync.Timeout, log)
	if err != nil {
		log.Error("scheduler init failed", "err", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		log.Error("scheduler start failed", "err", err)
		os.Exit(1)
	}

	h := httpapi.Handlers{
		Auth:         authManager,
		Users:        userSvc,
		Leads:        leadSvc,
		Activity:     activitySvc,
		Importer:     engine,
		Outreach:     outreach.NewService(leadSvc, activitySvc, settingSvc),
		Settings:     settingSvc,
		Stats:        stats.NewService(leadStore, activitySvc, userSvc),
		Feed:         feed,
		Metrics:      m,
		LoginLimiter: httpapi.NewRateLimiter(20, 5),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(m.Middleware())

	registerRoutes(r, h, db, m)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout stays 0: /v1/stream holds responses open.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "sync_enabled", engine.SyncEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	scheduler.Stop(shutdownCtx)

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
