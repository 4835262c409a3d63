package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/noah-isme/points-ledger-api/internal/handler"
	"github.com/noah-isme/points-ledger-api/internal/middleware"
	"github.com/noah-isme/points-ledger-api/internal/repository"
	"github.com/noah-isme/points-ledger-api/internal/repository/memory"
	"github.com/noah-isme/points-ledger-api/internal/router"
	"github.com/noah-isme/points-ledger-api/internal/service"
	"github.com/noah-isme/points-ledger-api/pkg/cache"
	"github.com/noah-isme/points-ledger-api/pkg/config"
	"github.com/noah-isme/points-ledger-api/pkg/database"
	"github.com/noah-isme/points-ledger-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/points-ledger-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/points-ledger-api/pkg/middleware/requestid"
	"github.com/noah-isme/points-ledger-api/pkg/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.Pinger{}
	repos, db, err := openStore(cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("store init failed", "driver", cfg.Database.Driver, "error", err)
	}
	if db != nil {
		defer db.Close() //nolint:errcheck
		checks["database"] = db
	}

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis, cfg.Ledger.StoreTimeout)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, settings cache disabled", "error", err)
		} else {
			defer client.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(client, logr)
			checks["redis"] = handler.PingerFunc(func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			})
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.SettingsTTL, logr, cacheRepo != nil)

	sender, closeSender := buildSender(cfg, logr)
	defer closeSender()
	dispatcher := notify.NewDispatcher(sender, notify.NewCooldown(cfg.Notifications.Cooldown, nil), notify.DispatcherConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		Logger:     logr,
		Observer: func(kind notify.Kind, outcome string) {
			metricsSvc.RecordNotification(string(kind), outcome)
		},
	})
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	validate := validator.New()
	auditSvc := service.NewAuditService(repos.Audit, metricsSvc, logr)
	settingsSvc := service.NewSettingsService(repos.Settings, cacheSvc, auditSvc, service.SettingsDefaults{
		AlertThreshold: cfg.Ledger.AlertThreshold,
		AdminEmail:     cfg.Notifications.AdminEmail,
	}, cfg.Cache.SettingsTTL, validate, logr)
	detector := service.NewDuplicateDetector(repos.Students, service.DuplicateConfig{
		Threshold:  cfg.Duplicates.Threshold,
		MaxResults: cfg.Duplicates.MaxResults,
	}, metricsSvc, logr)
	studentSvc, err := service.NewStudentService(repos.Students, detector, repos.DuplicateLog, auditSvc, validate, logr)
	if err != nil {
		logr.Sugar().Fatalw("student service init failed", "error", err)
	}
	catalogSvc := service.NewCatalogService(repos.Activities, repos.Prizes, auditSvc, validate, logr)
	ledgerSvc := service.NewLedgerService(repos.Ledger, repos.Students, repos.Activities, repos.Prizes,
		settingsSvc, dispatcher, metricsSvc, service.LedgerConfig{
			StoreTimeout: cfg.Ledger.StoreTimeout,
			DefaultActor: cfg.Ledger.DefaultActor,
		}, validate, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins,
		[]string{middleware.ActorHeader, reqidmiddleware.Header},
		[]string{reqidmiddleware.Header}))

	router.Register(r, cfg, router.Dependencies{
		Students: handler.NewStudentHandler(studentSvc),
		Ledger:   handler.NewLedgerHandler(ledgerSvc),
		Catalog:  handler.NewCatalogHandler(catalogSvc),
		Admin:    handler.NewAdminHandler(auditSvc, settingsSvc),
		Ops:      handler.NewMetricsHandler(metricsSvc, checks),
		Metrics:  metricsSvc,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

// openStore builds the repositories for the configured driver. The returned db is nil for the
// in-memory store.
func openStore(cfg *config.Config, logr *zap.Logger) (service.Repositories, *sqlx.DB, error) {
	switch cfg.Database.Driver {
	case config.StoreDriverMemory:
		logr.Warn("using in-memory store, data is lost on restart")
		store := memory.New()
		return service.Repositories{
			Ledger:       store.Ledger(),
			Students:     store.Students(),
			Activities:   store.Activities(),
			Prizes:       store.Prizes(),
			DuplicateLog: store.DuplicateLog(),
			Audit:        store.Audit(),
			Settings:     store.Settings(),
		}, nil, nil
	case config.StoreDriverPostgres:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return service.Repositories{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(db); err != nil {
				_ = db.Close()
				return service.Repositories{}, nil, err
			}
			logr.Info("schema migrations applied")
		}
		return service.Repositories{
			Ledger:       repository.NewLedgerRepository(db),
			Students:     repository.NewStudentRepository(db),
			Activities:   repository.NewActivityRepository(db),
			Prizes:       repository.NewPrizeRepository(db),
			DuplicateLog: repository.NewDuplicateLogRepository(db),
			Audit:        repository.NewAuditRepository(db),
			Settings:     repository.NewSettingsRepository(db),
		}, db, nil
	default:
		return service.Repositories{}, nil, fmt.Errorf("unknown store driver %q", cfg.Database.Driver)
	}
}

// buildSender combines the configured notification drivers. Drivers that cannot start are
// logged and skipped; with none left the log driver is used.
func buildSender(cfg *config.Config, logr *zap.Logger) (notify.Sender, func()) {
	var (
		senders []notify.Sender
		closers []func()
	)
	for _, driver := range cfg.Notifications.Drivers {
		switch driver {
		case "log":
			senders = append(senders, notify.NewLogSender(logr))
		case "smtp":
			senders = append(senders, notify.NewSMTPSender(notify.SMTPConfig{
				Host:       cfg.Notifications.MailServer,
				Port:       cfg.Notifications.MailPort,
				Username:   cfg.Notifications.MailUsername,
				Password:   cfg.Notifications.MailPassword,
				Fallback:   notify.ParseRecipients(cfg.Notifications.AdminEmail),
				Production: cfg.Env == config.EnvProduction,
			}, nil))
		case "nats":
			if cfg.Notifications.NATSURL == "" {
				logr.Warn("nats notification driver enabled without NATS_URL")
				continue
			}
			nc, err := nats.Connect(cfg.Notifications.NATSURL, nats.Name("points-ledger-api"))
			if err != nil {
				logr.Sugar().Warnw("nats unavailable, driver skipped", "url", cfg.Notifications.NATSURL, "error", err)
				continue
			}
			closers = append(closers, nc.Close)
			senders = append(senders, notify.NewNATSSender(nc, cfg.Notifications.NATSSubject, "points-ledger-api"))
		default:
			logr.Sugar().Warnw("unknown notification driver", "driver", driver)
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	switch len(senders) {
	case 0:
		return notify.NewLogSender(logr), closeAll
	case 1:
		return senders[0], closeAll
	default:
		return notify.MultiSender(senders), closeAll
	}
}
