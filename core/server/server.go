package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/cache"
	"github.com/jonlee90/thepuppyday-sub014/core/config"
	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/database"
	coreMiddleware "github.com/jonlee90/thepuppyday-sub014/core/middleware"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/core/queue"
	"github.com/jonlee90/thepuppyday-sub014/core/storage"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync"
	"github.com/jonlee90/thepuppyday-sub014/modules/importer"
	"github.com/jonlee90/thepuppyday-sub014/modules/notification"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
)

const shutdownTimeout = 10 * time.Second

// Run wires the whole application and blocks until SIGINT/SIGTERM.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Server.LogLevel)

	db, err := database.InitDB(database.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return err
	}

	c, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}

	q := queue.New(queue.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	var uploader storage.Uploader
	if cfg.S3.Bucket != "" {
		uploader = storage.NewS3Uploader(storage.S3Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	} else {
		logger.Warn("S3 bucket not configured, sync-log archival disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = constants.DefaultTimeout
	e.Server.WriteTimeout = constants.DefaultTimeout
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RequestID())

	api := e.Group("/api")
	mw := coreMiddleware.NewMiddleware(c)

	notifSvc := notification.Init(api, db, mw)
	syncModule, err := calendarsync.Init(api, db, mw, c, q, uploader, notifSvc, cfg)
	if err != nil {
		return fmt.Errorf("init calendarsync: %w", err)
	}
	if err := importer.Init(api, db, mw, syncModule, cfg); err != nil {
		return fmt.Errorf("init importer: %w", err)
	}

	// Task workers.
	go func() {
		if err := q.Start(); err != nil {
			logger.Error("queue worker stopped", "error", err)
		}
	}()

	// Periodic jobs. Each runs with a context bounded well under its own
	// period so a stuck provider call cannot pile sweeps on top of each
	// other.
	scheduler := cron.New()
	scheduler.Schedule(cron.Every(constants.RetrySweepInterval), cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.RetrySweepInterval/2)
		defer cancel()
		if err := syncModule.RetrySvc.ProcessDue(ctx); err != nil {
			logger.Error("retry sweep failed", "error", err)
		}
	}))
	scheduler.Schedule(cron.Every(6*time.Hour), cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := syncModule.ChannelSvc.RenewExpiring(ctx); err != nil {
			logger.Error("channel renewal failed", "error", err)
		}
	}))
	if _, err := scheduler.AddFunc("30 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if err := syncModule.MaintenanceSvc.RunDaily(ctx); err != nil {
			logger.Error("daily maintenance failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	scheduler.Start()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := e.Start(addr); err != nil {
			logger.Info("http server stopped", "error", err)
		}
	}()
	logger.Info("server started", "addr", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	cronCtx := scheduler.Stop()
	q.Shutdown()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}
	logger.Info("shutdown complete")
	return nil
}
