package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/KotFed0t/tradedash_bot/config"
	"github.com/KotFed0t/tradedash_bot/data"
	"github.com/KotFed0t/tradedash_bot/data/cache"
	"github.com/KotFed0t/tradedash_bot/data/session"
	"github.com/KotFed0t/tradedash_bot/internal/externalApi/cloudStorageApi/googleDriveApi"
	"github.com/KotFed0t/tradedash_bot/internal/externalApi/dashboardApi"
	"github.com/KotFed0t/tradedash_bot/internal/reportGenerator/xslsxGenerator"
	"github.com/KotFed0t/tradedash_bot/internal/scheduler"
	"github.com/KotFed0t/tradedash_bot/internal/service/dashboardService"
	"github.com/KotFed0t/tradedash_bot/internal/tgbot"
	"github.com/KotFed0t/tradedash_bot/internal/transport/telegram"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, cfg)
	redisSession := session.NewRedisSession(redisClient, cfg)

	dashboardApiClient := dashboardApi.New(cfg)

	reportGenerator := xslsxGenerator.New()

	googleCloudStorage := googleDriveApi.New(ctx, cfg)

	dashboardSrv := dashboardService.New(cfg, redisSession, redisCache, dashboardApiClient, reportGenerator, googleCloudStorage)

	sched := scheduler.New()
	sched.NewIntervalJob("revalidate sessions", dashboardSrv.RevalidateSessions, cfg.Jobs.SessionRevalidateInterval, true)
	sched.NewIntervalJob("cleanup drive reports", googleCloudStorage.DeleteOldFiles, cfg.Jobs.DriveCleanupInterval, false)
	sched.Start()
	defer sched.Stop()

	tgController := telegram.NewController(cfg, dashboardSrv, redisSession)

	tgBot := tgbot.New(cfg, tgController, redisSession)
	tgBot.Start()
	defer tgBot.Stop()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
