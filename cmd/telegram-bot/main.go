package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"little-lemon/internal/api"
	"little-lemon/internal/app"
	"little-lemon/internal/config"
	"little-lemon/internal/database"
	"little-lemon/internal/logger"
	"little-lemon/internal/menu"
	"little-lemon/internal/metrics"
	"little-lemon/internal/profile"
	"little-lemon/internal/telegram"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		logger.New(logger.Config{}).Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "telegram-bot"})

	if err := cfg.RequireTelegram(); err != nil {
		log.Error("Invalid Telegram configuration", "error", err)
		os.Exit(1)
	}

	// 2. Storage
	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	metricsStore := metrics.NewStore(db.SQL)
	syncer := app.NewSyncer(menu.NewStore(db.SQL), menu.NewClient(cfg), metricsStore, log)
	application := app.NewApp(cfg, syncer, profile.NewStore(db.SQL), metricsStore, log)

	// 3. Warm the cache so the first chat does not wait on the download
	warmCtx, cancelWarm := context.WithTimeout(context.Background(), cfg.FetchTimeout)
	if _, err := syncer.EnsureMenuReady(warmCtx); err != nil {
		log.Warn("Menu not cached yet, will retry on first request", "error", err)
	}
	cancelWarm()

	// 4. Initialize Telegram Bot
	bot, err := telegram.NewBot(cfg, application, log)
	if err != nil {
		log.Error("Failed to initialize Telegram Bot", "error", err)
		os.Exit(1)
	}

	// 5. Start Server with Graceful Shutdown
	mux := http.NewServeMux()
	bot.RegisterHandlers(mux)
	api.NewServer(application, db.Path, log).Routes(mux)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: logger.HTTPMiddleware(log, mux),
	}

	go func() {
		log.Info("Telegram Bot Server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		return
	}

	log.Info("Server exiting")
}
