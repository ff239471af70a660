package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"contxtra_bot/internal/admin"
	"contxtra_bot/internal/analyzer"
	"contxtra_bot/internal/backend"
	"contxtra_bot/internal/bot"
	"contxtra_bot/internal/config"
	"contxtra_bot/internal/orchestrator"
	"contxtra_bot/internal/quota"
	"contxtra_bot/internal/scheduler"
	"contxtra_bot/internal/session"
	"contxtra_bot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	baas := backend.New(http.DefaultClient, cfg.SupabaseURL, cfg.SupabaseAnonKey)
	profiles := bot.ProfilesFunc(func(token string) admin.Profiles { return baas.WithToken(token) })
	sessions := session.NewStore(store)

	b, err := bot.New(cfg.TelegramBotToken, cfg, bot.Deps{
		Store:    store,
		Auth:     baas,
		Quota:    quota.NewTracker(quota.NewIPLookup(http.DefaultClient, cfg.IPLookupURL), baas),
		Analyzer: analyzer.New(http.DefaultClient, cfg.AnalyzerURL),
		Users: orchestrator.UsersFunc(func(token string) orchestrator.UserAPI {
			return baas.WithToken(token)
		}),
		Profiles: profiles,
		Visits:   orchestrator.NewVisits(),
		Sessions: sessions,
	}, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.AdminDigestCron != "" {
		sched, err := scheduler.New(cfg.AdminDigestCron, cfg.AdminDigestTZ, scheduler.Deps{
			Sessions:  sessions,
			Refresher: baas,
			Profiles:  profiles,
			Sender:    b,
		}, log)
		if err != nil {
			log.Error("create scheduler", "cron", cfg.AdminDigestCron, "error", err)
			os.Exit(1)
		}
		log.Info("admin digest enabled", "cron", cfg.AdminDigestCron, "next", sched.Next())
		go sched.Run(ctx)
	}

	log.Info("starting bot")

	b.Run(ctx)

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
