package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holdmymap/holdmymap/internal/backup"
	"github.com/holdmymap/holdmymap/internal/config"
	"github.com/holdmymap/holdmymap/internal/server"
	"github.com/holdmymap/holdmymap/internal/storage"
	"github.com/holdmymap/holdmymap/internal/storage/postgres"
	"github.com/holdmymap/holdmymap/internal/storage/sqlite"
	"github.com/holdmymap/holdmymap/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logging.SetupJSON()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.Store
	var sqliteStore *sqlite.SQLiteStore

	switch cfg.Database.Type {
	case config.DatabasePostgres:
		store, err = postgres.New(cfg.Database.URL)
	default:
		sqliteStore, err = sqlite.New(cfg.Database.Path)
		store = sqliteStore
	}
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("storage initialized", "backend", cfg.Database.Type)

	if cfg.Backup.Enabled {
		client, err := backup.NewS3Client(ctx, cfg.Backup)
		if err != nil {
			slog.Error("failed to build backup client", "error", err)
			os.Exit(1)
		}
		snapshotter := backup.NewSnapshotter(sqliteStore.DB(), client, cfg.Backup.Bucket, cfg.Backup.Prefix)
		go snapshotter.Run(ctx, cfg.Backup.Interval)
		slog.Info("backup snapshots enabled",
			"bucket", cfg.Backup.Bucket, "interval", cfg.Backup.Interval)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.NewRouter(store),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	slog.Info("listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server closed")
}
