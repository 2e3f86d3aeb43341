package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	appcfg "audiototext/internal/config"
	"audiototext/internal/jobs"
	"audiototext/internal/journal"
	"audiototext/internal/media"
	"audiototext/internal/notify"
	"audiototext/internal/processor"
	"audiototext/internal/server"
	"audiototext/internal/storage"
	"audiototext/internal/transcribe"
)

func main() {
	// Optional .env so SMTP credentials and friends can be supplied the
	// same way in development and in the container.
	_ = godotenv.Load()

	// Load config
	cfg, err := appcfg.Load("")
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	// Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	// Delivery journal (SQLite)
	jrnl, err := journal.NewSQLiteJournal(cfg.Server.JournalPath)
	if err != nil {
		logger.Error("journal open", "err", err)
		os.Exit(1)
	}
	defer func() { _ = jrnl.Close() }()

	// Collaborators
	ffmpeg := media.New(os.TempDir())
	engine := transcribe.NewWhisperClient(cfg.Audio.EngineURL, cfg.Audio.Model, cfg.Audio.EngineAPIKey)
	orchestrator := transcribe.NewOrchestrator(logger, ffmpeg, engine, cfg.Audio.SegmentSeconds, cfg.Audio.ChunkThresholdSeconds)
	dispatcher := notify.NewDispatcher(logger, notify.NewSMTPTransport(cfg.SMTP))

	// Worker, queue and runner. The consumer goroutine starts lazily on the
	// first accepted submission.
	worker := processor.New(logger, cfg, orchestrator, dispatcher, jrnl)
	queue := jobs.NewQueue()
	runner := jobs.NewRunner(logger, queue, worker)

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// HTTP server
	svc := &server.Service{
		Log:      logger,
		Cfg:      cfg,
		Runner:   runner,
		Uploader: storage.NewUploader(cfg.Server.StorageDir),
		Prober:   ffmpeg,
		BaseCtx:  rootCtx,
	}
	httpSrv := server.NewHTTPServer(svc)

	// Run server in background
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "address", cfg.Server.Addr, "model", cfg.Audio.Model)
		if err := httpSrv.ListenAndServe(); err != nil && err.Error() != "http: Server closed" {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
		}
	}

	// Graceful shutdown: stop intake, then let the worker finish the
	// in-flight job within the grace period.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	runner.Shutdown(cfg.Server.ShutdownGrace)
	logger.Info("server stopped")
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
