package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"adventure/internal/app/web"
	"adventure/internal/config"
)

func main() {
	cfg := config.NewConfig()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	defer func() {
		if err := logger.Sync(); err != nil {
			sugar.Errorw("Failed to sync logger", "error", err)
		}
	}()

	sugar.Infow("Starting app",
		"DebugMode", cfg.DebugMode,
		"ChatService", cfg.ChatService,
		"BindAddr", cfg.BindAddr,
	)

	// Credentials entered through the UI live in the settings file only for
	// this run; release it on any termination path.
	store := config.NewStore(cfg.SettingsPath, sugar)
	defer store.Release()

	server := web.NewServer(cfg, store, sugar)
	defer server.Close()

	srv := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("Web UI listening", "addr", "http://"+srv.Addr+"/")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) && err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		sugar.Infow("Shutting down", "signal", sig.String())
	case err := <-errCh:
		sugar.Errorw("Server error", "error", err)
	}

	ctx, cancel := context.WithTimeoutCause(context.Background(), 5*time.Second, errors.New("shutdown timeout"))
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		sugar.Warnw("Graceful shutdown error", "error", err)
		_ = srv.Close()
	}
	sugar.Infow("Server stopped")
}
