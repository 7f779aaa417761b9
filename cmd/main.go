package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/King-Austin/securecipher-bankingapi/internal/config"
	"github.com/King-Austin/securecipher-bankingapi/internal/server"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Bank: No .env file found, relying on system env vars")
	}
	cfg := config.Load()

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer srv.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		srv.Logger.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := srv.GRPC.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		srv.Logger.Info("shutting down")
	case err := <-errCh:
		srv.Logger.Error("server failed", zap.Error(err))
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.HTTP.Shutdown(shutdownCtx); err != nil {
		srv.Logger.Warn("HTTP shutdown", zap.Error(err))
	}
	srv.GRPC.Stop()
}
