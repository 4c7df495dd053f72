package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"aicca-realtime/internal/bootstrap"
	"aicca-realtime/internal/config"
	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/tracer"
)

func main() {
	// 0. Initialize Tracer
	shutdownTracer := tracer.InitTracer("aicca-devserver")
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	defer sysLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Bootstrap storage, registry, hub and routes
	dev, err := bootstrap.NewDevServer(ctx, cfg, sysLogger)
	if err != nil {
		log.Fatalf("Failed to initialize dev server: %v", err)
	}

	// 3. Run until interrupted
	errCh := make(chan error, 1)
	go func() { errCh <- dev.Server.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Dev server stopped: %v", err)
		}
	case <-ctx.Done():
		log.Println("Shutting down dev server...")
		if err := dev.Close(); err != nil {
			log.Printf("[WARN] Shutdown error: %v", err)
		}
	}
}
