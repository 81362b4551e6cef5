package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"ros-node-supervisor/internal/api"
	"ros-node-supervisor/internal/common/config"
	"ros-node-supervisor/internal/common/logger"
	"ros-node-supervisor/internal/nodeproc"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting node supervisor service...")

	// 3. Connect to the optional NATS lifecycle event bus. An empty URL
	// disables it entirely; nothing about supervision depends on it.
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name(cfg.NATS.ClientID))
		if err != nil {
			log.Warn("failed to connect to NATS, continuing without lifecycle events", zap.Error(err))
		} else {
			defer nc.Close()
			log.Info("connected to NATS event bus", zap.String("url", cfg.NATS.URL))
		}
	}

	// 4. Build the node registry and start its background tree monitor.
	registry := nodeproc.NewRegistry(nodeproc.RegistryConfig{
		RosDistro:          cfg.Supervisor.RosDistro,
		LaunchTimeout:      cfg.Supervisor.LaunchTimeout(),
		MonitorInterval:    cfg.Supervisor.MonitorInterval(),
		GraceTimeout:       cfg.Supervisor.GraceTimeout(),
		EventQueueCapacity: cfg.Supervisor.EventQueueCapacity,
		VerboseCapture:     cfg.Supervisor.VerboseCapture,
	}, nc, cfg.NATS.Subject, log)

	registry.Start()
	log.Info("tree monitor started", zap.Duration("interval", cfg.Supervisor.MonitorInterval()))

	// 5. Set up the HTTP server.
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(api.Recovery(log), api.RequestLogger(log), api.CORS(), api.ErrorHandler(log))

	api.SetupRoutes(router, registry, log)

	port := cfg.Server.Port
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("HTTP server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	// 6. Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down node supervisor service...")

	// Best-effort terminate of every node still running.
	for _, node := range registry.List() {
		if err := registry.Terminate(node.Name); err != nil {
			log.Warn("failed to terminate node on shutdown", zap.String("node", node.Name), zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGraceDuration())
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	registry.Stop()

	log.Info("node supervisor service stopped")
}
