package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/logistics-console/internal/config"
	"github.com/garyjia/logistics-console/internal/container"
	httpapi "github.com/garyjia/logistics-console/internal/interfaces/http"
	"github.com/garyjia/logistics-console/pkg/utils"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := os.Getenv("CONSOLE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "logistics-console",
		Sampling:   cfg.Logger.Sampling,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting logistics document console",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	logger.Info("Document types registered", zap.Strings("document_types", c.Registry().Names()))
	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown error", zap.Error(err))
		}
	}()

	mode := gin.ReleaseMode
	if cfg.Server.Mode != "" {
		mode = cfg.Server.Mode
	} else if cfg.Logger.Level == "debug" {
		mode = gin.DebugMode
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		Mode:         mode,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MetricsPath:  cfg.Metrics.Path,
	}, httpapi.Deps{
		Sessions: c.Sessions(),
		Identity: c.Identity(),
		Activity: c.Activity(),
		Exports:  c.Exports(),
		Metrics:  c.MetricsHandler(),
		Health: func(ctx context.Context) (bool, any) {
			status := c.Health(ctx)
			return status.Overall, status.Components
		},
	}, container.NewServiceLogger(logger))

	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server failed", zap.Error(err))
		return
	}
	logger.Info("Shutting down")
}
