package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/imageguard/imageguard-backend/internal/conf"
	"github.com/imageguard/imageguard-backend/internal/data"
	"github.com/imageguard/imageguard-backend/internal/entitlement"
	"github.com/imageguard/imageguard-backend/internal/imagesearch/orchestrator"
	"github.com/imageguard/imageguard-backend/internal/imagesearch/provider"
	"github.com/imageguard/imageguard-backend/internal/imagesearch/registry"
	"github.com/imageguard/imageguard-backend/internal/pkg/crypto"
	"github.com/imageguard/imageguard-backend/internal/pkg/logger"
	"github.com/imageguard/imageguard-backend/internal/retention"
	"github.com/imageguard/imageguard-backend/internal/search/biz"
	searchdata "github.com/imageguard/imageguard-backend/internal/search/data"
	"github.com/imageguard/imageguard-backend/internal/search/service"
	"github.com/imageguard/imageguard-backend/internal/server"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger with config
	logConfig := &logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	}

	log, err := logger.New(logConfig)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	// Initialize global logger
	if err := logger.InitGlobal(logConfig); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	// Initialize data layer
	d, cleanup, err := data.NewData(config, log.Logger)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	// Encryption service for stored artifacts
	encryptor, err := crypto.New([]byte(config.Crypto.MasterKey))
	if err != nil {
		log.Fatal("failed to initialize encryption", zap.Error(err))
	}

	// Build providers from configuration
	factory := provider.NewFactory()
	providers := make([]provider.Provider, 0, len(config.Providers))
	for i := range config.Providers {
		p, err := factory.Create(&config.Providers[i])
		if err != nil {
			log.Fatal("failed to create provider",
				zap.String("provider", string(config.Providers[i].ID)),
				zap.Error(err))
		}
		providers = append(providers, p)
		log.Info("provider configured",
			zap.String("provider", string(p.ID())),
			zap.Int("priority", p.Priority()))
	}
	if len(providers) == 0 {
		log.Fatal("no providers configured")
	}

	// Plan entitlements and allowance tracking
	entitlements := entitlement.New(config.PlanTable(), d.RedisClient, log.Logger)

	reg := registry.New(providers, entitlements.Entitlements(), log.Logger)
	orch := orchestrator.New(config.Search.GlobalTimeout, log.Logger)

	// Initialize repositories and use cases
	searchRepo := searchdata.NewSearchRepo(d.DB)
	searchUseCase := biz.NewSearchUseCase(reg, orch, entitlements, encryptor, d.Blobs, searchRepo, log.Logger)

	// Initialize services
	searchService := service.NewSearchService(searchUseCase, log.Logger)

	// Initialize server
	httpServer := server.NewHTTPServer(config, log, searchService)

	// Retention sweeper
	sweeper := retention.NewSweeper(searchUseCase, config.Retention.Schedule, config.Retention.BatchSize, log.Logger)
	if err := sweeper.Start(); err != nil {
		log.Fatal("failed to start retention sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	// Start server in goroutine
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
