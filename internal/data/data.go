package data

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/imageguard/imageguard-backend/internal/conf"
	"github.com/imageguard/imageguard-backend/internal/pkg/storage"
	searchdata "github.com/imageguard/imageguard-backend/internal/search/data"
)

// Data bundles the shared infrastructure clients
type Data struct {
	DB          *gorm.DB
	RedisClient *redis.Client
	Blobs       *storage.Store
	Logger      *zap.Logger
}

func NewData(config *conf.Config, log *zap.Logger) (*Data, func(), error) {
	db, err := initDB(config, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	redisClient := initRedis(config)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	blobs, err := storage.New(context.Background(), &storage.Config{
		Endpoint:  config.Storage.Endpoint,
		AccessKey: config.Storage.AccessKey,
		SecretKey: config.Storage.SecretKey,
		UseSSL:    config.Storage.UseSSL,
		Bucket:    config.Storage.Bucket,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init blob store: %w", err)
	}

	d := &Data{
		DB:          db,
		RedisClient: redisClient,
		Blobs:       blobs,
		Logger:      log,
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		if redisClient != nil {
			redisClient.Close()
		}
	}

	return d, cleanup, nil
}

func initDB(config *conf.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.Database.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Auto migrate
	if err := db.AutoMigrate(&searchdata.SearchRecordPO{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	log.Info("database initialized successfully")
	return db, nil
}

func initRedis(config *conf.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
}
