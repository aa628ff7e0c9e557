package repositories

import (
	"authsec-server/configs"
	"authsec-server/internal/models"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Dbs struct {
	Redis    *redis.Client
	Postgres *gorm.DB
}

var DBS Dbs

func Init() {
	initRedis()
	initPostgres()
}

// initRedis initializes the Redis connection
func initRedis() {
	opt := &redis.Options{
		Addr:     configs.Configs.Redis.Addresses[0],
		Username: configs.Configs.Redis.Username,
		Password: configs.Configs.Redis.Password,
		DB:       configs.Configs.Redis.Database,
	}

	if configs.Configs.Redis.Tls {
		opt.TLSConfig = &tls.Config{}
	}

	DBS.Redis = redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := DBS.Redis.Ping(ctx).Result()
	if err != nil {
		configs.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
		return
	}

	configs.Logger.Info("Redis connected successfully", zap.String("result", result))
}

// initPostgres initializes the PostgreSQL connection
func initPostgres() {
	host, port, err := net.SplitHostPort(configs.Configs.Postgres.Address)
	if err != nil {
		configs.Logger.Fatal("Invalid Postgres address", zap.Error(err))
		return
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s",
		host,
		configs.Configs.Postgres.Username,
		configs.Configs.Postgres.Password,
		configs.Configs.Postgres.Database,
		port,
	)

	var logLevel logger.LogLevel
	switch configs.Configs.Logs.LogLevel {
	case "DEBUG", "INFO":
		logLevel = logger.Info
	case "WARN":
		logLevel = logger.Warn
	case "ERROR":
		logLevel = logger.Error
	default:
		logLevel = logger.Silent
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		configs.Logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		return
	}

	if err := AutoMigrateInOrder(db); err != nil {
		configs.Logger.Fatal("Failed to migrate database", zap.Error(err))
		return
	}

	DBS.Postgres = db
	configs.Logger.Info("PostgreSQL connected successfully")
}

// AutoMigrateInOrder migrates all models following their dependencies.
// Exported so DB-backed tests can run the same schema on sqlite.
func AutoMigrateInOrder(db *gorm.DB) error {
	modelsInOrder := []interface{}{
		&models.User{},
		&models.SecurityLog{},
		&models.Session{},
		&models.PendingAuthState{},
		&models.WebAuthnCredential{},
		&models.WebAuthnChallenge{},
		&models.TrustedDevice{},
		&models.IPRule{},
		&models.CaptchaChallenge{},
	}

	for _, model := range modelsInOrder {
		if err := db.AutoMigrate(model); err != nil {
			return err
		}
	}
	return nil
}
