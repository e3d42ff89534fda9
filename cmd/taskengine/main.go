package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flybeeper/taskengine/internal/auth"
	"github.com/flybeeper/taskengine/internal/config"
	"github.com/flybeeper/taskengine/internal/handler"
	"github.com/flybeeper/taskengine/internal/metrics"
	"github.com/flybeeper/taskengine/internal/mqtt"
	"github.com/flybeeper/taskengine/internal/repository"
	"github.com/flybeeper/taskengine/internal/service"
	"github.com/flybeeper/taskengine/pkg/utils"
)

var (
	// Version, Commit и BuildTime устанавливаются при сборке через ldflags
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var file *utils.FileOptions
	if cfg.Log.File != "" {
		file = &utils.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}
	}
	logger := utils.NewLoggerWithFile(cfg.Log.Level, cfg.Log.Format, file)
	logger.WithFields(map[string]interface{}{
		"version":     Version,
		"environment": cfg.Environment,
	}).Info("Starting task engine")
	metrics.SetAppInfo(Version, Commit, BuildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisRepo, err := repository.NewRedisRepository(&cfg.Redis, logger)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to initialize Redis repository")
	}
	defer redisRepo.Close()

	if err := redisRepo.Ping(ctx); err != nil {
		logger.WithField("error", err).Fatal("Failed to connect to Redis")
	}
	logger.Info("Connected to Redis")

	// Архив результатов в MySQL необязателен
	var results repository.ResultRepository
	var mysqlRepo *repository.MySQLRepository
	if cfg.MySQL.DSN != "" {
		mysqlRepo, err = repository.NewMySQLRepository(&cfg.MySQL, logger)
		if err != nil {
			logger.WithField("error", err).Warn("Failed to initialize MySQL repository")
		} else {
			defer mysqlRepo.Close()
			if err := mysqlRepo.EnsureSchema(ctx); err != nil {
				logger.WithField("error", err).Warn("Failed to prepare MySQL schema, result archive disabled")
			} else {
				results = mysqlRepo
				logger.Info("Connected to MySQL")
			}
		}
	}

	svc, err := service.NewTaskService(&cfg.Engine, redisRepo, results, logger)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to create task service")
	}
	if err := svc.Start(ctx); err != nil {
		logger.WithField("error", err).Fatal("Failed to start task service")
	}

	var opts []handler.ServerOption
	if cfg.Auth.Enabled {
		validator, err := auth.NewValidator(&cfg.Auth, auth.NewCache(redisRepo.Client(), cfg.Auth.CacheTTL), logger)
		if err != nil {
			logger.WithField("error", err).Fatal("Failed to initialize auth")
		}
		opts = append(opts, handler.WithAuth(auth.NewMiddleware(validator, logger)))
		logger.WithField("endpoint", cfg.Auth.Endpoint).Info("Command authorization enabled")
	}

	server := handler.NewServer(cfg, svc, logger, Version, opts...)
	server.AddHealthCheck("redis", redisRepo.Ping)
	if results != nil {
		server.AddHealthCheck("mysql", results.Ping)
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		fixHandler := func(fix *mqtt.Fix) error {
			_, err := svc.Update(fix.DeviceID, fix.State)
			if service.IsRejected(err) {
				return nil
			}
			return err
		}

		mqttClient, err = mqtt.NewClient(&cfg.MQTT, logger, fixHandler)
		if err != nil {
			logger.WithField("error", err).Fatal("Failed to initialize MQTT client")
		}
		if err := mqttClient.Connect(); err != nil {
			logger.WithField("error", err).Fatal("Failed to connect to MQTT broker")
		}
		logger.WithField("topic", cfg.MQTT.FixTopic).Info("Connected to MQTT broker")
		server.AddHealthCheck("mqtt", func(context.Context) error {
			if !mqttClient.IsConnected() {
				return fmt.Errorf("not connected, %d fixes received", mqttClient.Stats().Received)
			}
			return nil
		})
	} else {
		logger.Info("MQTT feed disabled, fixes accepted over HTTP only")
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithField("error", err).Fatal("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	// лента останавливается раньше записи состояния
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err).Error("HTTP server shutdown error")
	}
	svc.Stop()

	logger.Info("Task engine stopped gracefully")
}
