package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tetherapp/tether/internal/config"
	"github.com/tetherapp/tether/internal/handler"
	"github.com/tetherapp/tether/internal/logging"
	"github.com/tetherapp/tether/internal/repository"
	"github.com/tetherapp/tether/internal/router"
	"github.com/tetherapp/tether/internal/service"
)

func main() {
	// .env 存在则加载，配置仍以环境变量和配置文件为准
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.App.Debug)

	gin.SetMode(cfg.Server.Mode)

	// 初始化数据库
	db, err := repository.NewDB(cfg)
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	logger.WithField("dbname", cfg.Database.DBName).Info("database connected")

	// 初始化 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// 初始化各层
	repos := repository.NewRepositories(db.DB)
	services, err := service.NewServices(db, repos, cfg, redisClient, logger)
	if err != nil {
		logger.Fatalf("Failed to init services: %v", err)
	}
	handlers := handler.NewHandlers(services)

	// 启动占位行清理任务
	if cfg.Janitor.Enabled {
		if err := services.Janitor.Start(); err != nil {
			logger.Fatalf("Failed to start janitor: %v", err)
		}
		defer services.Janitor.Stop()
	}

	r := router.SetupRouter(handlers, services, logger)

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server exited")
}
