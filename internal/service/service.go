// Package service 组装全部业务服务
package service

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tetherapp/tether/internal/config"
	"github.com/tetherapp/tether/internal/repository"
	"github.com/tetherapp/tether/internal/service/auth"
	"github.com/tetherapp/tether/internal/service/chat"
	"github.com/tetherapp/tether/internal/service/deadletter"
	"github.com/tetherapp/tether/internal/service/file"
	"github.com/tetherapp/tether/internal/service/janitor"
	"github.com/tetherapp/tether/internal/service/producer"
	"github.com/tetherapp/tether/internal/service/provider"
	"github.com/tetherapp/tether/internal/service/realtime"
	"github.com/tetherapp/tether/internal/service/session"
	"github.com/tetherapp/tether/internal/service/status"
)

// Services 服务集合
type Services struct {
	Auth     *auth.Service
	Chat     *chat.Service
	Producer *producer.Service
	Status   *status.Service
	File     *file.Service
	Janitor  *janitor.Janitor

	Broadcaster *realtime.Broadcaster
	Streams     *session.Registry

	Config *config.Config
}

// NewServices 创建所有服务
func NewServices(db *repository.DB, repo *repository.Repositories, cfg *config.Config, redisClient *redis.Client, logger *logrus.Logger) (*Services, error) {
	broadcaster := realtime.NewBroadcaster(redisClient)
	streams := session.NewRegistry()
	deadLetters := deadletter.NewRecorder(repo.DeadLetter, logger)
	streamer := provider.NewOpenAIStreamer(cfg.AI)

	producerSvc := producer.NewService(repo.Chat, streamer, broadcaster, deadLetters, logger)
	producerClient := producer.NewClient(cfg.Producer.BaseURL, time.Duration(cfg.Producer.Timeout)*time.Second)

	chatSvc := chat.NewService(repo.Chat, repo.Persona, producerClient, streams, deadLetters, logger,
		time.Duration(cfg.Producer.Timeout)*time.Second)

	fileSvc, err := file.NewService(cfg.Storage)
	if err != nil {
		return nil, err
	}

	return &Services{
		Auth:     auth.NewService(repo.Auth, cfg.Auth),
		Chat:     chatSvc,
		Producer: producerSvc,
		Status:   status.NewService(db, broadcaster, streamer, cfg.Notion),
		File:     fileSvc,
		Janitor:  janitor.New(repo.Chat, cfg.Janitor, logger),

		Broadcaster: broadcaster,
		Streams:     streams,

		Config: cfg,
	}, nil
}
