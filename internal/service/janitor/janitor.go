// Package janitor 定期回收中断生成遗留的流式占位行
package janitor

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tetherapp/tether/internal/config"
	"github.com/tetherapp/tether/internal/model"
)

// interruptedText 写入被回收占位行的内容
const interruptedText = "generation interrupted"

// MessageStore 清理器需要的数据访问接口
type MessageStore interface {
	ListStaleStreamingMessages(olderThan int) ([]*model.Message, error)
	FinalizeMessage(id, content, modelName string, tokenCount int) error
}

// Janitor 占位行清理器
// 进程崩溃或后台生成超时会留下 is_streaming=true 的行，
// 超过保鲜期后统一落定，避免永久挂起的"正在输入"状态
type Janitor struct {
	store      MessageStore
	logger     *logrus.Logger
	cron       *cron.Cron
	schedule   string
	staleAfter int
}

// New 创建清理器
func New(store MessageStore, cfg config.JanitorConfig, logger *logrus.Logger) *Janitor {
	return &Janitor{
		store:      store,
		logger:     logger,
		cron:       cron.New(),
		schedule:   cfg.Schedule,
		staleAfter: cfg.StaleAfter,
	}
}

// Start 按计划启动清理任务
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.sweep); err != nil {
		return fmt.Errorf("failed to schedule janitor: %w", err)
	}
	j.cron.Start()
	j.logger.WithField("schedule", j.schedule).Info("janitor started")
	return nil
}

// Stop 停止清理任务，等待进行中的一轮结束
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// sweep 执行一轮回收
func (j *Janitor) sweep() {
	stale, err := j.store.ListStaleStreamingMessages(j.staleAfter)
	if err != nil {
		j.logger.WithError(err).Error("janitor: failed to list stale messages")
		return
	}
	if len(stale) == 0 {
		return
	}

	reclaimed := 0
	for _, msg := range stale {
		content := msg.Content
		if content == "" {
			content = interruptedText
		}
		if err := j.store.FinalizeMessage(msg.ID, content, msg.Model, len(content)/4); err != nil {
			j.logger.WithError(err).WithField("message_id", msg.ID).Error("janitor: failed to finalize stale message")
			continue
		}
		reclaimed++
	}

	j.logger.WithFields(logrus.Fields{
		"found":     len(stale),
		"reclaimed": reclaimed,
	}).Info("janitor sweep completed")
}
