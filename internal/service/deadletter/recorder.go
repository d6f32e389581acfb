// Package deadletter 记录被吞掉的次要写入失败
package deadletter

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tetherapp/tether/internal/model"
)

// Store 死信持久化接口
type Store interface {
	Create(dl *model.DeadLetter) error
}

// Recorder 死信记录器
// 次要簿记失败（广播、附件写入等）不打断主流程，但必须留痕可查
type Recorder struct {
	store  Store
	logger *logrus.Logger
}

// NewRecorder 创建记录器
func NewRecorder(store Store, logger *logrus.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record 记录一次簿记失败
// 死信本身写失败时只剩日志兜底
func (r *Recorder) Record(operation string, payload interface{}, cause error) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}

	r.logger.WithFields(logrus.Fields{
		"operation": operation,
		"error":     cause,
	}).Warn("bookkeeping write failed")

	if r.store == nil {
		return
	}

	dl := &model.DeadLetter{
		ID:        uuid.New().String(),
		Operation: operation,
		Payload:   string(data),
		Error:     cause.Error(),
	}
	if err := r.store.Create(dl); err != nil {
		r.logger.WithFields(logrus.Fields{
			"operation": operation,
			"error":     err,
		}).Error("failed to record dead letter")
	}
}
