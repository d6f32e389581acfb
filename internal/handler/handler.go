// Package handler 实现 HTTP 处理器
package handler

import (
	"github.com/tetherapp/tether/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Auth         *AuthHandler
	Chat         *ChatHandler
	Conversation *ConversationHandler
	Producer     *ProducerHandler
	Status       *StatusHandler
	Attachment   *AttachmentHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Auth:         NewAuthHandler(svc),
		Chat:         NewChatHandler(svc),
		Conversation: NewConversationHandler(svc),
		Producer:     NewProducerHandler(svc),
		Status:       NewStatusHandler(svc),
		Attachment:   NewAttachmentHandler(svc),
	}
}
