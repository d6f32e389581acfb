package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/tetherapp/tether/internal/service"
	"github.com/tetherapp/tether/internal/service/chat"
)

// ConversationHandler 会话管理处理器
type ConversationHandler struct {
	svc *service.Services
}

// NewConversationHandler 创建会话处理器
func NewConversationHandler(svc *service.Services) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// List 列出当前用户的会话
func (h *ConversationHandler) List(c *gin.Context) {
	page, size := getPagination(c)

	conversations, err := h.svc.Chat.ListConversations(c.Request.Context(), getUserID(c), &chat.ListConversationsRequest{
		Page: page,
		Size: size,
	})
	if err != nil {
		serviceError(c, err)
		return
	}

	success(c, gin.H{
		"items": conversations,
		"page":  page,
		"size":  size,
	})
}

// Get 获取会话及消息
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, messages, err := h.svc.Chat.GetConversation(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}

	success(c, gin.H{
		"conversation": conv,
		"messages":     messages,
	})
}

// Deactivate 停用会话
func (h *ConversationHandler) Deactivate(c *gin.Context) {
	if err := h.svc.Chat.DeactivateConversation(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	success(c, gin.H{"deactivated": true})
}
