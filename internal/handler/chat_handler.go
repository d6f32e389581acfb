package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tetherapp/tether/internal/service"
	"github.com/tetherapp/tether/internal/service/chat"
	"github.com/tetherapp/tether/internal/sse"
)

// ChatHandler 聊天入口处理器
type ChatHandler struct {
	svc *service.Services
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(svc *service.Services) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Send 发送消息
// realtime=true 立即返回 JSON 应答，否则转发生成端点的 SSE 流
func (h *ChatHandler) Send(c *gin.Context) {
	var req chat.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := getUserID(c)

	if req.Realtime {
		ack, err := h.svc.Chat.SendRealtime(c.Request.Context(), userID, &req)
		if err != nil {
			serviceError(c, err)
			return
		}
		success(c, ack)
		return
	}

	// 流式转发：打开上游失败时尚未写 SSE 字节，仍可返回 JSON 错误
	turn, err := h.svc.Chat.BeginStream(c.Request.Context(), userID, &req)
	if err != nil {
		serviceError(c, err)
		return
	}
	defer turn.Close()

	writer, err := sse.NewWriter(c.Writer)
	if err != nil {
		fail(c, http.StatusInternalServerError, "streaming not supported")
		return
	}

	_ = turn.Relay(c.Request.Context(), writer)
}

// StopStream 停止会话进行中的生成
func (h *ChatHandler) StopStream(c *gin.Context) {
	conversationID := c.Query("conversation_id")
	if conversationID == "" {
		fail(c, http.StatusBadRequest, "conversation_id is required")
		return
	}

	stopped := h.svc.Chat.StopStream(conversationID)
	success(c, gin.H{"stopped": stopped})
}
