package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tetherapp/tether/internal/service"
	"github.com/tetherapp/tether/internal/service/producer"
	"github.com/tetherapp/tether/internal/sse"
)

// ProducerHandler 流式生成端点处理器
type ProducerHandler struct {
	svc *service.Services
}

// NewProducerHandler 创建生成端点处理器
func NewProducerHandler(svc *service.Services) *ProducerHandler {
	return &ProducerHandler{svc: svc}
}

// Generate 处理一次生成请求
// stream:false 返回同步 JSON，否则输出 SSE 帧直到 [DONE]
func (h *ProducerHandler) Generate(c *gin.Context) {
	var req producer.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			fail(c, http.StatusBadRequest, producer.ErrEmptyBody.Error())
			return
		}
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Producer.Validate(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	// 缺失 API key 必须是显式 500，不允许静默产出空流
	if !h.svc.Producer.Ready() {
		fail(c, http.StatusInternalServerError, "provider api key is not configured")
		return
	}

	if !req.Stream {
		result, err := h.svc.Producer.Generate(c.Request.Context(), &req, producer.DiscardSink)
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		success(c, result)
		return
	}

	writer, err := sse.NewWriter(c.Writer)
	if err != nil {
		fail(c, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sink := producer.SinkFunc(func(evt *sse.Event) error {
		return writer.WriteEvent(evt)
	})

	// 失败路径的 error 帧已由服务发出，此处不再补 [DONE]
	if _, err := h.svc.Producer.Generate(c.Request.Context(), &req, sink); err != nil {
		return
	}

	_ = writer.WriteDone()
}
