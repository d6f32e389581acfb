package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tetherapp/tether/internal/service"
)

// StatusHandler 集成状态处理器
type StatusHandler struct {
	svc *service.Services
}

// NewStatusHandler 创建状态处理器
func NewStatusHandler(svc *service.Services) *StatusHandler {
	return &StatusHandler{svc: svc}
}

// Get 汇总各依赖的探测结果
func (h *StatusHandler) Get(c *gin.Context) {
	report := h.svc.Status.Collect(c.Request.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Health 进程存活检查
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"app":     h.svc.Config.App.Name,
		"version": h.svc.Config.App.Version,
	})
}
