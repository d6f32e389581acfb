// Package router 设置 HTTP 路由
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tetherapp/tether/internal/handler"
	"github.com/tetherapp/tether/internal/middleware"
	"github.com/tetherapp/tether/internal/service"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, svc *service.Services, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.LoggingMiddleware(logger))

	// 健康检查
	r.GET("/health", h.Status.Health)

	// 生成端点：独立挂载，浏览器可直连，CORS 全放开
	functions := r.Group("/functions/v1")
	functions.Use(middleware.CORSMiddleware())
	{
		functions.POST("/ai-chat", h.Producer.Generate)
		functions.OPTIONS("/ai-chat", func(c *gin.Context) {})
	}

	// 本地存储的附件回源
	if svc.Config.Storage.Type == "local" || svc.Config.Storage.Type == "" {
		r.Static("/uploads", svc.Config.Storage.LocalDir)
	}

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 认证
		auth := v1.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
			auth.GET("/me", middleware.RequireAuth(svc), h.Auth.Me)
		}

		// 聊天与会话
		authed := v1.Group("")
		authed.Use(middleware.RequireAuth(svc))
		{
			authed.POST("/chat", h.Chat.Send)
			authed.DELETE("/chat/streams", h.Chat.StopStream)

			authed.GET("/conversations", h.Conversation.List)
			authed.GET("/conversations/:id", h.Conversation.Get)
			authed.DELETE("/conversations/:id", h.Conversation.Deactivate)

			authed.POST("/attachments", h.Attachment.Upload)

			authed.GET("/status", h.Status.Get)
		}
	}

	return r
}
