// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loreless/ai-service/internal/config"
	"github.com/loreless/ai-service/internal/di"
	"github.com/loreless/ai-service/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	aggregateService, ok := container.Get("aggregate").(*services.ProfileAggregateService)
	if !ok {
		return nil, fmt.Errorf("聚合服务未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	handler := NewHandler(aggregateService, llmService)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(MetricsMiddleware())

	// HTTPS重定向（生产环境）
	if !cfg.DebugMode {
		r.Use(func(c *gin.Context) {
			if c.Request.Header.Get("X-Forwarded-Proto") != "https" {
				c.Redirect(http.StatusPermanentRedirect,
					"https://"+c.Request.Host+c.Request.URL.Path)
				return
			}
			c.Next()
		})
	}

	// 健康检查
	r.GET("/health", handler.HealthCheck)

	// WebSocket 支持
	r.GET("/ws/profile/chat", handler.ProfileChatWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	api.Use(DefaultRateLimit())
	{
		// ===============================
		// 聊天相关路由
		// ===============================
		chatGroup := api.Group("/chat")
		chatGroup.Use(ChatRateLimit())
		{
			chatGroup.POST("", handler.Chat)
			chatGroup.POST("/stream", handler.ChatStream)
		}

		// ===============================
		// 档案相关路由
		// ===============================
		profileGroup := api.Group("/profile")
		{
			profileGroup.POST("/generate", GenerationRateLimit(), handler.GenerateProfile)
			profileGroup.POST("/stats", handler.MapProfileStats)
		}

		// ===============================
		// 对话记录相关路由
		// ===============================
		conversationGroup := api.Group("/conversation")
		{
			conversationGroup.POST("/clear", handler.ClearConversation)
			conversationGroup.GET("/:user_id", handler.GetConversation)
		}

		// ===============================
		// 目录相关路由
		// ===============================
		api.GET("/traits", handler.GetTraits)
		api.GET("/skills", handler.GetSkills)
		api.GET("/metadata", handler.GetMetadata)

		// ===============================
		// LLM配置相关路由
		// ===============================
		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.GET("/models", handler.GetLLMModels)
			llmGroup.PUT("/config", handler.UpdateLLMConfig)
		}

		// 指标快照
		api.GET("/metrics", handler.GetMetrics)
	}

	return r, nil
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
