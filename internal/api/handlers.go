// internal/api/handlers.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loreless/ai-service/internal/config"
	"github.com/loreless/ai-service/internal/llm"
	"github.com/loreless/ai-service/internal/models"
	"github.com/loreless/ai-service/internal/services"
	"github.com/loreless/ai-service/internal/utils"
)

// Handler 处理API请求
type Handler struct {
	Aggregate        *services.ProfileAggregateService // 聚合门面服务
	LLMService       *services.LLMService              // LLM服务
	WebSocketHandler *WebSocketHandler                 // WebSocket 处理器
	Response         *ResponseHelper                   // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(aggregate *services.ProfileAggregateService, llmService *services.LLMService) *Handler {
	return &Handler{
		Aggregate:        aggregate,
		LLMService:       llmService,
		WebSocketHandler: NewWebSocketHandler(aggregate),
		Response:         NewResponseHelper(),
	}
}

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ChatRequest 访谈对话请求
type ChatRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Question string `json:"question" binding:"required"`
}

// GenerateProfileRequest 角色档案生成请求
type GenerateProfileRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// ClearConversationRequest 清空对话请求
type ClearConversationRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// UpdateLLMConfigRequest LLM配置更新请求
type UpdateLLMConfigRequest struct {
	Provider string            `json:"provider" binding:"required"`
	Config   map[string]string `json:"config" binding:"required"`
}

// ------------------------------------------------
// Chat 处理一次阻塞式访谈对话
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	answer, err := h.Aggregate.Chat(c.Request.Context(), req.UserID, req.Question)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{
		"user_id": req.UserID,
		"answer":  answer,
	})
}

// ChatStream 处理流式访谈对话的SSE端点
func (h *Handler) ChatStream(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	chunks, err := h.Aggregate.ChatStream(c.Request.Context(), req.UserID, req.Question)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	// 设置SSE响应头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			// 客户端断开连接
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}

			if chunk.Err != nil {
				// 载荷必须是合法JSON，不能用Go语法转义
				payload, _ := json.Marshal(gin.H{"error": chunk.Err.Error()})
				fmt.Fprintf(c.Writer, "event: error\ndata: %s\n\n", payload)
				c.Writer.Flush()
				return
			}

			if chunk.Done {
				fmt.Fprintf(c.Writer, "event: done\ndata: {}\n\n")
				c.Writer.Flush()
				return
			}

			payload, _ := json.Marshal(gin.H{"text": chunk.Text})
			fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
			c.Writer.Flush()
		}
	}
}

// GenerateProfile 根据访谈记录生成角色档案
func (h *Handler) GenerateProfile(c *gin.Context) {
	var req GenerateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	profile, stats, err := h.Aggregate.GenerateProfileWithStats(c.Request.Context(), req.UserID)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{
		"profile": profile,
		"stats":   stats,
	})
}

// MapProfileStats 将角色档案映射为游戏属性
func (h *Handler) MapProfileStats(c *gin.Context) {
	var profile models.CharacterProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	stats := h.Aggregate.GetCharacterStats(&profile)
	h.Response.Success(c, stats)
}

// ClearConversation 清空指定用户的对话记录
func (h *Handler) ClearConversation(c *gin.Context) {
	var req ClearConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	h.Aggregate.ClearConversation(req.UserID)
	h.Response.Success(c, gin.H{"user_id": req.UserID}, "对话记录已清空")
}

// GetConversation 返回指定用户的完整对话记录
func (h *Handler) GetConversation(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		h.Response.BadRequest(c, "缺少用户ID")
		return
	}

	history := h.Aggregate.ConversationHistory(userID)
	h.Response.Success(c, gin.H{
		"user_id":     userID,
		"turns":       history,
		"has_history": len(history) > 0,
	})
}

// GetTraits 返回可用的特质目录
func (h *Handler) GetTraits(c *gin.Context) {
	h.Response.Success(c, h.Aggregate.GetAvailableTraits())
}

// GetSkills 返回可用的技能目录
func (h *Handler) GetSkills(c *gin.Context) {
	h.Response.Success(c, h.Aggregate.GetAvailableSkills())
}

// GetMetadata 返回目录与预设的汇总信息
func (h *Handler) GetMetadata(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"traits":        h.Aggregate.GetAvailableTraits(),
		"skills":        h.Aggregate.GetAvailableSkills(),
		"jobs":          models.JobBaseStats,
		"default_stats": models.DefaultCharacterStats(),
	})
}

// GetLLMStatus 返回LLM服务状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	ready, state := h.LLMService.GetProviderStatus()

	h.Response.Success(c, gin.H{
		"ready":    ready,
		"state":    state,
		"provider": h.LLMService.GetProviderName(),
		"model":    h.LLMService.GetDefaultModel(),
	})
}

// GetLLMModels 返回已注册提供商及其支持的模型
func (h *Handler) GetLLMModels(c *gin.Context) {
	result := make(map[string][]string)
	for _, name := range llm.ListProviders() {
		result[name] = llm.GetSupportedModelsForProvider(name)
	}
	h.Response.Success(c, result)
}

// UpdateLLMConfig 更新LLM提供商配置
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req UpdateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if err := h.LLMService.UpdateProvider(req.Provider, req.Config); err != nil {
		h.Response.BadRequest(c, "LLM配置更新失败", err.Error())
		return
	}

	if err := config.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		utils.GetLogger().Error("Failed to persist LLM config", map[string]interface{}{"err": err})
	}

	h.Response.Success(c, gin.H{
		"provider": req.Provider,
		"model":    h.LLMService.GetDefaultModel(),
	}, "LLM配置已更新")
}

// GetMetrics 返回应用指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, utils.GetMetricsCollector().GetMetrics())
}

// HealthCheck 健康检查端点
func (h *Handler) HealthCheck(c *gin.Context) {
	ready, state := h.LLMService.GetProviderStatus()

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"llm_ready": ready,
		"llm_state": state,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// ProfileChatWebSocket 处理访谈对话的 WebSocket 连接
func (h *Handler) ProfileChatWebSocket(c *gin.Context) {
	h.WebSocketHandler.ProfileChatWebSocket(c)
}
