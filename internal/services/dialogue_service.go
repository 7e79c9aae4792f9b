// internal/services/dialogue_service.go
package services

import (
	"context"
	"strings"
	"time"

	"github.com/loreless/ai-service/internal/config"
	apperrors "github.com/loreless/ai-service/internal/errors"
	"github.com/loreless/ai-service/internal/models"
	"github.com/loreless/ai-service/internal/utils"
)

// HistoryWindowSize 构建提示词时包含的最近对话条数
const HistoryWindowSize = 10

// StreamChunk 流式回复的一个增量片段
// Err非空表示流中途失败，此时Done为true且累计文本不会被记录
type StreamChunk struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
	Err  error  `json:"-"`
}

// DialogueService 负责NPC访谈对话
// 每次对话前记录用户发言，LLM成功回复后记录NPC发言
type DialogueService struct {
	LLMService    *LLMService
	Conversations ConversationStore
	Context       ContextProvider
	Templates     *TemplateService
	metrics       *utils.AIMetrics
}

// NewDialogueService 创建对话服务
func NewDialogueService(llmService *LLMService, conversations ConversationStore,
	contextProvider ContextProvider, templates *TemplateService) *DialogueService {
	return &DialogueService{
		LLMService:    llmService,
		Conversations: conversations,
		Context:       contextProvider,
		Templates:     templates,
		metrics:       utils.NewAIMetrics(),
	}
}

// buildMessages 构建发送给LLM的消息序列
// 背景上下文仅在已有历史时注入，历史窗口取最近HistoryWindowSize条
func (s *DialogueService) buildMessages(userID, question string) []ChatCompletionMessage {
	messages := []ChatCompletionMessage{
		{Role: RoleSystem, Content: s.Templates.Get(TemplateInterviewSystem)},
	}

	if s.Conversations.HasHistory(userID) {
		if s.Context != nil {
			if contextPrompt := s.Context.ContextPrompt(); contextPrompt != "" {
				messages = append(messages, ChatCompletionMessage{
					Role:    RoleSystem,
					Content: contextPrompt,
				})
			}
		}

		for _, turn := range s.Conversations.Window(userID, HistoryWindowSize) {
			role := RoleUser
			if turn.Role == models.RoleNPC {
				role = RoleAssistant
			}
			messages = append(messages, ChatCompletionMessage{
				Role:    role,
				Content: turn.Content,
			})
		}
	}

	messages = append(messages, ChatCompletionMessage{
		Role:    RoleUser,
		Content: question,
	})

	return messages
}

// llmTimeout 返回LLM调用的超时时间
func llmTimeout() time.Duration {
	cfg := config.GetCurrentConfig()
	if cfg != nil && cfg.LLMTimeoutSeconds > 0 {
		return time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	}
	return 60 * time.Second
}

// Respond 处理一次阻塞式对话，返回NPC的完整回复
func (s *DialogueService) Respond(ctx context.Context, userID, question string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", apperrors.NewValidationError("用户ID不能为空", nil)
	}
	if strings.TrimSpace(question) == "" {
		return "", apperrors.NewValidationError("问题内容不能为空", nil)
	}

	messages := s.buildMessages(userID, question)

	// 用户发言在调用LLM之前记录
	s.Conversations.Append(userID, models.RoleUser, question)
	s.metrics.RecordConversationTurn(userID, string(models.RoleUser))

	callCtx, cancel := context.WithTimeout(ctx, llmTimeout())
	defer cancel()

	startTime := time.Now()
	resp, err := s.LLMService.CreateChatCompletion(callCtx, ChatCompletionRequest{
		Messages:    messages,
		Temperature: 0.8,
	})
	if err != nil {
		s.metrics.RecordError("llm_request", "dialogue")
		if callCtx.Err() == context.DeadlineExceeded {
			return "", apperrors.NewTimeoutError("NPC回复超时", err)
		}
		return "", apperrors.NewProviderError("NPC回复生成失败", err)
	}

	if len(resp.Choices) == 0 {
		s.metrics.RecordError("empty_response", "dialogue")
		return "", apperrors.NewProviderError("NPC回复生成失败: 未返回任何内容", nil)
	}

	answer := resp.Choices[0].Message.Content
	s.metrics.RecordLLMRequest(s.LLMService.GetProviderName(), s.LLMService.GetDefaultModel(),
		resp.Usage.TotalTokens, time.Since(startTime))

	// NPC回复在成功后记录
	s.Conversations.Append(userID, models.RoleNPC, answer)
	s.metrics.RecordConversationTurn(userID, string(models.RoleNPC))

	return answer, nil
}

// RespondStream 处理一次流式对话，通过通道逐段返回NPC回复
// 仅在流正常完成时记录累计的NPC发言；失败或取消时不记录任何NPC内容
func (s *DialogueService) RespondStream(ctx context.Context, userID, question string) (<-chan StreamChunk, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewValidationError("用户ID不能为空", nil)
	}
	if strings.TrimSpace(question) == "" {
		return nil, apperrors.NewValidationError("问题内容不能为空", nil)
	}

	messages := s.buildMessages(userID, question)

	// 用户发言在调用LLM之前记录
	s.Conversations.Append(userID, models.RoleUser, question)
	s.metrics.RecordConversationTurn(userID, string(models.RoleUser))

	streamChan, err := s.LLMService.CreateStreamingChatCompletion(ctx, ChatCompletionRequest{
		Messages:    messages,
		Temperature: 0.8,
	})
	if err != nil {
		s.metrics.RecordError("llm_request", "dialogue_stream")
		return nil, apperrors.NewProviderError("NPC流式回复启动失败", err)
	}

	out := make(chan StreamChunk)

	go func() {
		defer close(out)

		var accumulated strings.Builder
		startTime := time.Now()

		for resp := range streamChan {
			if resp.Err != nil || resp.FinishReason == "error" {
				s.metrics.RecordError("stream_failure", "dialogue_stream")
				select {
				case out <- StreamChunk{Done: true, Err: apperrors.NewProviderError("NPC流式回复失败", resp.Err)}:
				case <-ctx.Done():
				}
				return
			}

			if resp.Text != "" {
				accumulated.WriteString(resp.Text)
				select {
				case out <- StreamChunk{Text: resp.Text}:
				case <-ctx.Done():
					// 调用方放弃接收，不记录NPC发言
					return
				}
			}

			if resp.Done {
				// 流正常完成，记录完整的NPC发言
				s.Conversations.Append(userID, models.RoleNPC, accumulated.String())
				s.metrics.RecordConversationTurn(userID, string(models.RoleNPC))
				s.metrics.RecordLLMRequest(s.LLMService.GetProviderName(), s.LLMService.GetDefaultModel(),
					0, time.Since(startTime))

				select {
				case out <- StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
		}

		// 通道在未收到完成标记前关闭，视为失败
		if ctx.Err() == nil {
			s.metrics.RecordError("stream_truncated", "dialogue_stream")
			select {
			case out <- StreamChunk{Done: true, Err: apperrors.NewProviderError("NPC流式回复中断", nil)}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}
