// internal/services/profile_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/loreless/ai-service/internal/errors"
	"github.com/loreless/ai-service/internal/models"
	"github.com/loreless/ai-service/internal/utils"
)

// 档案中允许的特质与技能数量上限
const (
	MaxProfileTraits = 2
	MaxProfileSkills = 3
)

// ProfileService 根据访谈记录合成角色档案
type ProfileService struct {
	LLMService    *LLMService
	Conversations ConversationStore
	Catalog       *CatalogService
	Templates     *TemplateService
	metrics       *utils.AIMetrics
}

// NewProfileService 创建档案合成服务
func NewProfileService(llmService *LLMService, conversations ConversationStore,
	catalog *CatalogService, templates *TemplateService) *ProfileService {
	return &ProfileService{
		LLMService:    llmService,
		Conversations: conversations,
		Catalog:       catalog,
		Templates:     templates,
		metrics:       utils.NewAIMetrics(),
	}
}

// serializeTranscript 将对话记录序列化为提示词文本
func serializeTranscript(turns []models.ConversationTurn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Role, turn.Content))
	}
	return strings.Join(lines, "\n")
}

// buildSynthesisPrompt 构建档案合成的提示词
func (s *ProfileService) buildSynthesisPrompt(transcript string) (systemPrompt, prompt string) {
	systemPrompt = fmt.Sprintf(`You are a character profile generator for a fantasy tactics game.

%s

Available traits:
%s

Available skills:
%s

%s`,
		s.Templates.Get(TemplateWorldSetting),
		s.Catalog.FormatTraitsForPrompt(),
		s.Catalog.FormatSkillsForPrompt(),
		s.Templates.Get(TemplateProfileSchema))

	prompt = fmt.Sprintf("Interview transcript:\n%s", transcript)
	return systemPrompt, prompt
}

// Synthesize 将指定用户的访谈记录合成为角色档案
// 对话为空时直接返回错误，不调用LLM
func (s *ProfileService) Synthesize(ctx context.Context, userID string) (*models.CharacterProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewValidationError("用户ID不能为空", nil)
	}

	history := s.Conversations.History(userID)
	if len(history) == 0 {
		return nil, apperrors.NewEmptyHistoryError("没有可用于生成档案的对话记录", nil)
	}

	systemPrompt, prompt := s.buildSynthesisPrompt(serializeTranscript(history))

	callCtx, cancel := context.WithTimeout(ctx, llmTimeout())
	defer cancel()

	startTime := time.Now()
	resp, err := s.LLMService.CreateChatCompletion(callCtx, ChatCompletionRequest{
		Messages: []ChatCompletionMessage{
			{Role: RoleSystem, Content: systemPrompt},
			{Role: RoleUser, Content: prompt},
		},
		Temperature: 0.3,
	})
	if err != nil {
		s.metrics.RecordProfileGeneration(userID, false, time.Since(startTime))
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewTimeoutError("角色档案生成超时", err)
		}
		return nil, apperrors.NewProviderError("角色档案生成失败", err)
	}

	if len(resp.Choices) == 0 {
		s.metrics.RecordProfileGeneration(userID, false, time.Since(startTime))
		return nil, apperrors.NewProviderError("角色档案生成失败: 未返回任何内容", nil)
	}

	rawText := resp.Choices[0].Message.Content
	profile, err := s.parseProfile(rawText)
	if err != nil {
		s.metrics.RecordProfileGeneration(userID, false, time.Since(startTime))
		utils.GetLogger().Error("Profile output failed schema validation", map[string]interface{}{
			"user_id": userID,
			"raw":     truncateText(rawText, 500),
		})
		return nil, err
	}

	s.metrics.RecordProfileGeneration(userID, true, time.Since(startTime))
	s.metrics.RecordLLMRequest(s.LLMService.GetProviderName(), s.LLMService.GetDefaultModel(),
		resp.Usage.TotalTokens, time.Since(startTime))

	return profile, nil
}

// 档案JSON的必填字段，任一缺失均视为模式校验失败
var requiredProfileFields = []string{"name", "gender", "traits", "stats", "skills", "backstory", "reason"}

// parseProfile 解析并校验LLM输出的档案JSON
func (s *ProfileService) parseProfile(rawText string) (*models.CharacterProfile, error) {
	cleaned := CleanLLMJSONResponse(rawText)

	var profile models.CharacterProfile
	if err := json.Unmarshal([]byte(cleaned), &profile); err != nil {
		return nil, apperrors.NewSchemaError("角色档案输出不是有效的JSON", err)
	}

	var rawFields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &rawFields); err != nil {
		return nil, apperrors.NewSchemaError("角色档案输出不是有效的JSON对象", err)
	}
	for _, field := range requiredProfileFields {
		if _, ok := rawFields[field]; !ok {
			return nil, apperrors.NewSchemaError(fmt.Sprintf("角色档案缺少必填字段: %s", field), nil)
		}
	}

	if strings.TrimSpace(profile.Name) == "" {
		return nil, apperrors.NewSchemaError("角色档案缺少名称", nil)
	}

	profile.Gender = normalizeGender(profile.Gender)

	// 特质与技能数量超限时截断，保留前面的条目
	if len(profile.Traits) > MaxProfileTraits {
		utils.GetLogger().Warn("Profile traits exceed limit, truncating", map[string]interface{}{
			"name":  profile.Name,
			"count": len(profile.Traits),
		})
		profile.Traits = profile.Traits[:MaxProfileTraits]
	}
	if len(profile.Skills) > MaxProfileSkills {
		utils.GetLogger().Warn("Profile skills exceed limit, truncating", map[string]interface{}{
			"name":  profile.Name,
			"count": len(profile.Skills),
		})
		profile.Skills = profile.Skills[:MaxProfileSkills]
	}

	// 目录外的名称仅记录警告，保留原值
	for _, trait := range profile.Traits {
		if !s.Catalog.HasTrait(trait) {
			utils.GetLogger().Warn("Profile references unknown trait", map[string]interface{}{
				"name":  profile.Name,
				"trait": trait,
			})
		}
	}
	for _, skill := range profile.Skills {
		if !s.Catalog.HasSkill(skill) {
			utils.GetLogger().Warn("Profile references unknown skill", map[string]interface{}{
				"name":  profile.Name,
				"skill": skill,
			})
		}
	}

	return &profile, nil
}

// normalizeGender 将常见的性别表述规范化为 M/F
func normalizeGender(gender string) string {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "m", "male", "man":
		return models.GenderMale
	case "f", "female", "woman":
		return models.GenderFemale
	default:
		return gender
	}
}

// GetAvailableTraits 返回可用的特质目录
func (s *ProfileService) GetAvailableTraits() []models.Trait {
	return s.Catalog.ListTraits()
}

// GetAvailableSkills 返回可用的技能目录
func (s *ProfileService) GetAvailableSkills() []models.Skill {
	return s.Catalog.ListSkills()
}
