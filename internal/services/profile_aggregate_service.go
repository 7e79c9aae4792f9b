// internal/services/profile_aggregate_service.go
package services

import (
	"context"

	"github.com/loreless/ai-service/internal/models"
)

// ProfileAggregateService 聚合对话、档案合成与属性映射的门面服务
// API层只依赖此服务
type ProfileAggregateService struct {
	Dialogue      *DialogueService
	Profile       *ProfileService
	Conversations ConversationStore
}

// NewProfileAggregateService 创建聚合服务
func NewProfileAggregateService(dialogue *DialogueService, profile *ProfileService,
	conversations ConversationStore) *ProfileAggregateService {
	return &ProfileAggregateService{
		Dialogue:      dialogue,
		Profile:       profile,
		Conversations: conversations,
	}
}

// Chat 处理一次阻塞式访谈对话
func (s *ProfileAggregateService) Chat(ctx context.Context, userID, question string) (string, error) {
	return s.Dialogue.Respond(ctx, userID, question)
}

// ChatStream 处理一次流式访谈对话
func (s *ProfileAggregateService) ChatStream(ctx context.Context, userID, question string) (<-chan StreamChunk, error) {
	return s.Dialogue.RespondStream(ctx, userID, question)
}

// GenerateProfile 根据访谈记录合成角色档案
func (s *ProfileAggregateService) GenerateProfile(ctx context.Context, userID string) (*models.CharacterProfile, error) {
	return s.Profile.Synthesize(ctx, userID)
}

// GenerateProfileWithStats 合成角色档案并附带映射后的游戏属性
func (s *ProfileAggregateService) GenerateProfileWithStats(ctx context.Context, userID string) (*models.CharacterProfile, *models.CharacterStatsUpdate, error) {
	profile, err := s.Profile.Synthesize(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	stats := MapProfileToStats(profile)
	return profile, &stats, nil
}

// ClearConversation 清空指定用户的对话记录
func (s *ProfileAggregateService) ClearConversation(userID string) {
	s.Conversations.Clear(userID)
}

// ConversationHistory 返回指定用户的完整对话记录
func (s *ProfileAggregateService) ConversationHistory(userID string) []models.ConversationTurn {
	return s.Conversations.History(userID)
}

// HasConversation 返回指定用户是否已有对话记录
func (s *ProfileAggregateService) HasConversation(userID string) bool {
	return s.Conversations.HasHistory(userID)
}

// GetCharacterStats 将角色档案映射为游戏属性
func (s *ProfileAggregateService) GetCharacterStats(profile *models.CharacterProfile) models.CharacterStatsUpdate {
	return MapProfileToStats(profile)
}

// GetAvailableTraits 返回可用的特质目录
func (s *ProfileAggregateService) GetAvailableTraits() []models.Trait {
	return s.Profile.GetAvailableTraits()
}

// GetAvailableSkills 返回可用的技能目录
func (s *ProfileAggregateService) GetAvailableSkills() []models.Skill {
	return s.Profile.GetAvailableSkills()
}
