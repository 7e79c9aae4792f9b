// internal/services/profile_service_test.go
package services

import (
	"context"
	"testing"

	apperrors "github.com/loreless/ai-service/internal/errors"
	"github.com/loreless/ai-service/internal/llm"
	"github.com/loreless/ai-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProfileService(t *testing.T, provider llm.Provider) (*ProfileService, *ConversationService) {
	t.Helper()
	conversations := NewConversationService()
	profile := NewProfileService(newTestLLMService(provider), conversations, newTestCatalog(t), newTestTemplates())
	return profile, conversations
}

func seedInterview(conversations *ConversationService, userID string) {
	conversations.Append(userID, models.RoleUser, "我叫凯尔，从北境来")
	conversations.Append(userID, models.RoleNPC, "北境人？说说你会什么")
	conversations.Append(userID, models.RoleUser, "我用双手剑，也懂些急救")
}

const validProfileJSON = `{
	"name": "凯尔",
	"gender": "male",
	"traits": ["Brave"],
	"stats": {"hp": 110, "attack": 14},
	"skills": ["Cleave", "First Aid"],
	"backstory": "A northerner who survived the Sundering.",
	"reason": "Needs coin and a place to belong."
}`

func TestProfileService_Synthesize(t *testing.T) {
	provider := &fakeProvider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			// 模型输出包裹在Markdown代码块中也应能解析
			return &llm.CompletionResponse{Text: "```json\n" + validProfileJSON + "\n```", FinishReason: "stop"}, nil
		},
	}
	profileService, conversations := newTestProfileService(t, provider)
	seedInterview(conversations, "user1")

	profile, err := profileService.Synthesize(context.Background(), "user1")
	require.NoError(t, err)

	assert.Equal(t, "凯尔", profile.Name)
	assert.Equal(t, models.GenderMale, profile.Gender)
	assert.Equal(t, []string{"Brave"}, profile.Traits)
	assert.Equal(t, []string{"Cleave", "First Aid"}, profile.Skills)
	assert.Equal(t, "A northerner who survived the Sundering.", profile.Backstory)

	// 提示词应包含完整的访谈记录和目录
	call := provider.lastCompleteCall()
	assert.Contains(t, call.Prompt, "user: 我叫凯尔，从北境来")
	assert.Contains(t, call.Prompt, "npc: 北境人？说说你会什么")
	assert.Contains(t, call.SystemPrompt, "Available traits:")
	assert.Contains(t, call.SystemPrompt, "- Brave:")
	assert.Contains(t, call.SystemPrompt, "- Cleave:")
	assert.Contains(t, call.SystemPrompt, "World primer")
}

func TestProfileService_SynthesizeEmptyHistory(t *testing.T) {
	provider := &fakeProvider{}
	profileService, _ := newTestProfileService(t, provider)

	_, err := profileService.Synthesize(context.Background(), "user1")
	require.Error(t, err)
	assert.True(t, apperrors.IsEmptyHistoryError(err))

	// 没有对话记录时不应调用LLM
	assert.Zero(t, provider.completeCallCount())
}

func TestProfileService_SynthesizeValidation(t *testing.T) {
	profileService, _ := newTestProfileService(t, &fakeProvider{})

	_, err := profileService.Synthesize(context.Background(), "  ")
	assert.True(t, apperrors.IsValidationError(err))
}

func TestProfileService_SynthesizeSchemaErrors(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{name: "非JSON输出", output: "抱歉，我无法生成角色档案。"},
		{name: "截断的JSON", output: `{"name": "凯尔", "gender":`},
		{name: "缺少名称", output: `{"gender": "M", "traits": [], "stats": {}, "skills": [], "backstory": "b", "reason": "r"}`},
		{name: "仅有名称", output: `{"name": "凯尔"}`},
		{name: "缺少性别", output: `{"name": "凯尔", "traits": [], "stats": {}, "skills": [], "backstory": "b", "reason": "r"}`},
		{name: "缺少属性", output: `{"name": "凯尔", "gender": "M", "traits": [], "skills": [], "backstory": "b", "reason": "r"}`},
		{name: "缺少背景故事", output: `{"name": "凯尔", "gender": "M", "traits": [], "stats": {}, "skills": [], "reason": "r"}`},
		{name: "特质类型错误", output: `{"name": "凯尔", "traits": [1, 2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{
				CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
					return &llm.CompletionResponse{Text: tt.output, FinishReason: "stop"}, nil
				},
			}
			profileService, conversations := newTestProfileService(t, provider)
			seedInterview(conversations, "user1")

			_, err := profileService.Synthesize(context.Background(), "user1")
			require.Error(t, err)
			assert.True(t, apperrors.IsSchemaError(err))
		})
	}
}

func TestProfileService_SynthesizeClampsTraitsAndSkills(t *testing.T) {
	output := `{
		"name": "凯尔",
		"gender": "M",
		"traits": ["Brave", "Cautious", "Brave"],
		"skills": ["Cleave", "First Aid", "Cleave", "First Aid"],
		"stats": {},
		"backstory": "A northerner.",
		"reason": "Wants work."
	}`
	provider := &fakeProvider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: output, FinishReason: "stop"}, nil
		},
	}
	profileService, conversations := newTestProfileService(t, provider)
	seedInterview(conversations, "user1")

	profile, err := profileService.Synthesize(context.Background(), "user1")
	require.NoError(t, err)

	// 超限条目截断，保留前面的
	assert.Equal(t, []string{"Brave", "Cautious"}, profile.Traits)
	assert.Equal(t, []string{"Cleave", "First Aid", "Cleave"}, profile.Skills)
}

func TestProfileService_SynthesizeKeepsUnknownNames(t *testing.T) {
	output := `{
		"name": "凯尔",
		"gender": "F",
		"traits": ["Unheard-Of"],
		"skills": ["Dragon Punch"],
		"stats": {},
		"backstory": "No one remembers her village.",
		"reason": "Seeks revenge."
	}`
	provider := &fakeProvider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: output, FinishReason: "stop"}, nil
		},
	}
	profileService, conversations := newTestProfileService(t, provider)
	seedInterview(conversations, "user1")

	// 目录外的名称只警告不拒绝
	profile, err := profileService.Synthesize(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Unheard-Of"}, profile.Traits)
	assert.Equal(t, []string{"Dragon Punch"}, profile.Skills)
}

func TestNormalizeGender(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"M", "M"},
		{"m", "M"},
		{"Male", "M"},
		{"man", "M"},
		{"F", "F"},
		{"female", "F"},
		{"Woman", "F"},
		{" male ", "M"},
		{"unknown", "unknown"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeGender(tt.input), "input=%q", tt.input)
	}
}
