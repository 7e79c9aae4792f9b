// internal/services/template_service.go
package services

import (
	"strings"
	"sync"

	"github.com/loreless/ai-service/internal/storage"
	"github.com/loreless/ai-service/internal/utils"
)

// 模板名称
const (
	TemplateInterviewSystem = "interview_system"
	TemplateWorldSetting    = "world_setting"
	TemplateProfileSchema   = "profile_schema"
)

// 内置模板，在模板文件缺失时作为后备
var builtinTemplates = map[string]string{
	TemplateInterviewSystem: `You are a sharp-tongued but perceptive recruiter NPC in a fantasy tactics game.
You interview wanderers who wish to join the player's company. Stay in character at all times.
Ask pointed questions about the visitor's past, their abilities, and their reasons for fighting.
Keep your replies short and conversational, one or two sentences, and never break the fourth wall.`,

	TemplateWorldSetting: `World primer: The continent of Kaen is scarred by the Sundering, a cataclysm that shattered
the old kingdoms. The free city of Kaelm survives as a haven for mercenaries and refugees, while
the Arbelan dominion presses its borders ever outward. Magic is rare, distrusted, and dangerous.
Wanderers drift between ruined holds looking for coin, purpose, or oblivion.`,

	TemplateProfileSchema: `Based on the interview transcript, produce a character profile as a single JSON object
with exactly these fields:
{
  "name": "string, the character's name",
  "gender": "string, M or F",
  "traits": ["string", "pick 2 trait names from the trait list"],
  "stats": {"hp": 100, "attack": 10, "defense": 10, "resistance": 10},
  "skills": ["string", "pick up to 3 skill names from the skill list"],
  "backstory": "string, a short third-person backstory grounded in the interview",
  "reason": "string, why this character joins the company"
}
Pick traits and skills only from the provided lists. Output only the JSON object.`,
}

// TemplateService 提供提示词模板的读取
// 优先读取数据目录下templates/中的同名.txt文件，缺失时回退到内置模板
type TemplateService struct {
	FileStorage *storage.FileStorage

	mu        sync.RWMutex
	overrides map[string]string
}

// NewTemplateService 创建模板服务
func NewTemplateService(fileStorage *storage.FileStorage) *TemplateService {
	return &TemplateService{
		FileStorage: fileStorage,
		overrides:   make(map[string]string),
	}
}

// Get 返回指定名称的模板内容
func (s *TemplateService) Get(name string) string {
	s.mu.RLock()
	if content, exists := s.overrides[name]; exists {
		s.mu.RUnlock()
		return content
	}
	s.mu.RUnlock()

	if s.FileStorage != nil && s.FileStorage.FileExists("templates", name+".txt") {
		content, err := s.FileStorage.LoadTextFile("templates", name+".txt")
		if err == nil {
			text := strings.TrimSpace(string(content))
			if text != "" {
				return text
			}
		} else {
			utils.GetLogger().Warn("Failed to load template file, using builtin", map[string]interface{}{
				"template": name,
				"err":      err,
			})
		}
	}

	return builtinTemplates[name]
}

// Set 覆盖指定名称的模板内容，主要用于测试
func (s *TemplateService) Set(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[name] = content
}
