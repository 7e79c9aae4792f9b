// internal/services/catalog_service.go
package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/loreless/ai-service/internal/errors"
	"github.com/loreless/ai-service/internal/models"
	"github.com/loreless/ai-service/internal/storage"
)

// 目录数据文件的存储格式，以名称为键
type traitEntry struct {
	Description string             `json:"description"`
	StatChanges map[string]float64 `json:"stat_cng"`
}

type skillEntry struct {
	Description string   `json:"description"`
	AP          int      `json:"ap"`
	Range       int      `json:"range"`
	DmgMult     float64  `json:"dmg_mult"`
	Effects     []string `json:"effects"`
}

// CatalogService 提供特质与技能目录的加载和提示词格式化
type CatalogService struct {
	FileStorage *storage.FileStorage

	mu     sync.RWMutex
	traits map[string]models.Trait
	skills map[string]models.Skill
}

// NewCatalogService 创建目录服务并加载目录数据
func NewCatalogService(fileStorage *storage.FileStorage) (*CatalogService, error) {
	s := &CatalogService{
		FileStorage: fileStorage,
		traits:      make(map[string]models.Trait),
		skills:      make(map[string]models.Skill),
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	return s, nil
}

// Reload 重新加载目录数据文件
func (s *CatalogService) Reload() error {
	s.FileStorage.InvalidateCache("", "traits.json")
	s.FileStorage.InvalidateCache("", "skills.json")

	var rawTraits map[string]traitEntry
	if err := s.FileStorage.LoadJSONFile("", "traits.json", &rawTraits); err != nil {
		return apperrors.WrapError(err, "加载特质目录失败", apperrors.ErrorTypeError)
	}

	var rawSkills map[string]skillEntry
	if err := s.FileStorage.LoadJSONFile("", "skills.json", &rawSkills); err != nil {
		return apperrors.WrapError(err, "加载技能目录失败", apperrors.ErrorTypeError)
	}

	traits := make(map[string]models.Trait, len(rawTraits))
	for name, entry := range rawTraits {
		traits[name] = models.Trait{
			Name:        name,
			Description: entry.Description,
			StatChanges: entry.StatChanges,
		}
	}

	skills := make(map[string]models.Skill, len(rawSkills))
	for name, entry := range rawSkills {
		skills[name] = models.Skill{
			Name:        name,
			Description: entry.Description,
			AP:          entry.AP,
			Range:       entry.Range,
			DmgMult:     entry.DmgMult,
			Effects:     entry.Effects,
		}
	}

	s.mu.Lock()
	s.traits = traits
	s.skills = skills
	s.mu.Unlock()

	return nil
}

// ListTraits 返回按名称排序的全部特质
func (s *CatalogService) ListTraits() []models.Trait {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Trait, 0, len(s.traits))
	for _, trait := range s.traits {
		result = append(result, trait)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// ListSkills 返回按名称排序的全部技能
func (s *CatalogService) ListSkills() []models.Skill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Skill, 0, len(s.skills))
	for _, skill := range s.skills {
		result = append(result, skill)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// HasTrait 检查特质是否存在于目录中
func (s *CatalogService) HasTrait(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.traits[name]
	return exists
}

// HasSkill 检查技能是否存在于目录中
func (s *CatalogService) HasSkill(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.skills[name]
	return exists
}

// FormatTraitsForPrompt 将特质目录格式化为提示词文本块
func (s *CatalogService) FormatTraitsForPrompt() string {
	traits := s.ListTraits()

	var lines []string
	for _, trait := range traits {
		line := fmt.Sprintf("- %s: %s", trait.Name, trait.Description)

		if len(trait.StatChanges) > 0 {
			keys := make([]string, 0, len(trait.StatChanges))
			for key := range trait.StatChanges {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			changes := make([]string, 0, len(keys))
			for _, key := range keys {
				changes = append(changes, fmt.Sprintf("%s: %+g", key, trait.StatChanges[key]))
			}
			line += fmt.Sprintf(" [changes: %s]", strings.Join(changes, ", "))
		}

		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

// FormatSkillsForPrompt 将技能目录格式化为提示词文本块
func (s *CatalogService) FormatSkillsForPrompt() string {
	skills := s.ListSkills()

	var lines []string
	for _, skill := range skills {
		line := fmt.Sprintf("- %s: %s [AP: %d, range: %d, dmg: %g",
			skill.Name, skill.Description, skill.AP, skill.Range, skill.DmgMult)

		if len(skill.Effects) > 0 {
			line += fmt.Sprintf(", effects: %s", strings.Join(skill.Effects, ", "))
		}
		line += "]"

		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}
