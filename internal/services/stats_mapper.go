// internal/services/stats_mapper.go
package services

import (
	"encoding/json"

	"github.com/loreless/ai-service/internal/models"
)

// statNumber 从宽松的stats值中提取数值
// LLM输出的数值可能是float64、整数甚至字符串化的数字
func statNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

// statField 按字段取值，缺失或非法时使用默认值
func statField(stats map[string]interface{}, key string, fallback float64) float64 {
	if stats == nil {
		return fallback
	}
	if value, exists := stats[key]; exists {
		if f, ok := statNumber(value); ok {
			return f
		}
	}
	return fallback
}

// MapProfileToStats 将角色档案映射为游戏侧的属性更新
// 纯函数：对任何输入都返回有效结果，缺失字段用默认值补齐，CharacterID不填写
func MapProfileToStats(profile *models.CharacterProfile) models.CharacterStatsUpdate {
	defaults := models.DefaultCharacterStats()

	if profile == nil {
		return defaults
	}

	return models.CharacterStatsUpdate{
		HP:             statField(profile.Stats, "hp", defaults.HP),
		Attack:         statField(profile.Stats, "attack", defaults.Attack),
		Defense:        statField(profile.Stats, "defense", defaults.Defense),
		Resistance:     statField(profile.Stats, "resistance", defaults.Resistance),
		CriticalRate:   statField(profile.Stats, "critical_rate", defaults.CriticalRate),
		CriticalDamage: statField(profile.Stats, "critical_damage", defaults.CriticalDamage),
		MoveRange:      statField(profile.Stats, "move_range", defaults.MoveRange),
		Speed:          statField(profile.Stats, "speed", defaults.Speed),
		Points:         statField(profile.Stats, "points", defaults.Points),
	}
}
