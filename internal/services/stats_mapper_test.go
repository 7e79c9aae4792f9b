// internal/services/stats_mapper_test.go
package services

import (
	"encoding/json"
	"testing"

	"github.com/loreless/ai-service/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestMapProfileToStats_NilProfile(t *testing.T) {
	stats := MapProfileToStats(nil)
	assert.Equal(t, models.DefaultCharacterStats(), stats)
}

func TestMapProfileToStats_EmptyStats(t *testing.T) {
	profile := &models.CharacterProfile{Name: "凯尔"}
	stats := MapProfileToStats(profile)

	assert.Equal(t, models.DefaultCharacterStats(), stats)
	assert.Empty(t, stats.CharacterID)
}

func TestMapProfileToStats_Passthrough(t *testing.T) {
	profile := &models.CharacterProfile{
		Name: "凯尔",
		Stats: map[string]interface{}{
			"hp":              float64(120),
			"attack":          float64(14),
			"defense":         float64(8),
			"resistance":      float64(12),
			"critical_rate":   0.1,
			"critical_damage": 2.0,
			"move_range":      float64(5),
			"speed":           float64(11),
			"points":          float64(3),
		},
	}

	stats := MapProfileToStats(profile)
	assert.Equal(t, 120.0, stats.HP)
	assert.Equal(t, 14.0, stats.Attack)
	assert.Equal(t, 8.0, stats.Defense)
	assert.Equal(t, 12.0, stats.Resistance)
	assert.Equal(t, 0.1, stats.CriticalRate)
	assert.Equal(t, 2.0, stats.CriticalDamage)
	assert.Equal(t, 5.0, stats.MoveRange)
	assert.Equal(t, 11.0, stats.Speed)
	assert.Equal(t, 3.0, stats.Points)
}

func TestMapProfileToStats_PartialAndTypeFallback(t *testing.T) {
	profile := &models.CharacterProfile{
		Name: "凯尔",
		Stats: map[string]interface{}{
			"hp":     int(90),
			"attack": json.Number("15"),
			"speed":  "fast", // 非法类型，退回默认值
		},
	}

	stats := MapProfileToStats(profile)
	assert.Equal(t, 90.0, stats.HP)
	assert.Equal(t, 15.0, stats.Attack)

	defaults := models.DefaultCharacterStats()
	assert.Equal(t, defaults.Speed, stats.Speed)
	assert.Equal(t, defaults.Defense, stats.Defense)
	assert.Equal(t, defaults.CriticalRate, stats.CriticalRate)
}

func TestMapProfileToStats_UnknownKeysIgnored(t *testing.T) {
	profile := &models.CharacterProfile{
		Name: "凯尔",
		Stats: map[string]interface{}{
			"mana": float64(50),
			"luck": float64(7),
			"hp":   float64(80),
			"HP":   float64(999), // 键区分大小写
		},
	}

	stats := MapProfileToStats(profile)
	assert.Equal(t, 80.0, stats.HP)
	assert.Equal(t, models.DefaultCharacterStats().Attack, stats.Attack)
}
