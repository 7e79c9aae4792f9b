// internal/models/character.go
package models

// 性别枚举
const (
	GenderMale   = "M"
	GenderFemale = "F"
)

// CharacterProfile AI根据对话记录合成的角色档案
// Stats 使用宽松的 map 表示：上游是LLM生成内容，键和数值类型都不可靠，
// 由映射层逐字段做类型兜底（见 services.MapProfileToStats）
type CharacterProfile struct {
	Name      string                 `json:"name"`
	Gender    string                 `json:"gender"`
	Traits    []string               `json:"traits"`
	Stats     map[string]interface{} `json:"stats"`
	Skills    []string               `json:"skills"`
	Backstory string                 `json:"backstory"`
	// Reason 模型自述的选择依据，仅用于内部日志，不展示给玩家
	Reason string `json:"reason"`
}

// CharacterStatsUpdate 游戏侧的标准角色属性更新契约
// CharacterID 由调用方绑定到具体角色实体，映射层不填写
type CharacterStatsUpdate struct {
	CharacterID    string  `json:"character_id,omitempty"`
	HP             float64 `json:"hp"`
	Attack         float64 `json:"attack"`
	Defense        float64 `json:"defense"`
	Resistance     float64 `json:"resistance"`
	CriticalRate   float64 `json:"critical_rate"`
	CriticalDamage float64 `json:"critical_damage"`
	MoveRange      float64 `json:"move_range"`
	Speed          float64 `json:"speed"`
	Points         float64 `json:"points"`
}

// DefaultCharacterStats 返回文档约定的默认属性值
func DefaultCharacterStats() CharacterStatsUpdate {
	return CharacterStatsUpdate{
		HP:             100,
		Attack:         10,
		Defense:        10,
		Resistance:     10,
		CriticalRate:   0.05,
		CriticalDamage: 1.5,
		MoveRange:      4,
		Speed:          10,
		Points:         0,
	}
}

// JobBaseStats 职业初始属性预设（游戏侧创建角色时使用）
var JobBaseStats = map[string]CharacterStatsUpdate{
	"warrior": {
		HP: 120, Attack: 20, Defense: 15, Resistance: 10,
		CriticalRate: 0.05, CriticalDamage: 1.5, MoveRange: 4, Speed: 8,
	},
	"archer": {
		HP: 90, Attack: 25, Defense: 8, Resistance: 5,
		CriticalRate: 0.10, CriticalDamage: 2.0, MoveRange: 6, Speed: 12,
	},
}
