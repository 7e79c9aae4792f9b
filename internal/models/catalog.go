// internal/models/catalog.go
package models

// Trait 角色特性定义，进程启动时从目录文件加载，只读
type Trait struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	StatChanges map[string]float64 `json:"stat_changes"`
}

// Skill 角色技能定义，进程启动时从目录文件加载，只读
type Skill struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AP          int      `json:"ap"`
	Range       int      `json:"range"`
	DmgMult     float64  `json:"dmg_mult"`
	Effects     []string `json:"effects"`
}
