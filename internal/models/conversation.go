// internal/models/conversation.go
package models

// Role 对话回合的发言方
type Role string

const (
	// RoleUser 玩家发言
	RoleUser Role = "user"
	// RoleNPC 面试NPC发言
	RoleNPC Role = "npc"
)

// ConversationTurn 一条对话回合记录，创建后不再修改
// 回合按插入顺序排列，顺序即对话时间线
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
