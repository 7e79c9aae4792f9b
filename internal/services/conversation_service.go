// internal/services/conversation_service.go
package services

import (
	"sync"

	"github.com/loreless/ai-service/internal/models"
)

// ConversationStore 定义按用户维护对话记录的接口
type ConversationStore interface {
	// Append 在指定用户的对话末尾追加一条记录
	Append(userID string, role models.Role, content string)

	// History 返回指定用户的完整对话记录（按时间顺序）
	History(userID string) []models.ConversationTurn

	// Window 返回指定用户最近的n条对话记录
	Window(userID string, n int) []models.ConversationTurn

	// Clear 清空指定用户的对话记录
	Clear(userID string)

	// HasHistory 返回指定用户是否已有对话记录
	HasHistory(userID string) bool
}

// ConversationService 基于内存的对话记录服务
type ConversationService struct {
	mu            sync.RWMutex
	conversations map[string][]models.ConversationTurn
}

// NewConversationService 创建对话记录服务
func NewConversationService() *ConversationService {
	return &ConversationService{
		conversations: make(map[string][]models.ConversationTurn),
	}
}

// Append 在指定用户的对话末尾追加一条记录
func (s *ConversationService) Append(userID string, role models.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[userID] = append(s.conversations[userID], models.ConversationTurn{
		Role:    role,
		Content: content,
	})
}

// History 返回指定用户的完整对话记录
// 返回副本，调用方修改不影响内部状态
func (s *ConversationService) History(userID string) []models.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.conversations[userID]
	result := make([]models.ConversationTurn, len(turns))
	copy(result, turns)
	return result
}

// Window 返回指定用户最近的n条对话记录
// n不为正数或记录不足n条时，返回全部记录
func (s *ConversationService) Window(userID string, n int) []models.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.conversations[userID]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	result := make([]models.ConversationTurn, len(turns))
	copy(result, turns)
	return result
}

// Clear 清空指定用户的对话记录
// 用户不存在时为空操作
func (s *ConversationService) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, userID)
}

// HasHistory 返回指定用户是否已有对话记录
func (s *ConversationService) HasHistory(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.conversations[userID]) > 0
}
