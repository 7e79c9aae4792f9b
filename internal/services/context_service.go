// internal/services/context_service.go
package services

// ContextProvider 为对话提供附加的背景上下文
type ContextProvider interface {
	// ContextPrompt 返回注入对话的背景上下文文本，为空表示无上下文
	ContextPrompt() string
}

// WorldContextService 以世界观设定作为对话背景上下文
type WorldContextService struct {
	Templates *TemplateService
}

// NewWorldContextService 创建世界观上下文服务
func NewWorldContextService(templates *TemplateService) *WorldContextService {
	return &WorldContextService{Templates: templates}
}

// ContextPrompt 返回世界观设定文本
func (s *WorldContextService) ContextPrompt() string {
	return s.Templates.Get(TemplateWorldSetting)
}
