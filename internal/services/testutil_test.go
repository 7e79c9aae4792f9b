// internal/services/testutil_test.go
package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/loreless/ai-service/internal/llm"
	"github.com/loreless/ai-service/internal/storage"
	"github.com/stretchr/testify/require"
)

// fakeProvider 测试用的LLM提供商桩
// 阻塞调用返回CompleteFunc的结果，流式调用按StreamChunks逐个发送
type fakeProvider struct {
	mu sync.Mutex

	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	StreamChunks []llm.StreamResponse
	StreamDelay  time.Duration

	completeCalls []llm.CompletionRequest
	streamCalls   []llm.CompletionRequest
}

func (p *fakeProvider) Initialize(config map[string]string) error { return nil }
func (p *fakeProvider) GetName() string                           { return "fake" }
func (p *fakeProvider) GetSupportedModels() []string              { return []string{"fake-model"} }
func (p *fakeProvider) FetchAvailableModels(ctx context.Context) error {
	return nil
}
func (p *fakeProvider) SetCustomModels(models []string) {}

func (p *fakeProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.completeCalls = append(p.completeCalls, req)
	p.mu.Unlock()

	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	return &llm.CompletionResponse{Text: "ok", FinishReason: "stop"}, nil
}

func (p *fakeProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	p.mu.Lock()
	p.streamCalls = append(p.streamCalls, req)
	chunks := p.StreamChunks
	p.mu.Unlock()

	out := make(chan llm.StreamResponse)
	go func() {
		defer close(out)
		for _, chunk := range chunks {
			if p.StreamDelay > 0 {
				time.Sleep(p.StreamDelay)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *fakeProvider) completeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.completeCalls)
}

func (p *fakeProvider) lastCompleteCall() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completeCalls[len(p.completeCalls)-1]
}

// newTestLLMService 创建注入了桩提供商的就绪LLM服务
func newTestLLMService(provider llm.Provider) *LLMService {
	service := createBaseLLMService()
	service.provider = provider
	service.providerName = provider.GetName()
	service.isReady = true
	service.readyState = "Ready"
	return service
}

// newTestCatalog 创建加载了固定目录数据的目录服务
func newTestCatalog(t *testing.T) *CatalogService {
	t.Helper()

	dir := t.TempDir()

	traitsJSON := `{
		"Brave": {"description": "Faces danger head-on.", "stat_cng": {"attack": 3, "defense": -1}},
		"Cautious": {"description": "Weighs every step twice.", "stat_cng": {"defense": 3}}
	}`
	skillsJSON := `{
		"Cleave": {"description": "A sweeping strike.", "ap": 3, "range": 1, "dmg_mult": 1.2, "effects": ["hits adjacent enemies"]},
		"First Aid": {"description": "Field dressing.", "ap": 2, "range": 1, "dmg_mult": 0.0, "effects": ["restore 25 hp"]}
	}`

	require.NoError(t, os.WriteFile(filepath.Join(dir, "traits.json"), []byte(traitsJSON), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skills.json"), []byte(skillsJSON), 0644))

	fileStorage, err := storage.NewFileStorage(dir)
	require.NoError(t, err)

	catalog, err := NewCatalogService(fileStorage)
	require.NoError(t, err)
	return catalog
}

// newTestTemplates 创建不依赖文件系统的模板服务
func newTestTemplates() *TemplateService {
	return NewTemplateService(nil)
}
