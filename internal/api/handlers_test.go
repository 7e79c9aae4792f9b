// internal/api/handlers_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/loreless/ai-service/internal/llm"
	"github.com/loreless/ai-service/internal/services"
	"github.com/loreless/ai-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stubProfileJSON = `{
	"name": "凯尔",
	"gender": "M",
	"traits": ["Brave"],
	"stats": {"hp": 110, "attack": 14},
	"skills": ["Cleave"],
	"backstory": "A survivor of the Sundering.",
	"reason": "Needs coin."
}`

// stubProvider 测试用的LLM提供商
// 合成提示词返回档案JSON，其余返回固定对话回复
type stubProvider struct{}

func (p *stubProvider) Initialize(config map[string]string) error      { return nil }
func (p *stubProvider) GetName() string                                { return "stub" }
func (p *stubProvider) GetSupportedModels() []string                   { return []string{"stub-model"} }
func (p *stubProvider) FetchAvailableModels(ctx context.Context) error { return nil }
func (p *stubProvider) SetCustomModels(models []string)                {}

func (p *stubProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if strings.Contains(req.Prompt, "Interview transcript:") {
		return &llm.CompletionResponse{Text: stubProfileJSON, FinishReason: "stop"}, nil
	}
	return &llm.CompletionResponse{Text: "说说你的来历。", FinishReason: "stop"}, nil
}

func (p *stubProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	chunks := []llm.StreamResponse{
		{Text: "慢慢"},
		{Text: "说。"},
		{Done: true, FinishReason: "stop"},
	}
	if strings.Contains(req.Prompt, "夹带转义符") {
		chunks = []llm.StreamResponse{
			{Text: "警\x1b[0m告\n第二行"},
			{Done: true, FinishReason: "stop"},
		}
	}

	out := make(chan llm.StreamResponse)
	go func() {
		defer close(out)
		for _, chunk := range chunks {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func init() {
	llm.Register("stub", func() llm.Provider { return &stubProvider{} })
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	llmService := services.NewEmptyLLMService()
	require.NoError(t, llmService.UpdateProvider("stub", map[string]string{"api_key": "test"}))

	dir := t.TempDir()
	traitsJSON := `{"Brave": {"description": "Faces danger head-on.", "stat_cng": {"attack": 3}}}`
	skillsJSON := `{"Cleave": {"description": "A sweeping strike.", "ap": 3, "range": 1, "dmg_mult": 1.2}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "traits.json"), []byte(traitsJSON), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skills.json"), []byte(skillsJSON), 0644))

	fileStorage, err := storage.NewFileStorage(dir)
	require.NoError(t, err)
	catalog, err := services.NewCatalogService(fileStorage)
	require.NoError(t, err)

	conversations := services.NewConversationService()
	templates := services.NewTemplateService(nil)
	contextService := services.NewWorldContextService(templates)

	dialogue := services.NewDialogueService(llmService, conversations, contextService, templates)
	profile := services.NewProfileService(llmService, conversations, catalog, templates)
	aggregate := services.NewProfileAggregateService(dialogue, profile, conversations)

	return NewHandler(aggregate, llmService)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := newTestHandler(t)
	router := gin.New()

	router.GET("/health", handler.HealthCheck)
	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/chat", handler.Chat)
		apiGroup.POST("/chat/stream", handler.ChatStream)
		apiGroup.POST("/profile/generate", handler.GenerateProfile)
		apiGroup.POST("/profile/stats", handler.MapProfileStats)
		apiGroup.POST("/conversation/clear", handler.ClearConversation)
		apiGroup.GET("/conversation/:user_id", handler.GetConversation)
		apiGroup.GET("/traits", handler.GetTraits)
		apiGroup.GET("/skills", handler.GetSkills)
		apiGroup.GET("/metadata", handler.GetMetadata)
		apiGroup.GET("/llm/status", handler.GetLLMStatus)
	}
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestChatEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/chat", gin.H{
		"user_id":  "user1",
		"question": "我想加入佣兵团",
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "user1", data["user_id"])
	assert.Equal(t, "说说你的来历。", data["answer"])
}

func TestChatEndpoint_BadRequest(t *testing.T) {
	router := newTestRouter(t)

	// 缺少question字段
	w := doJSON(router, http.MethodPost, "/api/chat", gin.H{"user_id": "user1"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := parseResponse(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
}

func TestChatStreamEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/chat/stream", gin.H{
		"user_id":  "user1",
		"question": "我想加入",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, `data: {"text":"慢慢"}`)
	assert.Contains(t, body, `data: {"text":"说。"}`)
	assert.Contains(t, body, "event: done")
}

func TestChatStreamEndpoint_ControlCharsInChunk(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/chat/stream", gin.H{
		"user_id":  "user1",
		"question": "夹带转义符",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// 每个分片载荷都必须是合法JSON，控制字符按JSON规则转义
	var got string
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") || line == "data: {}" {
			continue
		}
		var payload struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload),
			"载荷不是合法JSON: %s", line)
		got += payload.Text
	}
	assert.Equal(t, "警\x1b[0m告\n第二行", got)
}

func TestGenerateProfileEndpoint(t *testing.T) {
	router := newTestRouter(t)

	// 先完成一轮对话
	w := doJSON(router, http.MethodPost, "/api/chat", gin.H{
		"user_id":  "user1",
		"question": "我想加入佣兵团",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/profile/generate", gin.H{"user_id": "user1"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse(t, w)
	data := resp.Data.(map[string]interface{})

	profile := data["profile"].(map[string]interface{})
	assert.Equal(t, "凯尔", profile["name"])
	assert.Equal(t, "M", profile["gender"])

	stats := data["stats"].(map[string]interface{})
	assert.Equal(t, 110.0, stats["hp"])
	assert.Equal(t, 14.0, stats["attack"])
}

func TestGenerateProfileEndpoint_EmptyHistory(t *testing.T) {
	router := newTestRouter(t)

	// 没有对话记录时返回400
	w := doJSON(router, http.MethodPost, "/api/profile/generate", gin.H{"user_id": "nobody"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := parseResponse(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "EMPTY_HISTORY", resp.Error.Code)
}

func TestMapProfileStatsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/profile/stats", gin.H{
		"name":   "凯尔",
		"gender": "M",
		"stats":  gin.H{"hp": 120, "speed": 12},
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse(t, w)
	stats := resp.Data.(map[string]interface{})
	assert.Equal(t, 120.0, stats["hp"])
	assert.Equal(t, 12.0, stats["speed"])
	// 缺失字段使用默认值
	assert.Equal(t, 10.0, stats["attack"])
}

func TestConversationEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/chat", gin.H{
		"user_id":  "user1",
		"question": "你好",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/conversation/user1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["has_history"])
	assert.Len(t, data["turns"], 2)

	w = doJSON(router, http.MethodPost, "/api/conversation/clear", gin.H{"user_id": "user1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/conversation/user1", nil)
	resp = parseResponse(t, w)
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["has_history"])
}

func TestCatalogEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/traits", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse(t, w)
	traits := resp.Data.([]interface{})
	require.Len(t, traits, 1)
	assert.Equal(t, "Brave", traits[0].(map[string]interface{})["name"])

	w = doJSON(router, http.MethodGet, "/api/metadata", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = parseResponse(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Contains(t, data, "traits")
	assert.Contains(t, data, "skills")
	assert.Contains(t, data, "jobs")
	assert.Contains(t, data, "default_stats")
}

func TestHealthCheckEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["llm_ready"])
}

func TestLLMStatusEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/llm/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["ready"])
}
