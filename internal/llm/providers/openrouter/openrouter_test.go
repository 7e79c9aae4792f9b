// internal/llm/providers/openrouter/openrouter_test.go
package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loreless/ai-service/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	p := &Provider{}
	require.NoError(t, p.Initialize(map[string]string{
		"api_key":  "test-key",
		"base_url": baseURL,
	}))
	return p
}

func TestStreamCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"model\":\"openai/gpt-4.1-nano\",\"choices\":[{\"delta\":{\"content\":\"慢慢\"}}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"说。\"}}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{Prompt: "你是谁"})
	require.NoError(t, err)

	var text string
	var finishReason string
	for resp := range ch {
		require.NoError(t, resp.Err)
		text += resp.Text
		if resp.Done {
			finishReason = resp.FinishReason
		}
	}
	assert.Equal(t, "慢慢说。", text)
	assert.Equal(t, "stop", finishReason)
}

func TestStreamCompletionCancelWithoutReader(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"第一\"}}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"第二\"}}]}\n\n")
		flusher.Flush()
		<-release
	}))
	defer server.Close()
	// server.Close等待处理器退出，必须先释放release（defer为LIFO）
	defer close(release)

	p := newTestProvider(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := p.StreamCompletion(ctx, llm.CompletionRequest{Prompt: "你是谁"})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "第一", first.Text)

	// 取消后不再读取，生产goroutine必须自行退出并关闭通道
	cancel()
	time.Sleep(200 * time.Millisecond)

	select {
	case resp, ok := <-ch:
		require.False(t, ok, "取消后通道应已关闭，却收到了: %+v", resp)
	case <-time.After(time.Second):
		t.Fatal("取消后流式goroutine未退出")
	}
}
