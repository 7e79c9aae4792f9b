// internal/api/websocket.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/loreless/ai-service/internal/services"
	"github.com/loreless/ai-service/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

// wsChatRequest 客户端发来的对话消息
type wsChatRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
}

// wsChatEvent 推送给客户端的事件
type wsChatEvent struct {
	Type  string `json:"type"` // chunk / done / error
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// WebSocketHandler 处理访谈对话的 WebSocket 连接
// 每条消息触发一次流式对话，回复以chunk事件逐段推送
type WebSocketHandler struct {
	Aggregate *services.ProfileAggregateService
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(aggregate *services.ProfileAggregateService) *WebSocketHandler {
	return &WebSocketHandler{Aggregate: aggregate}
}

// ProfileChatWebSocket 升级连接并处理对话消息循环
func (h *WebSocketHandler) ProfileChatWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Error("WebSocket upgrade failed", map[string]interface{}{"err": err})
		return
	}
	defer conn.Close()

	logger := utils.GetLogger()
	logger.Info("WebSocket connection established", map[string]interface{}{
		"remote": conn.RemoteAddr().String(),
	})

	for {
		var req wsChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read error", map[string]interface{}{"err": err})
			}
			return
		}

		if req.UserID == "" || req.Question == "" {
			h.writeEvent(conn, wsChatEvent{Type: "error", Error: "user_id和question不能为空"})
			continue
		}

		h.streamOne(c, conn, req)
	}
}

// streamOne 处理一条对话消息的完整流式回复
func (h *WebSocketHandler) streamOne(c *gin.Context, conn *websocket.Conn, req wsChatRequest) {
	chunks, err := h.Aggregate.ChatStream(c.Request.Context(), req.UserID, req.Question)
	if err != nil {
		h.writeEvent(conn, wsChatEvent{Type: "error", Error: err.Error()})
		return
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			h.writeEvent(conn, wsChatEvent{Type: "error", Error: chunk.Err.Error()})
			return
		}

		if chunk.Done {
			h.writeEvent(conn, wsChatEvent{Type: "done"})
			return
		}

		if !h.writeEvent(conn, wsChatEvent{Type: "chunk", Text: chunk.Text}) {
			return
		}
	}
}

// writeEvent 发送一个事件，失败时返回false
func (h *WebSocketHandler) writeEvent(conn *websocket.Conn, event wsChatEvent) bool {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(event); err != nil {
		utils.GetLogger().Warn("WebSocket write failed", map[string]interface{}{"err": err})
		return false
	}
	return true
}
