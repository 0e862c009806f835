package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/iris-chat/internal/service/ai"
	"github.com/zhouzirui/iris-chat/internal/service/transcript"
)

// InvalidJSONReply 是收到无法解析的帧时回复的文本。
const InvalidJSONReply = "Invalid JSON format received ☠️"

const fallbackReply = "Sorry, I could not come up with an answer right now. Please try again."

// WebSocketHandler 负责 /ws/chat/{clientID} 的聊天长连接。
type WebSocketHandler struct {
	responder ai.Responder
	history   *transcript.Service
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewWebSocketHandler 创建聊天 WebSocket 处理器。
func NewWebSocketHandler(responder ai.Responder, history *transcript.Service, logger *zap.Logger) *WebSocketHandler {
	if responder == nil {
		responder = ai.EchoResponder{}
	}
	if history == nil {
		history = transcript.NewService(transcript.DefaultLimit)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		responder: responder,
		history:   history,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.Named("websocket"),
	}
}

// RegisterRoutes 注册聊天路由。
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat/{clientID}", h.handleWebSocket)
}

type inboundMessage struct {
	Message string `json:"message"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if strings.TrimSpace(clientID) == "" {
		http.Error(w, "clientID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("client", clientID))
	logger.Info("client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 读循环持续运行以便及时回应客户端的 ping，回复在单独的协程里生成。
	inbox := make(chan string, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.serve(ctx, conn, clientID, inbox, logger)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read error", zap.Error(err))
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		select {
		case inbox <- string(data):
		case <-ctx.Done():
		}
	}

	close(inbox)
	cancel()
	<-done
	logger.Info("client disconnected")
}

func (h *WebSocketHandler) serve(ctx context.Context, conn *websocket.Conn, clientID string, inbox <-chan string, logger *zap.Logger) {
	for raw := range inbox {
		var msg inboundMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			logger.Debug("invalid frame", zap.Error(err))
			h.write(conn, InvalidJSONReply, logger)
			continue
		}

		text := strings.TrimSpace(msg.Message)
		if text == "" {
			continue
		}

		reply := h.reply(ctx, clientID, text, logger)
		if ctx.Err() != nil {
			return
		}
		h.write(conn, reply, logger)
	}
}

func (h *WebSocketHandler) reply(ctx context.Context, clientID, text string, logger *zap.Logger) string {
	past, err := h.history.History(ctx, clientID)
	if err != nil {
		logger.Warn("failed to load history", zap.Error(err))
	}

	start := time.Now()
	reply, err := h.responder.Reply(ctx, clientID, past, text)
	if err != nil {
		logger.Error("responder failed", zap.Error(err))
		return fallbackReply
	}
	if reply == "" {
		reply = fallbackReply
	}
	logger.Debug("reply generated", zap.Duration("elapsed", time.Since(start)), zap.Int("length", len(reply)))

	if _, err := h.history.Append(ctx, clientID, transcript.RoleUser, text); err != nil {
		logger.Warn("failed to remember user turn", zap.Error(err))
	}
	if _, err := h.history.Append(ctx, clientID, transcript.RoleAssistant, reply); err != nil {
		logger.Warn("failed to remember assistant turn", zap.Error(err))
	}
	return reply
}

func (h *WebSocketHandler) write(conn *websocket.Conn, text string, logger *zap.Logger) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		logger.Warn("write failed", zap.Error(err))
	}
}
