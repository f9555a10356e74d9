package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"portfolio-go/internal/model"
	"portfolio-go/internal/service"
	"portfolio-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源，跨域由 CORS 中间件统一处理
		},
	}
)

// ChatHandler 负责处理聊天相关的请求：流式、一次性以及 WebSocket。
type ChatHandler struct {
	chatService    service.ChatService
	requestTimeout time.Duration
}

// NewChatHandler 创建一个新的 ChatHandler。requestTimeout 作用于 WebSocket 上的每一条消息。
func NewChatHandler(chatService service.ChatService, requestTimeout time.Duration) *ChatHandler {
	return &ChatHandler{
		chatService:    chatService,
		requestTimeout: requestTimeout,
	}
}

// Chat 处理 POST /chat，以 text/plain 流式返回回答。
func (h *ChatHandler) Chat(c *gin.Context) {
	h.stream(c, false)
}

// Inspector 处理 POST /chat-inspector，回答限定在 elementInfo 描述的元素上。
func (h *ChatHandler) Inspector(c *gin.Context) {
	h.stream(c, true)
}

// ChatSimple 处理 POST /chat-simple，一次性返回 JSON。
func (h *ChatHandler) ChatSimple(c *gin.Context) {
	h.simple(c, false)
}

// InspectorSimple 处理 POST /chat-inspector-simple。
func (h *ChatHandler) InspectorSimple(c *gin.Context) {
	h.simple(c, true)
}

func (h *ChatHandler) bind(c *gin.Context) (model.ChatRequest, bool) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("聊天请求参数错误: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return req, false
	}
	return req, true
}

func (h *ChatHandler) stream(c *gin.Context, inspector bool) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	stream, err := h.chatService.Stream(c.Request.Context(), req, inspector)
	if err != nil {
		writeChatError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Model-Used", stream.Model())
	c.Header("X-Provider", stream.Provider())
	c.Header("X-Session-ID", stream.SessionID)
	c.Status(http.StatusOK)

	// 流已经开始，之后的错误只能记录并截断响应。
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warnf("流式响应中断, provider: %s, model: %s, error: %v", stream.Provider(), stream.Model(), err)
			}
			return
		}
		if _, err := io.WriteString(c.Writer, chunk); err != nil {
			log.Warnf("写入流式响应失败: %v", err)
			return
		}
		c.Writer.Flush()
	}
}

func (h *ChatHandler) simple(c *gin.Context, inspector bool) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	reply, err := h.chatService.Reply(c.Request.Context(), req, inspector)
	if err != nil {
		writeChatError(c, err)
		return
	}

	resp := gin.H{
		"response":   reply.Response,
		"model":      reply.Model,
		"model_used": reply.ModelUsed,
		"provider":   reply.Provider,
		"timestamp":  timestamp(),
		"session_id": reply.SessionID,
	}
	if inspector && req.ElementInfo != nil {
		resp["element"] = req.ElementInfo.Title
	}
	c.JSON(http.StatusOK, resp)
}

// wsRequest 是 WebSocket 上客户端发送的一帧。type 为 "stop" 时中断当前回答。
type wsRequest struct {
	Type string `json:"type"`
	model.ChatRequest
	Inspector bool `json:"inspector"`

	invalid error
}

// Handle 处理 GET /chat/ws。每条消息的回答以 {"chunk": "..."} 帧推送，结束时推送 completion 通知。
func (h *ChatHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立, client: %s", c.ClientIP())

	var stop atomic.Bool
	requests := make(chan wsRequest, 4)
	done := make(chan struct{})
	defer close(done)

	// 读循环独立运行，回答推送期间仍能收到停止指令。只有主循环写连接。
	go func() {
		defer close(requests)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warnf("从 WebSocket 读取消息失败: %v", err)
				}
				return
			}
			var req wsRequest
			if err := json.Unmarshal(message, &req); err != nil {
				req = wsRequest{invalid: err}
			}
			if req.Type == "stop" {
				stop.Store(true)
				continue
			}
			select {
			case requests <- req:
			case <-done:
				return
			}
		}
	}()

	ctx := c.Request.Context()
	for req := range requests {
		stop.Store(false)
		if req.invalid != nil {
			log.Warnf("WebSocket 消息格式错误: %v", req.invalid)
			if err := conn.WriteJSON(gin.H{"type": "error", "error": "Invalid message", "kind": kindInvalidRequest}); err != nil {
				return
			}
			continue
		}
		if err := h.streamOverSocket(ctx, conn, req, &stop); err != nil {
			log.Warnf("写入 WebSocket 失败: %v", err)
			return
		}
	}
	log.Infof("WebSocket 连接已关闭, client: %s", c.ClientIP())
}

// streamOverSocket 推送一条消息的回答。只有写连接失败时才返回错误。
func (h *ChatHandler) streamOverSocket(ctx context.Context, conn *websocket.Conn, req wsRequest, stop *atomic.Bool) error {
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	stream, err := h.chatService.Stream(ctx, req.ChatRequest, req.Inspector)
	if err != nil {
		if !isValidationError(err) {
			log.Errorf("处理流式响应失败: %v", err)
		}
		frame := gin.H{"type": "error", "error": "Failed to process chat request", "kind": errorKind(err), "details": err.Error()}
		if isValidationError(err) {
			frame["error"] = validationMessage(err)
			delete(frame, "details")
		}
		if err := conn.WriteJSON(frame); err != nil {
			return err
		}
		return conn.WriteJSON(completionFrame("finished", "", ""))
	}
	defer stream.Close()

	for {
		if stop.Load() {
			log.Infof("收到停止指令，中断流式响应, session: %s", stream.SessionID)
			return conn.WriteJSON(completionFrame("stopped", stream.Model(), stream.SessionID))
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warnf("流式响应中断, provider: %s, model: %s, error: %v", stream.Provider(), stream.Model(), err)
			if err := conn.WriteJSON(gin.H{"type": "error", "error": "Response interrupted", "kind": errorKind(err)}); err != nil {
				return err
			}
			break
		}
		if err := conn.WriteJSON(gin.H{"chunk": chunk}); err != nil {
			return err
		}
	}
	return conn.WriteJSON(completionFrame("finished", stream.Model(), stream.SessionID))
}

func completionFrame(status, modelUsed, sessionID string) gin.H {
	now := time.Now()
	frame := gin.H{
		"type":      "completion",
		"status":    status,
		"message":   "Response completed",
		"timestamp": now.UnixMilli(),
		"date":      now.Format("2006-01-02T15:04:05"),
	}
	if status == "stopped" {
		frame["message"] = "Response stopped"
	}
	if modelUsed != "" {
		frame["model_used"] = modelUsed
	}
	if sessionID != "" {
		frame["session_id"] = sessionID
	}
	return frame
}
