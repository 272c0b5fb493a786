package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/agentcouncil/agent/roundtable"
	"github.com/BaSui01/agentcouncil/api"
	"github.com/BaSui01/agentcouncil/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// =============================================================================
// 📡 圆桌流式 Handler（websocket）
// =============================================================================
// 协议：客户端连接后发送一条 api.DiscussRequest；服务端逐条推送
// roundtable.Event，最后推送 {"type":"result"} 或 {"type":"error"} 并正常关闭。
// =============================================================================

const (
	// streamBuffer 事件缓冲，写端跟不上时丢弃事件而不阻塞会话
	streamBuffer = 256
	// requestReadTimeout 等待首条请求的时间
	requestReadTimeout = 10 * time.Second
	// frameWriteTimeout 单帧写超时
	frameWriteTimeout = 10 * time.Second
)

// StreamMessage 流中的结束帧
type StreamMessage struct {
	Type    string             `json:"type"` // "result" 或 "error"
	Result  *roundtable.Result `json:"result,omitempty"`
	Error   *ErrorInfo         `json:"error,omitempty"`
	Dropped int                `json:"dropped_events,omitempty"`
}

// StreamHandler 圆桌流式处理器
type StreamHandler struct {
	roundtable     Discusser
	originPatterns []string
	logger         *zap.Logger
}

// NewStreamHandler 创建流式处理器；originPatterns 为空时只允许同源
func NewStreamHandler(rt Discusser, originPatterns []string, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		roundtable:     rt,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("handler", "roundtable_stream")),
	}
}

// HandleStream 升级为 websocket 并流式推送圆桌事件
// @Summary 圆桌讨论（流式）
// @Tags 议会
// @Router /api/v1/roundtable/stream [get]
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	// 会话可能长于服务器写超时
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	var req api.DiscussRequest
	readCtx, cancel := context.WithTimeout(r.Context(), requestReadTimeout)
	err = wsjson.Read(readCtx, conn, &req)
	cancel()
	if err != nil {
		h.finish(r.Context(), conn, StreamMessage{Type: "error", Error: errorInfo(
			types.NewInvalidRequestError("first message must be a discuss request").WithCause(err))})
		return
	}
	opts, apiErr := discussOptions(&req)
	if apiErr != nil {
		h.finish(r.Context(), conn, StreamMessage{Type: "error", Error: errorInfo(apiErr)})
		return
	}

	// 客户端断开时 ctx 取消，会话随之结束
	ctx := conn.CloseRead(r.Context())

	sink := newEventSink(streamBuffer)
	opts.Observer = sink

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sink.events {
			if err := h.write(ctx, conn, e); err != nil {
				h.logger.Debug("stream write failed", zap.Error(err))
				// 继续排空，避免写端退出后 sink 满
			}
		}
	}()

	res, err := h.roundtable.Discuss(ctx, req.Topic, opts)
	sink.close()
	<-done

	msg := StreamMessage{Type: "result", Result: res, Dropped: sink.droppedCount()}
	if err != nil {
		msg = StreamMessage{Type: "error", Error: toErrorInfo(err), Dropped: sink.droppedCount()}
	}
	h.finish(ctx, conn, msg)
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, frameWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func (h *StreamHandler) finish(ctx context.Context, conn *websocket.Conn, msg StreamMessage) {
	if err := h.write(ctx, conn, msg); err != nil {
		h.logger.Debug("stream final write failed", zap.Error(err))
		return
	}
	status, reason := websocket.StatusNormalClosure, "done"
	if msg.Type == "error" {
		status, reason = websocket.StatusPolicyViolation, msg.Error.Code
	}
	_ = conn.Close(status, reason)
}

// =============================================================================
// 🔧 事件缓冲
// =============================================================================

// eventSink 非阻塞的 roundtable.Observer，满时丢弃
type eventSink struct {
	mu      sync.Mutex
	closed  bool
	dropped int
	events  chan roundtable.Event
}

func newEventSink(size int) *eventSink {
	return &eventSink{events: make(chan roundtable.Event, size)}
}

// OnEvent 实现 roundtable.Observer
func (s *eventSink) OnEvent(e roundtable.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
		s.dropped++
	}
}

func (s *eventSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

func (s *eventSink) droppedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// errorInfo 转换为响应中的错误结构
func errorInfo(err *types.Error) *ErrorInfo {
	status := err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(err.Code)
	}
	return &ErrorInfo{Code: string(err.Code), Message: err.Message, Retryable: err.Retryable, HTTPStatus: status}
}

func toErrorInfo(err error) *ErrorInfo {
	var e *types.Error
	if errors.As(err, &e) {
		return errorInfo(e)
	}
	return errorInfo(types.NewError(types.ErrInternalError, "internal error"))
}
