// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voice-platform/internal/orchestrator"
	"voice-platform/internal/tool"
	"voice-platform/pkg/config"
	"voice-platform/pkg/log"
	"voice-platform/pkg/metrics"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	// 建立失败后等待运行时关闭连接的上限
	drainTimeout = 30 * time.Second
	eventBuffer  = 64
)

// Opener 由 orchestrator.Orchestrator 实现
type Opener interface {
	Open(ctx context.Context, nc orchestrator.NewCall, tr orchestrator.Transport) (*orchestrator.Call, error)
}

// Hooks llm verb 上配置的回调路径
type Hooks struct {
	Action string
	Event  string
	Tool   string
}

// Server 电话运行时 websocket 入口；每个连接对应一通电话
type Server struct {
	cfg              config.TelephonyConfig
	hooks            Hooks
	opener           Opener
	logger           *log.Logger
	upgrader         websocket.Upgrader
	handshakeTimeout time.Duration

	httpServer *http.Server
	baseCtx    context.Context
	cancel     context.CancelFunc

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewServer 创建 Server
func NewServer(cfg config.TelephonyConfig, hooks Hooks, opener Opener, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	if cfg.Subprotocol == "" {
		cfg.Subprotocol = DefaultSubprotocol
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	handshake := config.ParseDuration(cfg.HandshakeTimeout, defaultHandshakeTimeout)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		hooks:  hooks,
		opener: opener,
		logger: logger,
		upgrader: websocket.Upgrader{
			Subprotocols:     []string{cfg.Subprotocol},
			HandshakeTimeout: handshake,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		handshakeTimeout: handshake,
		baseCtx:          ctx,
		cancel:           cancel,
		conns:            make(map[*websocket.Conn]struct{}),
	}
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: handshake,
	}
	return s
}

// Handler 返回挂载在配置路径上的 http.Handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	return mux
}

// ListenAndServe 阻塞直到 Shutdown
func (s *Server) ListenAndServe() error {
	s.logger.Info("telephony websocket 监听", "port", s.cfg.Port, "path", s.cfg.Path)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("telephony server: %w", err)
	}
	return nil
}

// Shutdown 停止接受新连接，并以 1001 关闭进行中的通话
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.cancel()
	return err
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket 升级失败", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.track(conn)
	defer s.untrack(conn)
	defer conn.Close()

	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	s.serve(s.baseCtx, conn)
}

func (s *Server) track(conn *websocket.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(s.handshakeTimeout))
	first, err := readMessage(conn)
	if err != nil {
		s.logger.Warn("读取 session:new 失败", "error", err)
		return
	}
	if first.Type != msgSessionNew {
		s.logger.Warn("首条消息必须是 session:new", "type", first.Type)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "expected session:new"),
			time.Now().Add(time.Second))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	var sd sessionData
	if len(first.Data) > 0 {
		if err := json.Unmarshal(first.Data, &sd); err != nil {
			s.logger.Warn("session:new data 解析失败", "error", err)
		}
	}
	if sd.CallSID == "" {
		sd.CallSID = first.CallSID
	}

	tr := newTransport(conn, first.MsgID, defaultWriteTimeout)
	c, err := s.opener.Open(ctx, orchestrator.NewCall{
		CallID:    sd.CallSID,
		Direction: sd.Direction,
		From:      sd.From,
		To:        sd.To,
	}, tr)
	if err != nil {
		s.drain(conn)
		return
	}

	events := make(chan orchestrator.SessionEvent, eventBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, events)
	}()

	s.readLoop(ctx, conn, tr, c.Session().CorrelationID(), events, done)
	close(events)
	<-done
}

// readLoop 把入站消息转成会话事件，连接结束时投递 Close
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, tr *wsTransport, callSID string,
	events chan<- orchestrator.SessionEvent, done <-chan struct{}) {
	logger := s.logger.With("call_sid", callSID)
	push := func(ev orchestrator.SessionEvent) bool {
		select {
		case events <- ev:
			return true
		case <-done:
			return false
		}
	}

	for {
		msg, err := readMessage(conn)
		if err != nil {
			var de *decodeError
			if errors.As(err, &de) {
				logger.Warn("无法解析的消息", "error", err)
				continue
			}
			code, reason := closeStatus(err)
			if code == websocket.CloseAbnormalClosure {
				push(orchestrator.SessionEvent{Kind: orchestrator.EventKindError, Err: err})
			}
			push(orchestrator.SessionEvent{Kind: orchestrator.EventKindClose, CloseCode: code, CloseReason: reason})
			return
		}

		var ok bool
		switch msg.Type {
		case msgVerbHook:
			ok = s.onHook(ctx, tr, msg, push, logger)
		case msgLLMEvent:
			ok = push(orchestrator.SessionEvent{Kind: orchestrator.EventKindEvent, Event: msg.Data})
		case msgLLMToolCall:
			ok = push(toolCallEvent(msg.Data))
		case msgCallStatus:
			logger.Debug("call:status", "data", string(msg.Data))
			ok = true
		case msgError:
			ok = push(orchestrator.SessionEvent{Kind: orchestrator.EventKindError,
				Err: fmt.Errorf("jambonz error: %s", string(msg.Data))})
		default:
			logger.Debug("忽略的消息", "type", msg.Type)
			ok = true
		}
		if !ok {
			return
		}
	}
}

func (s *Server) onHook(ctx context.Context, tr *wsTransport, msg inboundMessage,
	push func(orchestrator.SessionEvent) bool, logger *log.Logger) bool {
	switch msg.Hook {
	case s.hooks.Action:
		tr.expectReply(msg.MsgID)
		return push(orchestrator.SessionEvent{Kind: orchestrator.EventKindFinal, Final: orchestrator.FinalFromPayload(msg.Data)})
	case s.hooks.Event:
		s.ack(ctx, tr, msg.MsgID, logger)
		return push(orchestrator.SessionEvent{Kind: orchestrator.EventKindEvent, Event: msg.Data})
	case s.hooks.Tool:
		s.ack(ctx, tr, msg.MsgID, logger)
		return push(toolCallEvent(msg.Data))
	default:
		logger.Debug("未注册的 hook", "hook", msg.Hook)
		s.ack(ctx, tr, msg.MsgID, logger)
		return true
	}
}

func (s *Server) ack(ctx context.Context, tr *wsTransport, msgID string, logger *log.Logger) {
	if err := tr.ackEmpty(ctx, msgID); err != nil {
		logger.Warn("hook 应答失败", "error", err)
	}
}

// drain 建立失败时已下发 hangup，继续读直到运行时关闭连接
func (s *Server) drain(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(drainTimeout))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// toolCallEvent 只要能取到 tool_call_id 就投递 ToolCall，参数错误由 dispatcher 回错误结果
func toolCallEvent(data json.RawMessage) orchestrator.SessionEvent {
	req, err := tool.DecodeRequest(data)
	if err != nil {
		return orchestrator.SessionEvent{Kind: orchestrator.EventKindError, Err: err}
	}
	return orchestrator.SessionEvent{Kind: orchestrator.EventKindToolCall, ToolCall: req}
}

// decodeError 帧读取成功但内容无法解析，连接仍可用
type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode message: " + e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }

func readMessage(conn *websocket.Conn) (inboundMessage, error) {
	var msg inboundMessage
	_, data, err := conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, &decodeError{err: err}
	}
	metrics.TransportMessageTotal.WithLabelValues(messageLabel(msg.Type)).Inc()
	return msg, nil
}

// messageLabel 未知类型归为 other，限制标签基数
func messageLabel(t string) string {
	switch t {
	case msgSessionNew, msgVerbHook, msgLLMEvent, msgLLMToolCall, msgCallStatus, msgError:
		return t
	}
	return "other"
}

// closeStatus 从读错误中取关闭码；非关闭帧错误视为 1006
func closeStatus(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
