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

package orchestrator

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/trace"

	"voice-platform/internal/call"
	"voice-platform/internal/outcome"
	"voice-platform/pkg/log"
	"voice-platform/pkg/metrics"
	"voice-platform/pkg/tracing"
)

// closeStreamEnded 事件流在未收到关闭事件时结束
const closeStreamEnded = 1006

// Call 已桥接通话的事件处理器，只能由一个协程驱动
type Call struct {
	sess   *call.Session
	tr     Transport
	o      *Orchestrator
	logger *log.Logger
	span   trace.Span
	closed bool
}

// Session 只读访问会话
func (c *Call) Session() *call.Session { return c.sess }

// Run 串行消费事件，收到关闭事件或 channel 关闭后返回
func (c *Call) Run(ctx context.Context, events <-chan SessionEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				c.Handle(ctx, SessionEvent{Kind: EventKindClose, CloseCode: closeStreamEnded, CloseReason: "event stream ended"})
				return
			}
			if c.Handle(ctx, ev) {
				return
			}
		case <-ctx.Done():
			c.Handle(ctx, SessionEvent{Kind: EventKindClose, CloseCode: closeStreamEnded, CloseReason: ctx.Err().Error()})
			return
		}
	}
}

// Handle 处理一个事件，返回通话是否已结束
func (c *Call) Handle(ctx context.Context, ev SessionEvent) bool {
	if c.closed {
		return true
	}
	ctx = trace.ContextWithSpan(ctx, c.span)
	metrics.SessionEventTotal.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case EventKindEvent:
		c.activate()
		c.onEvent(ev.Event)
	case EventKindToolCall:
		c.activate()
		c.onToolCall(ctx, ev)
	case EventKindFinal:
		c.onFinal(ctx, ev.Final)
	case EventKindClose:
		c.onClose(ctx, ev.CloseCode, ev.CloseReason)
		return true
	case EventKindError:
		c.logger.Warn("会话收到错误", "error", ev.Err)
	default:
		c.logger.Warn("未知会话事件", "kind", int(ev.Kind))
	}
	return false
}

func (c *Call) activate() {
	if c.sess.State() == call.StateBridging {
		_ = c.sess.Transition(call.StateActive)
	}
}

func (c *Call) onEvent(raw json.RawMessage) {
	var evt engineEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		c.logger.Warn("引擎事件解析失败", "error", err)
		return
	}
	c.logger.Debug("引擎事件", "type", evt.Type)

	if evt.Type == eventConversationMetadata {
		if evt.ConversationInitiationMetadataEvent != nil && evt.ConversationInitiationMetadataEvent.ConversationID != "" {
			if c.sess.SetConversationID(evt.ConversationInitiationMetadataEvent.ConversationID) {
				c.logger.Info("conversation_id 已记录", "conversation_id", c.sess.ConversationID())
			}
		} else {
			c.logger.Warn("conversation_initiation_metadata 缺少 conversation_id", "event", string(raw))
		}
	}
	if evt.ConversationID != "" && c.sess.ConversationID() == "" {
		c.sess.SetConversationID(evt.ConversationID)
		c.logger.Info("conversation_id 已记录", "conversation_id", evt.ConversationID, "source", evt.Type)
	}

	switch evt.Type {
	case eventUserTranscript:
		if evt.UserTranscriptionEvent != nil && evt.UserTranscriptionEvent.UserTranscript != "" {
			c.sess.AppendTranscript(call.RoleUser, evt.UserTranscriptionEvent.UserTranscript)
			if c.sess.MarkUserInteraction() {
				c.logger.Info("检测到用户发言")
			}
		}
	case eventAgentResponse:
		if evt.AgentResponseEvent != nil && evt.AgentResponseEvent.AgentResponse != "" {
			c.sess.AppendTranscript(call.RoleAgent, evt.AgentResponseEvent.AgentResponse)
		}
	}
}

func (c *Call) onToolCall(ctx context.Context, ev SessionEvent) {
	req := ev.ToolCall
	c.logger.Info("收到工具调用", "tool", req.Name, "tool_call_id", req.ToolCallID)
	result := c.o.dispatcher.Handle(ctx, req, c.sess)
	if err := c.tr.SendToolOutput(ctx, req.ToolCallID, result); err != nil {
		c.logger.Error("工具结果回传失败", "tool", req.Name, "tool_call_id", req.ToolCallID, "error", err)
	}
}

func (c *Call) onFinal(ctx context.Context, f Final) {
	_ = c.sess.Transition(call.StateTerminating)
	c.logger.Info("桥接结束", "completion_reason", f.CompletionReason, "has_error", f.Error != nil)

	if c.sess.IsForwardingCall() {
		c.sess.MarkFinalHandled()
		c.reply(ctx)
		return
	}

	class := outcome.Classify(outcome.Input{
		CompletionReason:   f.CompletionReason,
		Error:              f.Error,
		ToolCallMade:       c.sess.ToolCallMade(),
		HasUserInteraction: c.sess.HasUserInteraction(),
	})
	c.o.recorder.Record(ctx, c.sess, class, outcome.Detail{Reason: f.CompletionReason})
	c.sess.MarkFinalHandled()

	resp := outcome.ResponseFor(f.CompletionReason, f.Error)
	if resp.Say != "" {
		c.logger.Warn("引擎服务端错误，播报致歉", "completion_reason", f.CompletionReason)
		c.tr.Say(resp.Say)
	}
	if resp.Hangup {
		c.tr.Hangup()
	}
	c.reply(ctx)
}

func (c *Call) reply(ctx context.Context) {
	if err := c.tr.Reply(ctx); err != nil {
		c.logger.Error("final 应答下发失败", "error", err)
	}
}

func (c *Call) onClose(ctx context.Context, code int, reason string) {
	c.logger.Info("会话关闭", "code", code, "reason", reason)
	class := outcome.ClassifyClose(code, c.sess.ToolCallMade(), c.sess.FinalHandled())
	if class == outcome.UnexpectedClose {
		c.o.recorder.Record(ctx, c.sess, class, outcome.Detail{Reason: reason, CloseCode: code})
	}
	_ = c.sess.Transition(call.StateClosed)
	c.closed = true
	metrics.ActiveCalls.Dec()
	tracing.EndSpan(c.span, nil)
}
