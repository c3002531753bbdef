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

// Package orchestrator 单通电话的会话编排：建立时选择 agent 并桥接语音引擎，
// 之后串行处理引擎事件、工具调用与终止回调，并在结束时分类登记。
package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"voice-platform/internal/call"
	"voice-platform/internal/outcome"
	"voice-platform/internal/tool"
	"voice-platform/pkg/config"
	perrors "voice-platform/pkg/errors"
	"voice-platform/pkg/log"
	"voice-platform/pkg/metrics"
	"voice-platform/pkg/secrets"
	"voice-platform/pkg/tracing"
)

// AgentRouter 被叫号码 -> agent，由 routing.Router 实现
type AgentRouter interface {
	SelectAgent(calledNumber string) (string, bool)
}

// ToolDispatcher 由 dispatch.Dispatcher 实现
type ToolDispatcher interface {
	Handle(ctx context.Context, req tool.Request, sess *call.Session) tool.Result
}

// OutcomeRecorder 由 outcome.Recorder 实现
type OutcomeRecorder interface {
	Record(ctx context.Context, sess *call.Session, class outcome.Class, d outcome.Detail) bool
}

// Deps 编排器依赖，进程内共享且只读
type Deps struct {
	Router     AgentRouter
	Secrets    secrets.Store
	Dispatcher ToolDispatcher
	Recorder   OutcomeRecorder
	Engine     config.EngineConfig
	Logger     *log.Logger
}

// Orchestrator 无跨通话可变状态，可并发 Open
type Orchestrator struct {
	router     AgentRouter
	secrets    secrets.Store
	dispatcher ToolDispatcher
	recorder   OutcomeRecorder
	engine     config.EngineConfig
	logger     *log.Logger
}

// New 创建 Orchestrator
func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	return &Orchestrator{
		router:     deps.Router,
		secrets:    deps.Secrets,
		dispatcher: deps.Dispatcher,
		recorder:   deps.Recorder,
		engine:     deps.Engine,
		logger:     logger,
	}
}

// NewCall 传输层上报的新通话
type NewCall struct {
	CallID    string
	Direction string
	From      string
	To        string
}

// 建立结果，作为 voice_calls_total 的 result 标签
const (
	resultBridged       = "bridged"
	resultConfigMissing = "config_missing"
	resultRejected      = "rejected"
	resultNoAgent       = "no_agent"
	resultTransport     = "transport_error"
)

// Open 建立通话：解析凭据、选择 agent、下发 answer/pause/llm/hangup。
// 返回的 Call 即该通话的事件处理器；失败时已挂断且会话为 Closed。
func (o *Orchestrator) Open(ctx context.Context, nc NewCall, tr Transport) (*Call, error) {
	sess := call.New(nc.CallID, call.ParseDirection(nc.Direction), nc.From, nc.To)
	logger := o.logger.With("call_sid", sess.CorrelationID(), "direction", string(sess.Direction()))
	ctx, span := tracing.StartCallSpan(ctx, sess.CorrelationID(), string(sess.Direction()))
	logger.Info("新通话", "from", nc.From, "to", nc.To)

	apiKey, err := secrets.Require(ctx, o.secrets, o.engine.APIKeyRef)
	if err != nil {
		logger.Error("语音引擎凭据缺失，挂断", "key", o.engine.APIKeyRef, "error", err)
		return nil, o.abort(ctx, sess, tr, span, resultConfigMissing, err)
	}

	if sess.Direction() != call.DirectionInbound {
		err := perrors.Wrapf(perrors.ErrRoutingFailure, "direction %q not supported", string(sess.Direction()))
		logger.Warn("拒绝非呼入通话", "error", err)
		return nil, o.abort(ctx, sess, tr, span, resultRejected, err)
	}

	agentID, ok := o.router.SelectAgent(sess.CalledNumber())
	if !ok {
		err := perrors.Wrapf(perrors.ErrRoutingFailure, "no agent for %q", sess.CalledNumber())
		logger.Error("未找到 agent，挂断", "error", err)
		return nil, o.abort(ctx, sess, tr, span, resultNoAgent, err)
	}
	if err := sess.AssignAgent(agentID); err != nil {
		return nil, o.abort(ctx, sess, tr, span, resultNoAgent, perrors.Wrap(perrors.ErrRoutingFailure, err.Error()))
	}
	_ = sess.Transition(call.StateAgentSelected)
	logger = logger.With("agent_id", agentID)

	c := &Call{
		sess:   sess,
		tr:     tr,
		o:      o,
		logger: logger,
		span:   span,
	}

	tr.Answer()
	tr.Pause(o.engine.PauseSeconds)
	tr.StartBridge(BridgeConfig{
		Vendor:           o.engine.Vendor,
		Model:            o.engine.Model,
		AgentID:          agentID,
		APIKey:           apiKey,
		ActionHook:       o.engine.ActionHook,
		EventHook:        o.engine.EventHook,
		ToolHook:         o.engine.ToolHook,
		InputSampleRate:  o.engine.InputSampleRate,
		OutputSampleRate: o.engine.OutputSampleRate,
	})
	tr.Hangup()
	if err := tr.Send(ctx); err != nil {
		logger.Error("下发桥接指令失败", "error", err)
		_ = sess.Transition(call.StateClosed)
		metrics.CallsTotal.WithLabelValues(string(sess.Direction()), resultTransport).Inc()
		err = perrors.Wrap(perrors.ErrTransport, err.Error())
		tracing.EndSpan(span, err)
		return nil, err
	}

	_ = sess.Transition(call.StateBridging)
	metrics.CallsTotal.WithLabelValues(string(sess.Direction()), resultBridged).Inc()
	metrics.ActiveCalls.Inc()
	logger.Info("语音桥接已建立")
	return c, nil
}

// abort 致命建立错误：静默挂断并关闭会话
func (o *Orchestrator) abort(ctx context.Context, sess *call.Session, tr Transport, span trace.Span, result string, cause error) error {
	tr.Hangup()
	if err := tr.Send(ctx); err != nil {
		o.logger.Warn("挂断指令下发失败", "call_sid", sess.CorrelationID(), "error", err)
	}
	_ = sess.Transition(call.StateClosed)
	metrics.CallsTotal.WithLabelValues(string(sess.Direction()), result).Inc()
	tracing.EndSpan(span, cause)
	return fmt.Errorf("open call %s: %w", sess.CorrelationID(), cause)
}
