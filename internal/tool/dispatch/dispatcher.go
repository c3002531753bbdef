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

// Package dispatch 将代理的工具调用路由到已注册工具并生成结果信封。
// Handle 是终止边界：任何失败（含 panic）都转成 is_error 结果，不向上返回错误。
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"voice-platform/internal/call"
	"voice-platform/internal/tool"
	"voice-platform/internal/tool/registry"
	"voice-platform/pkg/log"
	"voice-platform/pkg/metrics"
	"voice-platform/pkg/redaction"
	"voice-platform/pkg/tracing"
)

const (
	unknownToolLabel = "unknown"
	invalidArgsLabel = "invalid_args"
)

// Dispatcher 并发安全；会话状态只通过传入的 sess 修改
type Dispatcher struct {
	registry *registry.Registry
	limiter  *Limiter
	logger   *log.Logger
	redactor *redaction.Engine
}

// New 创建 Dispatcher；limiter 可为 nil
func New(reg *registry.Registry, limiter *Limiter, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Discard()
	}
	return &Dispatcher{registry: reg, limiter: limiter, logger: logger}
}

// SetRedactor 设置参数日志脱敏；未设置时记录原始参数
func (d *Dispatcher) SetRedactor(r *redaction.Engine) {
	d.redactor = r
}

// Handle 执行一次工具调用，恰好返回一个结果
func (d *Dispatcher) Handle(ctx context.Context, req tool.Request, sess *call.Session) tool.Result {
	logger := d.logger.With("call_sid", sess.CorrelationID(), "tool", req.Name, "tool_call_id", req.ToolCallID)

	if req.ArgsErr != nil {
		logger.Warn("工具参数无法解析", "error", req.ArgsErr)
		metrics.ToolErrorTotal.WithLabelValues(invalidArgsLabel).Inc()
		return tool.Failure(req.ToolCallID, "Invalid arguments for tool "+req.Name)
	}

	t, ok := d.registry.Get(req.Name)
	if !ok {
		logger.Warn("收到未处理的工具调用")
		metrics.ToolErrorTotal.WithLabelValues(unknownToolLabel).Inc()
		return tool.Failure(req.ToolCallID, "Unknown tool "+req.Name)
	}

	args := req.Args
	if args == nil {
		args = map[string]any{}
	}

	logger.Debug("工具调用参数", "args", d.redactor.Redact(redaction.KindToolArgs, args))

	ctx, span := tracing.StartToolSpan(ctx, req.Name, req.ToolCallID)
	start := time.Now()
	out, err := d.execute(ctx, t, sess, args)
	metrics.ToolDuration.WithLabelValues(req.Name).Observe(time.Since(start).Seconds())
	tracing.EndSpan(span, err)

	if err != nil {
		logger.Error("工具执行失败", "error", err, "duration_ms", time.Since(start).Milliseconds(),
			"args", d.redactor.Redact(redaction.KindToolArgs, args))
		metrics.ToolErrorTotal.WithLabelValues(req.Name).Inc()
		return tool.Failure(req.ToolCallID, tool.PublicMessage(err))
	}
	logger.Info("工具执行完成", "duration_ms", time.Since(start).Milliseconds())
	return tool.Success(req.ToolCallID, out)
}

func (d *Dispatcher) execute(ctx context.Context, t tool.Tool, sess *call.Session, args map[string]any) (out any, err error) {
	release, err := d.limiter.Acquire(ctx, t.Name())
	if err != nil {
		return nil, err
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("工具 panic", "tool", t.Name(), "panic", r, "stack", string(debug.Stack()))
			out, err = nil, fmt.Errorf("tool %s panic: %v", t.Name(), r)
		}
	}()
	return t.Execute(ctx, sess, args)
}
