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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"voice-platform/internal/routing"
	"voice-platform/internal/tool/registry"
	"voice-platform/pkg/log"
	"voice-platform/pkg/metrics"
	"voice-platform/pkg/redaction"
)

const serviceName = "voice-platform"

// AgentLister 由 routing.Router 实现
type AgentLister interface {
	Configurations() routing.Configurations
}

// ToolLister 由 registry.Registry 实现
type ToolLister interface {
	Definitions() []registry.Definition
}

// Handler HTTP 处理器
type Handler struct {
	agents   AgentLister
	tools    ToolLister
	redactor *redaction.Engine
	logger   *log.Logger
}

// NewHandler 创建 Handler；agents、tools 可为 nil
func NewHandler(agents AgentLister, tools ToolLister, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Handler{agents: agents, tools: tools, logger: logger}
}

// SetRedactor 设置回调日志脱敏
func (h *Handler) SetRedactor(r *redaction.Engine) {
	h.redactor = r
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   serviceName,
	})
}

// DialStatus 电话运行时的拨号状态回调，只记录
// POST /dial-status
func (h *Handler) DialStatus(ctx context.Context, c *app.RequestContext) {
	payload := map[string]any{}
	body := c.Request.Body()
	if bytes.Contains(c.ContentType(), []byte(consts.MIMEApplicationJSON)) {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload["raw"] = string(body)
		}
	} else {
		c.PostArgs().VisitAll(func(key, value []byte) {
			payload[string(key)] = string(value)
		})
	}
	h.logger.Info("收到拨号状态回调", "payload", h.redactor.Redact(redaction.KindDialStatus, payload))
	c.String(consts.StatusOK, "OK")
}

// ListAgents 号码 -> agent 映射与默认值
// GET /api/agents
func (h *Handler) ListAgents(ctx context.Context, c *app.RequestContext) {
	if h.agents == nil {
		c.JSON(consts.StatusServiceUnavailable, utils.H{"error": "routing not configured"})
		return
	}
	cfg := h.agents.Configurations()
	c.JSON(consts.StatusOK, utils.H{
		"mappings":          cfg.Mappings,
		"default_agent_id":  cfg.DefaultAgentID,
		"fallback_agent_id": cfg.FallbackAgentID,
		"total":             len(cfg.Mappings),
	})
}

// ListTools 已注册的客户端工具
// GET /api/tools
func (h *Handler) ListTools(ctx context.Context, c *app.RequestContext) {
	if h.tools == nil {
		c.JSON(consts.StatusOK, utils.H{"tools": []registry.Definition{}, "total": 0})
		return
	}
	defs := h.tools.Definitions()
	c.JSON(consts.StatusOK, utils.H{"tools": defs, "total": len(defs)})
}

// Metrics Prometheus 文本格式
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		h.logger.Error("导出指标失败", "error", err)
		c.String(consts.StatusInternalServerError, err.Error())
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
