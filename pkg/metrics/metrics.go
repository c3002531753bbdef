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

package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// DefaultRegistry 进程内指标注册表，/metrics 从此导出
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		CallsTotal, ActiveCalls, CallOutcomeTotal,
		ToolDuration, ToolErrorTotal,
		IntegrationDuration, SessionEventTotal,
		TransportMessageTotal,
	)
}

// CallsTotal 新通话数（按方向与建立结果）
var CallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "voice_calls_total",
		Help: "新建通话总数（按方向、结果）",
	},
	[]string{"direction", "result"}, // result: bridged | config_missing | no_agent | rejected
)

// ActiveCalls 当前活跃通话数
var ActiveCalls = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "voice_active_calls",
		Help: "当前活跃通话数",
	},
)

// CallOutcomeTotal 通话结果分类
var CallOutcomeTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "voice_call_outcome_total",
		Help: "通话结果分类总数",
	},
	[]string{"outcome", "persisted"}, // outcome: success | failed | incomplete | unexpected_close | no_record
)

// ToolDuration 工具调用耗时
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "voice_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// ToolErrorTotal 返回 is_error 的工具调用数
var ToolErrorTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "voice_tool_error_total",
		Help: "is_error=true 的工具结果总数",
	},
	[]string{"tool"},
)

// IntegrationDuration 外部 HTTP 调用耗时
var IntegrationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "voice_integration_duration_seconds",
		Help:    "外部集成调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"endpoint", "status"}, // status: ok | error
)

// SessionEventTotal 会话事件（按类型）
var SessionEventTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "voice_session_event_total",
		Help: "收到的会话事件总数",
	},
	[]string{"kind"},
)

// TransportMessageTotal 电话运行时入站消息（按 type）
var TransportMessageTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "voice_transport_message_total",
		Help: "电话运行时入站消息总数",
	},
	[]string{"type"},
)

// WritePrometheus 以 text 格式输出 DefaultRegistry
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
