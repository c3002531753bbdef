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

package builtin

import (
	"context"
	"encoding/json"

	"voice-platform/internal/call"
	"voice-platform/internal/tool"
	"voice-platform/pkg/log"
)

// AppointmentConfirmation 预约请求受理后的固定回复
const AppointmentConfirmation = "Randevu talebi başarıyla alınmıştır."

// AppointmentTool 实现 saveAppointmentRequest：仅记录日志，不落库
type AppointmentTool struct {
	logger *log.Logger
}

// NewAppointmentTool 创建 saveAppointmentRequest 工具
func NewAppointmentTool(logger *log.Logger) *AppointmentTool {
	if logger == nil {
		logger = log.Discard()
	}
	return &AppointmentTool{logger: logger}
}

// Name 实现 tool.Tool
func (t *AppointmentTool) Name() string { return "saveAppointmentRequest" }

// Description 实现 tool.Tool
func (t *AppointmentTool) Description() string {
	return "受理预约请求。参数原样记录，返回确认文本。"
}

// Schema 实现 tool.Tool
func (t *AppointmentTool) Schema() tool.Schema {
	return tool.Schema{
		Type:        "object",
		Description: "预约请求参数（自由结构）",
	}
}

// Execute 实现 tool.Tool
func (t *AppointmentTool) Execute(_ context.Context, sess *call.Session, args map[string]any) (any, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, tool.NewError("Failed to save appointment request.", err)
	}
	t.logger.Info("预约请求已受理", "call_sid", sess.CorrelationID(), "data", string(data))
	return AppointmentConfirmation, nil
}
