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

	"voice-platform/internal/tool"
)

// BridgeConfig 启动语音桥接（llm 动作）所需参数
type BridgeConfig struct {
	Vendor           string
	Model            string
	AgentID          string
	APIKey           string
	ActionHook       string
	EventHook        string
	ToolHook         string
	InputSampleRate  int
	OutputSampleRate int
}

// Transport 电话运行时的单通电话视图。
// Answer/Pause/StartBridge/Say/Hangup 只入队，Send 以新指令下发队列，
// Reply 以当前待应答 hook 的应答下发队列。
type Transport interface {
	Answer()
	Pause(seconds int)
	StartBridge(cfg BridgeConfig)
	Say(text string)
	Hangup()
	Send(ctx context.Context) error
	Reply(ctx context.Context) error
	SendToolOutput(ctx context.Context, toolCallID string, result tool.Result) error
}
