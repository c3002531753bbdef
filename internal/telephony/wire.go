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

// Package telephony 实现电话运行时（jambonz websocket 协议）的会话适配：
// 把入站消息转成 orchestrator.SessionEvent，把 orchestrator.Transport 调用编码为 verb。
package telephony

import (
	"encoding/json"

	"voice-platform/internal/orchestrator"
)

// DefaultSubprotocol jambonz websocket 子协议
const DefaultSubprotocol = "ws.jambonz.org"

// 入站消息类型
const (
	msgSessionNew  = "session:new"
	msgVerbHook    = "verb:hook"
	msgLLMEvent    = "llm:event"
	msgLLMToolCall = "llm:tool-call"
	msgCallStatus  = "call:status"
	msgError       = "jambonz:error"
)

// 出站消息类型与指令
const (
	typeAck     = "ack"
	typeCommand = "command"

	commandRedirect   = "redirect"
	commandToolOutput = "llm:tool-output"
)

// inboundMessage 运行时发来的消息
type inboundMessage struct {
	Type    string          `json:"type"`
	MsgID   string          `json:"msgid"`
	CallSID string          `json:"call_sid"`
	Hook    string          `json:"hook,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// sessionData session:new 的 data
type sessionData struct {
	CallSID   string `json:"call_sid"`
	Direction string `json:"direction"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Verb 一条 jambonz verb
type Verb map[string]any

type ackMessage struct {
	Type  string `json:"type"`
	MsgID string `json:"msgid"`
	Data  []Verb `json:"data,omitempty"`
}

type commandMessage struct {
	Type         string `json:"type"`
	Command      string `json:"command"`
	QueueCommand *bool  `json:"queueCommand,omitempty"`
	ToolCallID   string `json:"tool_call_id,omitempty"`
	Data         any    `json:"data,omitempty"`
}

func answerVerb() Verb { return Verb{"verb": "answer"} }

func pauseVerb(seconds int) Verb { return Verb{"verb": "pause", "length": seconds} }

func sayVerb(text string) Verb { return Verb{"verb": "say", "text": text} }

func hangupVerb() Verb { return Verb{"verb": "hangup"} }

// llmVerb 语音桥接；conversation_config_override 保持空对象
func llmVerb(cfg orchestrator.BridgeConfig) Verb {
	return Verb{
		"verb":   "llm",
		"vendor": cfg.Vendor,
		"model":  cfg.Model,
		"auth": map[string]any{
			"agent_id": cfg.AgentID,
			"api_key":  cfg.APIKey,
		},
		"actionHook": cfg.ActionHook,
		"eventHook":  cfg.EventHook,
		"toolHook":   cfg.ToolHook,
		"llmOptions": map[string]any{
			"input_sample_rate":  cfg.InputSampleRate,
			"output_sample_rate": cfg.OutputSampleRate,
			"conversation_initiation_client_data": map[string]any{
				"conversation_config_override": map[string]any{
					"agent": map[string]any{},
					"tts":   map[string]any{},
				},
			},
		},
	}
}
