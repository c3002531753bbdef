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
	"encoding/json"

	"voice-platform/internal/outcome"
	"voice-platform/internal/tool"
)

// EventKind 会话事件类型
type EventKind int

const (
	EventKindEvent EventKind = iota + 1
	EventKindToolCall
	EventKindFinal
	EventKindClose
	EventKindError
)

func (k EventKind) String() string {
	switch k {
	case EventKindEvent:
		return "event"
	case EventKindToolCall:
		return "tool_call"
	case EventKindFinal:
		return "final"
	case EventKindClose:
		return "close"
	case EventKindError:
		return "error"
	default:
		return "unknown"
	}
}

// SessionEvent 单通电话的事件；按 Kind 读取对应字段
type SessionEvent struct {
	Kind EventKind

	Event    json.RawMessage // EventKindEvent：引擎事件原文
	ToolCall tool.Request    // EventKindToolCall
	Final    Final           // EventKindFinal

	CloseCode   int    // EventKindClose
	CloseReason string // EventKindClose

	Err error // EventKindError
}

// Final 桥接结束回调
type Final struct {
	CompletionReason string
	Error            *outcome.EngineError
}

// FinalFromPayload 解析 final hook 的 data
func FinalFromPayload(data json.RawMessage) Final {
	var body struct {
		CompletionReason string          `json:"completion_reason"`
		Error            json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return Final{}
	}
	return Final{CompletionReason: body.CompletionReason, Error: outcome.ParseEngineError(body.Error)}
}

// 引擎事件中用到的字段
type engineEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`

	ConversationInitiationMetadataEvent *struct {
		ConversationID string `json:"conversation_id"`
	} `json:"conversation_initiation_metadata_event"`

	UserTranscriptionEvent *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event"`

	AgentResponseEvent *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event"`
}

const (
	eventConversationMetadata = "conversation_initiation_metadata"
	eventUserTranscript       = "user_transcript"
	eventAgentResponse        = "agent_response"
)
