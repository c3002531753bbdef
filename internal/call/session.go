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

// Package call 定义单通电话的会话上下文。
//
// Session 由该通电话的处理协程独占，字段只能通过下列迁移方法修改：
// AssignAgent 只能成功一次；SetConversationID 先写者胜；
// MarkUserInteraction / MarkToolCallMade / MarkForwarding / MarkFinalHandled 只会由 false 变为 true。
// 因为同一通电话的事件严格串行投递，Session 内部不加锁。
package call

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction 通话方向
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ParseDirection 无法识别时返回原值，由调用方按策略拒绝
func ParseDirection(s string) Direction {
	switch s {
	case "inbound":
		return DirectionInbound
	case "outbound":
		return DirectionOutbound
	}
	return Direction(s)
}

// Role 话语来源
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Transcript 一条已捕获的话语
type Transcript struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session 一通电话的会话上下文
type Session struct {
	callID       string
	localID      string
	direction    Direction
	callerNumber string
	calledNumber string
	createdAt    time.Time

	agentID        string
	conversationID string
	transcripts    []Transcript

	toolCallMade       bool
	hasUserInteraction bool
	isForwardingCall   bool
	finalHandled       bool

	state State
}

// New 创建会话，状态为 Created
func New(callID string, direction Direction, callerNumber, calledNumber string) *Session {
	return &Session{
		callID:       callID,
		localID:      "session-" + uuid.New().String(),
		direction:    direction,
		callerNumber: callerNumber,
		calledNumber: calledNumber,
		createdAt:    time.Now(),
		state:        StateCreated,
	}
}

func (s *Session) CallID() string { return s.callID }
func (s *Session) LocalID() string { return s.localID }
func (s *Session) Direction() Direction { return s.direction }
func (s *Session) CallerNumber() string { return s.callerNumber }
func (s *Session) CalledNumber() string { return s.calledNumber }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) AgentID() string { return s.agentID }
func (s *Session) ConversationID() string { return s.conversationID }
func (s *Session) ToolCallMade() bool { return s.toolCallMade }
func (s *Session) HasUserInteraction() bool { return s.hasUserInteraction }
func (s *Session) IsForwardingCall() bool { return s.isForwardingCall }
func (s *Session) FinalHandled() bool { return s.finalHandled }
func (s *Session) State() State { return s.state }

// CorrelationID 日志与 trace 关联用：优先传输层 call id
func (s *Session) CorrelationID() string {
	if s.callID != "" {
		return s.callID
	}
	return s.localID
}

// AssignAgent 在桥接开始前设置 agent，只允许一次
func (s *Session) AssignAgent(agentID string) error {
	if agentID == "" {
		return fmt.Errorf("call %s: empty agent id", s.CorrelationID())
	}
	if s.agentID != "" {
		return fmt.Errorf("call %s: agent already assigned (%s)", s.CorrelationID(), s.agentID)
	}
	s.agentID = agentID
	return nil
}

// SetConversationID 仅在未设置时写入，返回是否写入
func (s *Session) SetConversationID(id string) bool {
	if id == "" || s.conversationID != "" {
		return false
	}
	s.conversationID = id
	return true
}

// AppendTranscript 追加话语；空文本忽略
func (s *Session) AppendTranscript(role Role, text string) {
	if text == "" {
		return
	}
	s.transcripts = append(s.transcripts, Transcript{Role: role, Text: text, At: time.Now()})
}

// Transcripts 返回副本
func (s *Session) Transcripts() []Transcript {
	if len(s.transcripts) == 0 {
		return nil
	}
	out := make([]Transcript, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}

// MarkUserInteraction 首次用户发言，返回是否为首次
func (s *Session) MarkUserInteraction() bool {
	if s.hasUserInteraction {
		return false
	}
	s.hasUserInteraction = true
	return true
}

// MarkToolCallMade 持久化类工具调用成功后设置
func (s *Session) MarkToolCallMade() {
	s.toolCallMade = true
}

// MarkForwarding 转接模式；置位后 final 处理直接放行
func (s *Session) MarkForwarding() {
	s.isForwardingCall = true
}

// MarkFinalHandled final 信号已处理（无论是否写出记录），
// close 回调据此避免重复持久化
func (s *Session) MarkFinalHandled() {
	s.finalHandled = true
}

// OutcomeSettled 已有成功工具调用或 final 已处理时为 true
func (s *Session) OutcomeSettled() bool {
	return s.toolCallMade || s.finalHandled
}
