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

package telephony

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voice-platform/internal/orchestrator"
	"voice-platform/internal/tool"
)

// wsTransport 单通电话的 orchestrator.Transport。
// verb 队列由通话协程使用；待应答 hook 由读循环登记、通话协程按 FIFO 消费。
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex

	mu           sync.Mutex
	queue        []Verb
	sessionMsgID string
	acked        bool
	pendingHooks []string
}

func newTransport(conn *websocket.Conn, sessionMsgID string, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{conn: conn, sessionMsgID: sessionMsgID, writeTimeout: writeTimeout}
}

func (t *wsTransport) enqueue(v Verb) {
	t.mu.Lock()
	t.queue = append(t.queue, v)
	t.mu.Unlock()
}

func (t *wsTransport) Answer()                                   { t.enqueue(answerVerb()) }
func (t *wsTransport) Pause(seconds int)                         { t.enqueue(pauseVerb(seconds)) }
func (t *wsTransport) StartBridge(cfg orchestrator.BridgeConfig) { t.enqueue(llmVerb(cfg)) }
func (t *wsTransport) Say(text string)                           { t.enqueue(sayVerb(text)) }
func (t *wsTransport) Hangup()                                   { t.enqueue(hangupVerb()) }

// Send 首次下发应答 session:new，之后以 redirect 指令替换当前执行的 verb
func (t *wsTransport) Send(ctx context.Context) error {
	t.mu.Lock()
	verbs := t.queue
	t.queue = nil
	ackID := ""
	if !t.acked && t.sessionMsgID != "" {
		ackID = t.sessionMsgID
		t.acked = true
	}
	t.mu.Unlock()

	if ackID != "" {
		return t.write(ctx, ackMessage{Type: typeAck, MsgID: ackID, Data: verbs})
	}
	return t.write(ctx, redirect(verbs))
}

// Reply 应答最早一个待应答 hook；没有时退化为 Send
func (t *wsTransport) Reply(ctx context.Context) error {
	t.mu.Lock()
	if len(t.pendingHooks) == 0 {
		t.mu.Unlock()
		return t.Send(ctx)
	}
	msgID := t.pendingHooks[0]
	t.pendingHooks = t.pendingHooks[1:]
	verbs := t.queue
	t.queue = nil
	t.mu.Unlock()

	return t.write(ctx, ackMessage{Type: typeAck, MsgID: msgID, Data: verbs})
}

func (t *wsTransport) SendToolOutput(ctx context.Context, toolCallID string, result tool.Result) error {
	return t.write(ctx, commandMessage{
		Type:       typeCommand,
		Command:    commandToolOutput,
		ToolCallID: toolCallID,
		Data:       result,
	})
}

// expectReply 登记需要由通话协程应答的 hook
func (t *wsTransport) expectReply(msgID string) {
	t.mu.Lock()
	t.pendingHooks = append(t.pendingHooks, msgID)
	t.mu.Unlock()
}

// ackEmpty 直接应答不需要 verb 的 hook
func (t *wsTransport) ackEmpty(ctx context.Context, msgID string) error {
	if msgID == "" {
		return nil
	}
	return t.write(ctx, ackMessage{Type: typeAck, MsgID: msgID})
}

func (t *wsTransport) write(ctx context.Context, v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := t.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write %T: %w", v, err)
	}
	return nil
}

func redirect(verbs []Verb) commandMessage {
	if verbs == nil {
		verbs = []Verb{}
	}
	queue := false
	return commandMessage{
		Type:         typeCommand,
		Command:      commandRedirect,
		QueueCommand: &queue,
		Data:         verbs,
	}
}
