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

// Package tool 定义 AI 代理在对话中发起的客户端工具调用
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"voice-platform/internal/call"
	perrors "voice-platform/pkg/errors"
)

// ResultType 工具结果信封的固定类型
const ResultType = "client_tool_result"

// Schema 表示工具的 JSON Schema（供代理侧工具定义参考）
type Schema struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Required    []string                  `json:"required,omitempty"`
}

// SchemaProperty 表示 Schema 中单个属性的描述
type SchemaProperty struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// Request 代理发来的工具调用
type Request struct {
	Name       string         `json:"name"`
	Args       map[string]any `json:"args"`
	ToolCallID string         `json:"tool_call_id"`
	// ArgsErr name 或 args 无法解析；此时仍须以 tool_call_id 回一个错误结果
	ArgsErr error `json:"-"`
}

// DecodeRequest 解析工具调用载荷。name、tool_call_id 与 args 分别解析，
// args 非对象时记录在 ArgsErr 而不丢失 tool_call_id；仅载荷本身不是对象时返回错误
func DecodeRequest(data []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Request{}, fmt.Errorf("invalid tool call: %w", err)
	}
	if fields == nil {
		return Request{}, errors.New("invalid tool call: payload is null")
	}

	var req Request
	if err := decodeString(fields["name"], &req.Name); err != nil {
		req.ArgsErr = fmt.Errorf("name: %w", err)
	}
	if err := decodeString(fields["tool_call_id"], &req.ToolCallID); err != nil {
		return req, fmt.Errorf("invalid tool call id: %w", err)
	}
	raw := bytes.TrimSpace(fields["args"])
	if req.ArgsErr == nil && len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &req.Args); err != nil {
			req.ArgsErr = fmt.Errorf("args: %w", err)
		}
	}
	return req, nil
}

func decodeString(raw json.RawMessage, dst *string) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// Result 回传给代理的结果信封，每个 Request 恰好一个
type Result struct {
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Result     any    `json:"result"`
	IsError    bool   `json:"is_error"`
}

// Success 成功结果
func Success(toolCallID string, v any) Result {
	return Result{Type: ResultType, ToolCallID: toolCallID, Result: v}
}

// Failure 失败结果，message 为代理可见的文本
func Failure(toolCallID, message string) Result {
	return Result{Type: ResultType, ToolCallID: toolCallID, Result: message, IsError: true}
}

// Tool 会话级工具接口；sess 仅由所属通话的任务持有
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ctx context.Context, sess *call.Session, args map[string]any) (any, error)
}

// Error 携带代理可见文本的执行错误
type Error struct {
	Message string
	Err     error
}

// NewError 包装底层错误，message 回传给代理
func NewError(message string, err error) *Error {
	return &Error{Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == perrors.ErrToolExecution }

// PublicMessage 取代理可见的错误文本
func PublicMessage(err error) string {
	var te *Error
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	return "Tool execution failed"
}
