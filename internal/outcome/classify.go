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

// Package outcome 对通话结束状态分类，并决定是否登记 CRM 与如何收尾
package outcome

import (
	"encoding/json"
	"strings"
)

// Class 通话结果分类，互斥且完备
type Class int

const (
	NoRecord Class = iota
	Success
	Failed
	Incomplete
	UnexpectedClose
)

func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Incomplete:
		return "incomplete"
	case UnexpectedClose:
		return "unexpected_close"
	default:
		return "no_record"
	}
}

// Persisted 该分类是否需要登记 CRM
func (c Class) Persisted() bool {
	return c == Failed || c == Incomplete || c == UnexpectedClose
}

// 引擎上报的完成原因
const (
	ReasonDisconnect    = "disconnect from remote end"
	ReasonServerFailure = "server failure"
	ReasonServerError   = "server error"
)

var failureReasons = map[string]struct{}{
	ReasonDisconnect:    {},
	ReasonServerFailure: {},
	ReasonServerError:   {},
}

// 正常关闭码：1000 正常、1001 对端离开；0 表示未知
var normalCloseCodes = map[int]struct{}{0: {}, 1000: {}, 1001: {}}

// EngineError final 回调里的 error 字段；可能是对象或字符串
type EngineError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseEngineError 解析 error 字段，缺失或 null 返回 nil
func ParseEngineError(raw json.RawMessage) *EngineError {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s == "false" || s == `""` {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return &EngineError{Message: text}
	}
	var e EngineError
	if err := json.Unmarshal(raw, &e); err == nil {
		return &e
	}
	return &EngineError{Message: s}
}

// Input final 分类输入
type Input struct {
	CompletionReason   string
	Error              *EngineError
	ToolCallMade       bool
	HasUserInteraction bool
}

// IsFailure 完成原因属于失败集合或带有错误
func (in Input) IsFailure() bool {
	if in.Error != nil {
		return true
	}
	_, ok := failureReasons[in.CompletionReason]
	return ok
}

// Classify final 回调分类；已成功登记的通话不再记录
func Classify(in Input) Class {
	switch {
	case in.ToolCallMade:
		return Success
	case in.IsFailure():
		return Failed
	case in.HasUserInteraction:
		return Incomplete
	default:
		return NoRecord
	}
}

// ClassifyClose 连接关闭分类；final 已处理或已成功登记时不再记录
func ClassifyClose(code int, toolCallMade, finalHandled bool) Class {
	if toolCallMade || finalHandled {
		return NoRecord
	}
	if _, ok := normalCloseCodes[code]; ok {
		return NoRecord
	}
	return UnexpectedClose
}
