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

package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const redacted = "***REDACTED***"

// Engine 脱敏引擎；nil 或无策略时原样返回
type Engine struct {
	policy *Policy
}

// NewEngine 创建脱敏引擎
func NewEngine(policy *Policy) *Engine {
	return &Engine{policy: policy}
}

// Redact 返回应用策略后的副本，不修改入参
func (e *Engine) Redact(kind string, obj map[string]any) map[string]any {
	if e == nil || e.policy == nil || len(obj) == 0 {
		return obj
	}
	rules := append([]FieldMask{}, e.policy.KindRules[kind]...)
	rules = append(rules, e.policy.GlobalRules...)
	if len(rules) == 0 {
		return obj
	}

	out := cloneMap(obj)
	for _, rule := range rules {
		applyFieldMask(out, rule)
	}
	return out
}

// applyFieldMask 沿路径复制嵌套 map 后替换叶子
func applyFieldMask(obj map[string]any, mask FieldMask) {
	parts := strings.Split(mask.FieldPath, ".")
	current := obj
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		next = cloneMap(next)
		current[part] = next
		current = next
	}

	lastKey := parts[len(parts)-1]
	value, exists := current[lastKey]
	if !exists {
		return
	}

	switch mask.Mode {
	case ModeHash:
		current[lastKey] = hashValue(fmt.Sprintf("%v", value), mask.Salt)
	case ModeMask:
		current[lastKey] = maskValue(fmt.Sprintf("%v", value))
	case ModeRemove:
		delete(current, lastKey)
	default:
		current[lastKey] = redacted
	}
}

func hashValue(value, salt string) string {
	h := sha256.New()
	h.Write([]byte(value))
	if salt != "" {
		h.Write([]byte(salt))
	}
	return "hash:" + hex.EncodeToString(h.Sum(nil))
}

func maskValue(value string) string {
	r := []rune(value)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
