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
	"strings"

	"voice-platform/pkg/config"
)

// 日志类别
const (
	KindDialStatus = "dial_status"
	KindToolArgs   = "tool_args"
)

// Policy 脱敏策略
type Policy struct {
	KindRules   map[string][]FieldMask // kind -> field masks
	GlobalRules []FieldMask            // 应用于所有类别
}

// FieldMask 字段掩码配置
type FieldMask struct {
	FieldPath string // 点分路径，如 "args.telefon"
	Mode      Mode
	Salt      string // hash 模式可选
}

// Mode 脱敏模式
type Mode string

const (
	ModeRedact Mode = "redact" // 替换为 "***"
	ModeHash   Mode = "hash"   // 替换为 SHA256 hash
	ModeMask   Mode = "mask"   // 仅保留末 4 位，适用于电话号码
	ModeRemove Mode = "remove" // 完全移除字段
)

// LoadPolicyFromConfig 从配置加载；未启用时返回 nil（不脱敏）
func LoadPolicyFromConfig(cfg config.RedactionConfig) *Policy {
	if !cfg.Enable {
		return nil
	}
	policy := &Policy{KindRules: make(map[string][]FieldMask)}
	for _, rule := range cfg.Rules {
		if rule.Path == "" {
			continue
		}
		mask := FieldMask{
			FieldPath: rule.Path,
			Mode:      Mode(strings.ToLower(rule.Mode)),
			Salt:      rule.Salt,
		}
		if mask.Mode == "" {
			mask.Mode = ModeRedact
		}
		if rule.Kind == "" {
			policy.GlobalRules = append(policy.GlobalRules, mask)
			continue
		}
		policy.KindRules[rule.Kind] = append(policy.KindRules[rule.Kind], mask)
	}
	return policy
}

// DefaultPolicy 呼叫方号码与姓名
func DefaultPolicy() *Policy {
	return &Policy{
		KindRules: map[string][]FieldMask{
			KindDialStatus: {
				{FieldPath: "from", Mode: ModeMask},
				{FieldPath: "to", Mode: ModeMask},
				{FieldPath: "caller_id", Mode: ModeMask},
			},
			KindToolArgs: {
				{FieldPath: "telefon", Mode: ModeMask},
				{FieldPath: "ad_soyad", Mode: ModeHash},
			},
		},
	}
}
