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

// Package routing 将被叫号码映射为 AI agent 配置。
// 映射表在启动时构建一次，之后只读；查询不做任何 I/O。
package routing

import (
	"sort"
	"strings"

	"voice-platform/pkg/config"
)

// Numbering 号码规范化参数
type Numbering struct {
	CountryCode    string // 如 90
	TrunkPrefix    string // 如 0
	NationalLength int    // 不含国家码与长途前缀的号码位数，如 10
}

// DefaultNumbering 土耳其号码规则
var DefaultNumbering = Numbering{CountryCode: "90", TrunkPrefix: "0", NationalLength: 10}

// Normalize 规范化为纯数字国际格式；无法识别的输入原样返回其数字部分
func (n Numbering) Normalize(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, n.CountryCode) && len(digits) == len(n.CountryCode)+n.NationalLength:
		return digits
	case n.TrunkPrefix != "" && strings.HasPrefix(digits, n.TrunkPrefix) && len(digits) == len(n.TrunkPrefix)+n.NationalLength:
		return n.CountryCode + digits[len(n.TrunkPrefix):]
	case len(digits) == n.NationalLength:
		return n.CountryCode + digits
	}
	return digits
}

// Normalize 使用 DefaultNumbering
func Normalize(phone string) string {
	return DefaultNumbering.Normalize(phone)
}

// Mapping 诊断输出中的一条号码映射
type Mapping struct {
	Phone   string `json:"phone"`
	AgentID string `json:"agent_id"`
	Source  string `json:"source"` // config | env
}

// Configurations 诊断信息
type Configurations struct {
	Mappings        []Mapping `json:"mappings"`
	DefaultAgentID  string    `json:"default_agent_id,omitempty"`
	FallbackAgentID string    `json:"fallback_agent_id,omitempty"`
}

// Router 被叫号码 -> agent id
type Router struct {
	numbering       Numbering
	numbers         map[string]Mapping // key 为规范化号码
	defaultAgentID  string
	fallbackAgentID string
}

// NewRouter 由配置与启动时扫描到的环境映射构建路由表；
// 同一号码同时出现时以配置文件为准
func NewRouter(cfg config.RoutingConfig, envMappings map[string]string) *Router {
	numbering := Numbering{
		CountryCode:    cfg.CountryCode,
		TrunkPrefix:    cfg.TrunkPrefix,
		NationalLength: cfg.NationalLength,
	}
	if numbering.CountryCode == "" {
		numbering = DefaultNumbering
	}
	if numbering.NationalLength <= 0 {
		numbering.NationalLength = DefaultNumbering.NationalLength
	}

	r := &Router{
		numbering:       numbering,
		numbers:         make(map[string]Mapping, len(cfg.Numbers)+len(envMappings)),
		defaultAgentID:  strings.TrimSpace(cfg.DefaultAgentID),
		fallbackAgentID: strings.TrimSpace(cfg.FallbackAgentID),
	}
	for phone, agentID := range envMappings {
		r.add(phone, agentID, "env")
	}
	for phone, agentID := range cfg.Numbers {
		r.add(phone, agentID, "config")
	}
	return r
}

func (r *Router) add(phone, agentID, source string) {
	key := r.numbering.Normalize(phone)
	agentID = strings.TrimSpace(agentID)
	if key == "" || agentID == "" {
		return
	}
	r.numbers[key] = Mapping{Phone: key, AgentID: agentID, Source: source}
}

// Normalize 使用本 Router 的号码规则
func (r *Router) Normalize(phone string) string {
	return r.numbering.Normalize(phone)
}

// Lookup 仅查号码映射，不回落到默认 agent
func (r *Router) Lookup(calledNumber string) (string, bool) {
	key := r.numbering.Normalize(calledNumber)
	if key == "" {
		return "", false
	}
	m, ok := r.numbers[key]
	return m.AgentID, ok
}

// DefaultAgent 默认 agent，其次为备用 agent
func (r *Router) DefaultAgent() (string, bool) {
	if r.defaultAgentID != "" {
		return r.defaultAgentID, true
	}
	if r.fallbackAgentID != "" {
		return r.fallbackAgentID, true
	}
	return "", false
}

// SelectAgent 先查号码映射，再回落默认 agent；都没有时 ok=false，调用方须挂断
func (r *Router) SelectAgent(calledNumber string) (agentID string, ok bool) {
	if id, found := r.Lookup(calledNumber); found {
		return id, true
	}
	return r.DefaultAgent()
}

// Configurations 列出全部映射与默认值（按号码排序），只读
func (r *Router) Configurations() Configurations {
	out := Configurations{
		Mappings:        make([]Mapping, 0, len(r.numbers)),
		DefaultAgentID:  r.defaultAgentID,
		FallbackAgentID: r.fallbackAgentID,
	}
	for _, m := range r.numbers {
		out.Mappings = append(out.Mappings, m)
	}
	sort.Slice(out.Mappings, func(i, j int) bool { return out.Mappings[i].Phone < out.Mappings[j].Phone })
	return out
}
