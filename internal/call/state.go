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

package call

import "fmt"

// State 通话生命周期状态
type State int

const (
	StateCreated State = iota
	StateAgentSelected
	StateBridging
	StateActive
	StateTerminating
	StateClosed
)

var stateNames = [...]string{"created", "agent_selected", "bridging", "active", "terminating", "closed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// allowed 合法迁移；Closed 可由任意非终态到达（挂断、异常关闭、错误）
var allowed = map[State][]State{
	StateCreated:       {StateAgentSelected, StateClosed},
	StateAgentSelected: {StateBridging, StateClosed},
	StateBridging:      {StateActive, StateTerminating, StateClosed},
	StateActive:        {StateTerminating, StateClosed},
	StateTerminating:   {StateClosed},
}

// CanTransition 判断 from -> to 是否合法
func CanTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition 执行状态迁移；非法迁移返回错误且不改变状态。
// 迁移到当前状态视为成功（如重复的事件把 Active 再推一次）。
func (s *Session) Transition(to State) error {
	if s.state == to {
		return nil
	}
	if !CanTransition(s.state, to) {
		return fmt.Errorf("call %s: illegal transition %s -> %s", s.CorrelationID(), s.state, to)
	}
	s.state = to
	return nil
}
