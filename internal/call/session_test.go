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

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s := New("CA123", DirectionInbound, "+905551112233", "+908503351053")
	assert.Equal(t, "CA123", s.CallID())
	assert.Equal(t, DirectionInbound, s.Direction())
	assert.Equal(t, "+905551112233", s.CallerNumber())
	assert.Equal(t, "+908503351053", s.CalledNumber())
	assert.Equal(t, StateCreated, s.State())
	assert.True(t, strings.HasPrefix(s.LocalID(), "session-"))
	assert.Equal(t, "CA123", s.CorrelationID())
	assert.False(t, s.ToolCallMade())
	assert.False(t, s.HasUserInteraction())
	assert.False(t, s.IsForwardingCall())

	anon := New("", DirectionInbound, "", "")
	assert.Equal(t, anon.LocalID(), anon.CorrelationID())
}

func TestAssignAgentOnce(t *testing.T) {
	s := New("CA1", DirectionInbound, "", "")
	require.Error(t, s.AssignAgent(""))
	require.NoError(t, s.AssignAgent("agent-a"))
	require.Error(t, s.AssignAgent("agent-b"))
	assert.Equal(t, "agent-a", s.AgentID())
}

func TestSetConversationID_FirstWriteWins(t *testing.T) {
	s := New("CA1", DirectionInbound, "", "")
	assert.False(t, s.SetConversationID(""))
	assert.True(t, s.SetConversationID("conv-1"))
	assert.False(t, s.SetConversationID("conv-2"))
	assert.Equal(t, "conv-1", s.ConversationID())
}

func TestFlagsOnlyAdvance(t *testing.T) {
	s := New("CA1", DirectionInbound, "", "")
	assert.True(t, s.MarkUserInteraction())
	assert.False(t, s.MarkUserInteraction())
	assert.True(t, s.HasUserInteraction())

	assert.False(t, s.OutcomeSettled())
	s.MarkFinalHandled()
	assert.True(t, s.OutcomeSettled())

	s.MarkToolCallMade()
	s.MarkToolCallMade()
	assert.True(t, s.ToolCallMade())

	s.MarkForwarding()
	assert.True(t, s.IsForwardingCall())
}

func TestTranscriptsAppendOnly(t *testing.T) {
	s := New("CA1", DirectionInbound, "", "")
	assert.Nil(t, s.Transcripts())
	s.AppendTranscript(RoleUser, "merhaba")
	s.AppendTranscript(RoleAgent, "")
	s.AppendTranscript(RoleAgent, "size nasıl yardımcı olabilirim")

	got := s.Transcripts()
	require.Len(t, got, 2)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, "size nasıl yardımcı olabilirim", got[1].Text)

	got[0].Text = "changed"
	assert.Equal(t, "merhaba", s.Transcripts()[0].Text)
}

func TestTransitions(t *testing.T) {
	s := New("CA1", DirectionInbound, "", "")
	require.NoError(t, s.Transition(StateAgentSelected))
	require.Error(t, s.Transition(StateActive))
	assert.Equal(t, StateAgentSelected, s.State())
	require.NoError(t, s.Transition(StateBridging))
	require.NoError(t, s.Transition(StateActive))
	require.NoError(t, s.Transition(StateActive))
	require.NoError(t, s.Transition(StateTerminating))
	require.NoError(t, s.Transition(StateClosed))
	require.Error(t, s.Transition(StateActive))
	assert.Equal(t, "closed", s.State().String())
}

func TestClosedReachableFromAnyLiveState(t *testing.T) {
	for _, from := range []State{StateCreated, StateAgentSelected, StateBridging, StateActive, StateTerminating} {
		assert.True(t, CanTransition(from, StateClosed), from.String())
	}
	assert.False(t, CanTransition(StateClosed, StateClosed))
	assert.Equal(t, "state(42)", State(42).String())
}

func TestParseDirection(t *testing.T) {
	assert.Equal(t, DirectionInbound, ParseDirection("inbound"))
	assert.Equal(t, DirectionOutbound, ParseDirection("outbound"))
	assert.Equal(t, Direction("sideways"), ParseDirection("sideways"))
}
