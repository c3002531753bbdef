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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-platform/internal/call"
	"voice-platform/internal/integration"
	"voice-platform/internal/outcome"
	"voice-platform/internal/routing"
	"voice-platform/internal/tool"
	"voice-platform/internal/tool/builtin"
	"voice-platform/internal/tool/dispatch"
	"voice-platform/internal/tool/registry"
	"voice-platform/pkg/config"
	perrors "voice-platform/pkg/errors"
	"voice-platform/pkg/secrets"
)

// fakeTransport 记录入队动作与下发批次
type fakeTransport struct {
	queue      []string
	sent       [][]string
	replied    [][]string
	bridge     BridgeConfig
	said       []string
	toolOutput []tool.Result
	sendErr    error
}

func (f *fakeTransport) Answer()           { f.queue = append(f.queue, "answer") }
func (f *fakeTransport) Pause(seconds int) { f.queue = append(f.queue, "pause") }
func (f *fakeTransport) StartBridge(cfg BridgeConfig) {
	f.bridge = cfg
	f.queue = append(f.queue, "llm")
}
func (f *fakeTransport) Say(text string) {
	f.said = append(f.said, text)
	f.queue = append(f.queue, "say")
}
func (f *fakeTransport) Hangup() { f.queue = append(f.queue, "hangup") }
func (f *fakeTransport) Send(context.Context) error {
	f.sent = append(f.sent, f.queue)
	f.queue = nil
	return f.sendErr
}
func (f *fakeTransport) Reply(context.Context) error {
	f.replied = append(f.replied, f.queue)
	f.queue = nil
	return nil
}
func (f *fakeTransport) SendToolOutput(_ context.Context, _ string, result tool.Result) error {
	f.toolOutput = append(f.toolOutput, result)
	return nil
}

// fakeCRM 同时满足 save_db 与结果登记
type fakeCRM struct {
	toolCalls []map[string]any
	records   []integration.RepresentativeRequest
	err       error
}

func (f *fakeCRM) SaveRepresentativeRequest(_ context.Context, data map[string]any) (json.RawMessage, error) {
	f.toolCalls = append(f.toolCalls, data)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"success":true}`), nil
}

func (f *fakeCRM) SubmitRepresentativeRequest(_ context.Context, rec integration.RepresentativeRequest) (json.RawMessage, error) {
	f.records = append(f.records, rec)
	return json.RawMessage(`{}`), f.err
}

type harness struct {
	orch *Orchestrator
	crm  *fakeCRM
}

func newHarness(t *testing.T, secretValues map[string]string) *harness {
	t.Helper()
	return newHarnessWith(t, secretValues, nil)
}

// newHarnessWith 可选注册 getWeather
func newHarnessWith(t *testing.T, secretValues map[string]string, weather builtin.WeatherProvider) *harness {
	t.Helper()
	router := routing.NewRouter(config.RoutingConfig{
		DefaultAgentID: "agent-default",
		Numbers:        map[string]string{"08501234567": "agent-sales"},
	}, nil)

	crm := &fakeCRM{}
	reg := registry.New()
	require.NoError(t, builtin.Register(reg, builtin.Deps{Weather: weather, Representatives: crm}))

	orch := New(Deps{
		Router:     router,
		Secrets:    secrets.NewMemoryStoreWith(secretValues),
		Dispatcher: dispatch.New(reg, nil, nil),
		Recorder:   outcome.NewRecorder(crm, 0, nil),
		Engine: config.EngineConfig{
			Vendor:           "elevenlabs",
			Model:            "eleven_flash_v2_5",
			APIKeyRef:        "ELEVENLABS_API_KEY",
			InputSampleRate:  16000,
			OutputSampleRate: 16000,
			ActionHook:       "/final",
			EventHook:        "/event",
			ToolHook:         "/toolCall",
			PauseSeconds:     1,
		},
	})
	return &harness{orch: orch, crm: crm}
}

var withKey = map[string]string{"ELEVENLABS_API_KEY": "xi-key"}

func inbound(to string) NewCall {
	return NewCall{CallID: "CA-1", Direction: "inbound", From: "905321112233", To: to}
}

func eventOf(t *testing.T, v any) SessionEvent {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return SessionEvent{Kind: EventKindEvent, Event: raw}
}

func userSpoke(t *testing.T) SessionEvent {
	return eventOf(t, map[string]any{
		"type":                     "user_transcript",
		"user_transcription_event": map[string]any{"user_transcript": "Merhaba"},
	})
}

func TestOpen_BridgesWithRoutedAgent(t *testing.T) {
	h := newHarness(t, withKey)
	tr := &fakeTransport{}

	c, err := h.orch.Open(context.Background(), inbound("+90 850 123 45 67"), tr)
	require.NoError(t, err)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, []string{"answer", "pause", "llm", "hangup"}, tr.sent[0])
	assert.Equal(t, "agent-sales", tr.bridge.AgentID)
	assert.Equal(t, "xi-key", tr.bridge.APIKey)
	assert.Equal(t, "/toolCall", tr.bridge.ToolHook)
	assert.Equal(t, call.StateBridging, c.Session().State())
	assert.Equal(t, "agent-sales", c.Session().AgentID())
}

func TestOpen_DefaultAgent(t *testing.T) {
	h := newHarness(t, withKey)
	tr := &fakeTransport{}
	c, err := h.orch.Open(context.Background(), inbound("902120000000"), tr)
	require.NoError(t, err)
	assert.Equal(t, "agent-default", c.Session().AgentID())
}

func TestOpen_MissingCredentials(t *testing.T) {
	h := newHarness(t, nil)
	tr := &fakeTransport{}

	c, err := h.orch.Open(context.Background(), inbound("08501234567"), tr)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, perrors.ErrConfigurationMissing)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, []string{"hangup"}, tr.sent[0])
	assert.Empty(t, tr.bridge.AgentID)
}

func TestOpen_OutboundRejected(t *testing.T) {
	h := newHarness(t, withKey)
	tr := &fakeTransport{}
	nc := inbound("08501234567")
	nc.Direction = "outbound"

	_, err := h.orch.Open(context.Background(), nc, tr)
	assert.ErrorIs(t, err, perrors.ErrRoutingFailure)
	assert.Equal(t, [][]string{{"hangup"}}, tr.sent)
}

func TestOpen_NoAgent(t *testing.T) {
	h := newHarness(t, withKey)
	h.orch.router = routing.NewRouter(config.RoutingConfig{}, nil)
	tr := &fakeTransport{}

	_, err := h.orch.Open(context.Background(), inbound("08501234567"), tr)
	assert.ErrorIs(t, err, perrors.ErrRoutingFailure)
	assert.Equal(t, [][]string{{"hangup"}}, tr.sent)
}

func TestOpen_SendFailure(t *testing.T) {
	h := newHarness(t, withKey)
	tr := &fakeTransport{sendErr: errors.New("socket gone")}

	_, err := h.orch.Open(context.Background(), inbound("08501234567"), tr)
	assert.ErrorIs(t, err, perrors.ErrTransport)
}

func TestCall_ConversationIDFirstWriteWins(t *testing.T) {
	h := newHarness(t, withKey)
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), &fakeTransport{})
	require.NoError(t, err)

	ctx := context.Background()
	c.Handle(ctx, eventOf(t, map[string]any{
		"type":                                   "conversation_initiation_metadata",
		"conversation_initiation_metadata_event": map[string]any{"conversation_id": "conv-A"},
	}))
	c.Handle(ctx, eventOf(t, map[string]any{"type": "ping", "conversation_id": "conv-B"}))

	assert.Equal(t, "conv-A", c.Session().ConversationID())
	assert.Equal(t, call.StateActive, c.Session().State())
}

func TestCall_TopLevelConversationIDFillsWhenUnset(t *testing.T) {
	h := newHarness(t, withKey)
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), &fakeTransport{})
	require.NoError(t, err)

	c.Handle(context.Background(), eventOf(t, map[string]any{"type": "conversation_initiation_metadata"}))
	assert.Empty(t, c.Session().ConversationID())

	c.Handle(context.Background(), eventOf(t, map[string]any{"type": "agent_response", "conversation_id": "conv-C",
		"agent_response_event": map[string]any{"agent_response": "Size nasıl yardımcı olabilirim?"}}))
	assert.Equal(t, "conv-C", c.Session().ConversationID())
	require.Len(t, c.Session().Transcripts(), 1)
	assert.Equal(t, call.RoleAgent, c.Session().Transcripts()[0].Role)
}

func TestCall_EmptyTranscriptIsNotInteraction(t *testing.T) {
	h := newHarness(t, withKey)
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), &fakeTransport{})
	require.NoError(t, err)

	c.Handle(context.Background(), eventOf(t, map[string]any{
		"type":                     "user_transcript",
		"user_transcription_event": map[string]any{"user_transcript": ""},
	}))
	assert.False(t, c.Session().HasUserInteraction())

	c.Handle(context.Background(), userSpoke(t))
	assert.True(t, c.Session().HasUserInteraction())
}

func TestCall_SaveDBThenFinalRecordsNothing(t *testing.T) {
	h := newHarness(t, withKey)
	tr := &fakeTransport{}
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), tr)
	require.NoError(t, err)
	ctx := context.Background()

	c.Handle(ctx, userSpoke(t))
	c.Handle(ctx, SessionEvent{Kind: EventKindToolCall, ToolCall: tool.Request{
		Name: "save_db", ToolCallID: "tc-1", Args: map[string]any{"ad_soyad": "Can Öz"},
	}})
	require.Len(t, tr.toolOutput, 1)
	assert.False(t, tr.toolOutput[0].IsError)
	require.Len(t, h.crm.toolCalls, 1)
	assert.Equal(t, "905321112233", h.crm.toolCalls[0]["telefon"])
	assert.Equal(t, "agent-sales", h.crm.toolCalls[0]["agent_id"])

	c.Handle(ctx, SessionEvent{Kind: EventKindFinal, Final: Final{CompletionReason: outcome.ReasonDisconnect}})
	assert.Empty(t, h.crm.records)
	assert.Equal(t, [][]string{nil}, tr.replied)

	done := c.Handle(ctx, SessionEvent{Kind: EventKindClose, CloseCode: 1006})
	assert.True(t, done)
	assert.Empty(t, h.crm.records)
	assert.Equal(t, call.StateClosed, c.Session().State())
}

func TestCall_UnknownToolKeepsCallAlive(t *testing.T) {
	h := newHarness(t, withKey)
	tr := &fakeTransport{}
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), tr)
	require.NoError(t, err)

	done := c.Handle(context.Background(), SessionEvent{Kind: EventKindToolCall, ToolCall: tool.Request{Name: "bookFlight", ToolCallID: "tc-9"}})
	assert.False(t, done)
	require.Len(t, tr.toolOutput, 1)
	assert.True(t, tr.toolOutput[0].IsError)
	assert.Equal(t, "Unknown tool bookFlight", tr.toolOutput[0].Result)
}

func TestCall_WeatherLocationNotFoundKeepsCallAlive(t *testing.T) {
	var geocodeHits atomic.Int32
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		geocodeHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer geo.Close()

	client := integration.New(integration.Options{Weather: config.WeatherConfig{
		GeocodingURL: geo.URL,
		ForecastURL:  geo.URL,
	}})
	_, err := client.Geocode(context.Background(), "Atlantis")
	require.ErrorIs(t, err, integration.ErrLocationNotFound)

	h := newHarnessWith(t, withKey, client)
	tr := &fakeTransport{}
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), tr)
	require.NoError(t, err)
	sent := len(tr.sent)

	done := c.Handle(context.Background(), SessionEvent{Kind: EventKindToolCall, ToolCall: tool.Request{
		Name:       "getWeather",
		ToolCallID: "tc-11",
		Args:       map[string]any{"location": "Atlantis"},
	}})

	assert.False(t, done)
	assert.Equal(t, int32(2), geocodeHits.Load())
	require.Len(t, tr.toolOutput, 1)
	assert.Equal(t, "tc-11", tr.toolOutput[0].ToolCallID)
	assert.True(t, tr.toolOutput[0].IsError)
	assert.Equal(t, "Failed to get weather for location", tr.toolOutput[0].Result)
	assert.NotContains(t, tr.queue, "hangup")
	assert.Len(t, tr.sent, sent)
	assert.Empty(t, tr.replied)
	assert.Empty(t, h.crm.records)
	assert.NotEqual(t, call.StateClosed, c.Session().State())
	assert.False(t, c.Session().FinalHandled())
}

func TestCall_UndecodableArgsStillAnswered(t *testing.T) {
	h := newHarness(t, withKey)
	tr := &fakeTransport{}
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), tr)
	require.NoError(t, err)

	req, err := tool.DecodeRequest([]byte(`{"name":"save_db","args":"{\"ad_soyad\":\"Ayşe\"}","tool_call_id":"tc-12"}`))
	require.NoError(t, err)
	done := c.Handle(context.Background(), SessionEvent{Kind: EventKindToolCall, ToolCall: req})

	assert.False(t, done)
	require.Len(t, tr.toolOutput, 1)
	assert.Equal(t, "tc-12", tr.toolOutput[0].ToolCallID)
	assert.True(t, tr.toolOutput[0].IsError)
	assert.Equal(t, "Invalid arguments for tool save_db", tr.toolOutput[0].Result)
	assert.Empty(t, h.crm.toolCalls)
	assert.False(t, c.Session().ToolCallMade())
}

func TestCall_ServerErrorWithInteraction(t *testing.T) {
	h := newHarness(t, withKey)
	tr := &fakeTransport{}
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), tr)
	require.NoError(t, err)
	ctx := context.Background()

	c.Handle(ctx, userSpoke(t))
	c.Handle(ctx, SessionEvent{Kind: EventKindFinal, Final: FinalFromPayload(json.RawMessage(
		`{"completion_reason":"server error","error":{"code":"rate_limit_exceeded","message":"please try again in 20 seconds"}}`))})

	require.Len(t, h.crm.records, 1)
	assert.Equal(t, integration.StatusFailedCall, h.crm.records[0].Status)
	assert.Equal(t, "Arama başarısız - Sebep: server error", h.crm.records[0].Description)
	assert.Equal(t, []string{"Üzgünüz, API hız limitlerini aştınız. Lütfen 20 saniye sonra tekrar deneyin."}, tr.said)
	assert.Equal(t, [][]string{{"say", "hangup"}}, tr.replied)
	assert.True(t, c.Session().FinalHandled())
	assert.Equal(t, call.StateTerminating, c.Session().State())

	c.Handle(ctx, SessionEvent{Kind: EventKindClose, CloseCode: 1006})
	assert.Len(t, h.crm.records, 1, "close after a handled final must not persist again")
}

func TestCall_IncompleteOnNormalEnd(t *testing.T) {
	h := newHarness(t, withKey)
	tr := &fakeTransport{}
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), tr)
	require.NoError(t, err)

	c.Handle(context.Background(), userSpoke(t))
	c.Handle(context.Background(), SessionEvent{Kind: EventKindFinal, Final: Final{CompletionReason: "client ended"}})

	require.Len(t, h.crm.records, 1)
	assert.Equal(t, integration.StatusIncompleteConversation, h.crm.records[0].Status)
	assert.Empty(t, tr.said)
}

func TestCall_SilentNormalEndRecordsNothing(t *testing.T) {
	h := newHarness(t, withKey)
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), &fakeTransport{})
	require.NoError(t, err)

	c.Handle(context.Background(), SessionEvent{Kind: EventKindFinal, Final: Final{CompletionReason: "normal"}})
	c.Handle(context.Background(), SessionEvent{Kind: EventKindClose, CloseCode: 1000})
	assert.Empty(t, h.crm.records)
}

func TestCall_UnexpectedCloseWithoutFinal(t *testing.T) {
	h := newHarness(t, withKey)
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), &fakeTransport{})
	require.NoError(t, err)

	c.Handle(context.Background(), userSpoke(t))
	c.Handle(context.Background(), SessionEvent{Kind: EventKindClose, CloseCode: 1011, CloseReason: "upstream"})

	require.Len(t, h.crm.records, 1)
	assert.Equal(t, integration.StatusUnexpectedCloseWithInteraction, h.crm.records[0].Status)
	assert.Equal(t, "Beklenmeyen kapanış (kullanıcı etkileşimi mevcut) - Code: 1011, Reason: upstream", h.crm.records[0].Description)
}

func TestCall_ForwardingFinalPassesThrough(t *testing.T) {
	h := newHarness(t, withKey)
	tr := &fakeTransport{}
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), tr)
	require.NoError(t, err)

	c.Handle(context.Background(), userSpoke(t))
	c.Session().MarkForwarding()
	c.Handle(context.Background(), SessionEvent{Kind: EventKindFinal, Final: Final{CompletionReason: "server error"}})

	assert.Empty(t, h.crm.records)
	assert.Empty(t, tr.said)
	assert.Len(t, tr.replied, 1)
}

func TestCall_RunStopsOnClose(t *testing.T) {
	h := newHarness(t, withKey)
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), &fakeTransport{})
	require.NoError(t, err)

	events := make(chan SessionEvent, 4)
	events <- SessionEvent{Kind: EventKindError, Err: errors.New("jambonz error")}
	events <- userSpoke(t)
	events <- SessionEvent{Kind: EventKindClose, CloseCode: 1000}
	events <- userSpoke(t)
	c.Run(context.Background(), events)

	assert.Equal(t, call.StateClosed, c.Session().State())
	assert.Len(t, events, 1, "events after close are not consumed")
	assert.True(t, c.Handle(context.Background(), userSpoke(t)))
}

func TestCall_RunChannelClosedIsAbnormal(t *testing.T) {
	h := newHarness(t, withKey)
	c, err := h.orch.Open(context.Background(), inbound("08501234567"), &fakeTransport{})
	require.NoError(t, err)

	events := make(chan SessionEvent)
	close(events)
	c.Run(context.Background(), events)
	require.Len(t, h.crm.records, 1)
	assert.Equal(t, integration.StatusUnexpectedClose, h.crm.records[0].Status)
}
