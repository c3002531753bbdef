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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-platform/internal/integration"
	"voice-platform/internal/orchestrator"
	"voice-platform/internal/outcome"
	"voice-platform/internal/routing"
	"voice-platform/internal/tool/dispatch"
	"voice-platform/internal/tool/registry"
	"voice-platform/pkg/config"
	"voice-platform/pkg/secrets"
)

type memoryCRM struct {
	mu      sync.Mutex
	records []integration.RepresentativeRequest
}

func (m *memoryCRM) SubmitRepresentativeRequest(_ context.Context, rec integration.RepresentativeRequest) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return json.RawMessage(`{}`), nil
}

func (m *memoryCRM) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

var testHooks = Hooks{Action: "/final", Event: "/event", Tool: "/toolCall"}

func newTestServer(t *testing.T, secretValues map[string]string) (string, *memoryCRM) {
	t.Helper()
	crm := &memoryCRM{}
	orch := orchestrator.New(orchestrator.Deps{
		Router:     routing.NewRouter(config.RoutingConfig{DefaultAgentID: "agent-default"}, nil),
		Secrets:    secrets.NewMemoryStoreWith(secretValues),
		Dispatcher: dispatch.New(registry.New(), nil, nil),
		Recorder:   outcome.NewRecorder(crm, time.Second, nil),
		Engine: config.EngineConfig{
			Vendor: "elevenlabs", Model: "eleven_flash_v2_5", APIKeyRef: "ELEVENLABS_API_KEY",
			InputSampleRate: 16000, OutputSampleRate: 16000,
			ActionHook: "/final", EventHook: "/event", ToolHook: "/toolCall", PauseSeconds: 1,
		},
	})
	srv := NewServer(config.TelephonyConfig{Path: "/elevenlabs-s2s"}, testHooks, orch, nil)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return "ws" + strings.TrimPrefix(hs.URL, "http") + "/elevenlabs-s2s", crm
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{DefaultSubprotocol}}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSubprotocol, resp.Header.Get("Sec-Websocket-Protocol"))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func sessionNew(direction string) map[string]any {
	return map[string]any{
		"type":     "session:new",
		"msgid":    "m-1",
		"call_sid": "CA-42",
		"data": map[string]any{
			"call_sid":  "CA-42",
			"direction": direction,
			"from":      "905321112233",
			"to":        "908501234567",
		},
	}
}

func verbNames(t *testing.T, msg map[string]any) []string {
	t.Helper()
	data, _ := msg["data"].([]any)
	names := make([]string, 0, len(data))
	for _, v := range data {
		names = append(names, v.(map[string]any)["verb"].(string))
	}
	return names
}

func TestServer_FullCall(t *testing.T) {
	url, crm := newTestServer(t, map[string]string{"ELEVENLABS_API_KEY": "xi-key"})
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(sessionNew("inbound")))
	ack := readJSON(t, conn)
	assert.Equal(t, "ack", ack["type"])
	assert.Equal(t, "m-1", ack["msgid"])
	assert.Equal(t, []string{"answer", "pause", "llm", "hangup"}, verbNames(t, ack))

	llm := ack["data"].([]any)[2].(map[string]any)
	assert.Equal(t, "elevenlabs", llm["vendor"])
	assert.Equal(t, "/final", llm["actionHook"])
	auth := llm["auth"].(map[string]any)
	assert.Equal(t, "agent-default", auth["agent_id"])
	assert.Equal(t, "xi-key", auth["api_key"])
	opts := llm["llmOptions"].(map[string]any)
	assert.Equal(t, float64(16000), opts["input_sample_rate"])

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "llm:event", "call_sid": "CA-42",
		"data": map[string]any{"type": "user_transcript", "user_transcription_event": map[string]any{"user_transcript": "Alo"}},
	}))
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "llm:tool-call", "call_sid": "CA-42",
		"data": map[string]any{"name": "getWeather", "tool_call_id": "tc-1", "args": map[string]any{"location": "Bursa"}},
	}))
	out := readJSON(t, conn)
	assert.Equal(t, "command", out["type"])
	assert.Equal(t, "llm:tool-output", out["command"])
	assert.Equal(t, "tc-1", out["tool_call_id"])
	result := out["data"].(map[string]any)
	assert.Equal(t, "client_tool_result", result["type"])
	assert.Equal(t, true, result["is_error"])
	assert.Equal(t, "Unknown tool getWeather", result["result"])

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "verb:hook", "msgid": "m-2", "call_sid": "CA-42", "hook": "/final",
		"data": map[string]any{"completion_reason": "server error"},
	}))
	final := readJSON(t, conn)
	assert.Equal(t, "ack", final["type"])
	assert.Equal(t, "m-2", final["msgid"])
	assert.Equal(t, []string{"say", "hangup"}, verbNames(t, final))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "bye")))

	require.Eventually(t, func() bool { return crm.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, crm.count(), "final already recorded; close must not add another record")
}

func TestServer_ToolCallWithStringArgsGetsErrorResult(t *testing.T) {
	url, _ := newTestServer(t, map[string]string{"ELEVENLABS_API_KEY": "xi-key"})
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(sessionNew("inbound")))
	readJSON(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"llm:tool-call","call_sid":"CA-42","data":{"name":"getWeather","args":"{\"location\":\"Izmir\"}","tool_call_id":"tc-7"}}`)))
	out := readJSON(t, conn)
	assert.Equal(t, "command", out["type"])
	assert.Equal(t, "llm:tool-output", out["command"])
	assert.Equal(t, "tc-7", out["tool_call_id"])
	result := out["data"].(map[string]any)
	assert.Equal(t, "client_tool_result", result["type"])
	assert.Equal(t, "tc-7", result["tool_call_id"])
	assert.Equal(t, true, result["is_error"])
	assert.Equal(t, "Invalid arguments for tool getWeather", result["result"])

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "verb:hook", "msgid": "m-3", "call_sid": "CA-42", "hook": "/toolCall",
		"data": map[string]any{"name": "getWeather", "tool_call_id": "tc-8", "args": []any{"Izmir"}},
	}))
	hookAck := readJSON(t, conn)
	assert.Equal(t, "ack", hookAck["type"])
	assert.Equal(t, "m-3", hookAck["msgid"])
	out = readJSON(t, conn)
	assert.Equal(t, "tc-8", out["tool_call_id"])
	assert.Equal(t, true, out["data"].(map[string]any)["is_error"])
}

func TestServer_UnexpectedCloseRecords(t *testing.T) {
	url, crm := newTestServer(t, map[string]string{"ELEVENLABS_API_KEY": "xi-key"})
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(sessionNew("inbound")))
	readJSON(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "upstream")))

	require.Eventually(t, func() bool { return crm.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	crm.mu.Lock()
	defer crm.mu.Unlock()
	assert.Equal(t, integration.StatusUnexpectedClose, crm.records[0].Status)
	assert.Equal(t, "Beklenmeyen kapanış - Code: 1011, Reason: upstream", crm.records[0].Description)
}

func TestServer_MissingKeyHangsUp(t *testing.T) {
	url, crm := newTestServer(t, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(sessionNew("inbound")))
	ack := readJSON(t, conn)
	assert.Equal(t, "m-1", ack["msgid"])
	assert.Equal(t, []string{"hangup"}, verbNames(t, ack))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, crm.count())
}

func TestServer_OutboundRejected(t *testing.T) {
	url, _ := newTestServer(t, map[string]string{"ELEVENLABS_API_KEY": "xi-key"})
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(sessionNew("outbound")))
	ack := readJSON(t, conn)
	assert.Equal(t, []string{"hangup"}, verbNames(t, ack))
}

func TestServer_FirstMessageMustBeSessionNew(t *testing.T) {
	url, _ := newTestServer(t, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "llm:event"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseProtocolError, ce.Code)
}

func TestServer_RejectsPlainHTTP(t *testing.T) {
	srv := NewServer(config.TelephonyConfig{Path: "/ws"}, testHooks, nil, nil)
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()

	resp, err := http.Get(hs.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
