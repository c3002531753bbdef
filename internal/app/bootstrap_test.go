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

package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-platform/pkg/config"
	"voice-platform/pkg/log"
	"voice-platform/pkg/secrets"
)

func testConfig() *config.Config {
	return &config.Config{
		Telephony: config.TelephonyConfig{Port: 0, Path: "/elevenlabs-s2s"},
		Engine: config.EngineConfig{
			Vendor:     "elevenlabs",
			APIKeyRef:  "ELEVENLABS_API_KEY",
			ActionHook: "/final",
			EventHook:  "/event",
			ToolHook:   "/toolCall",
		},
		Routing: config.RoutingConfig{
			DefaultAgentID: "agent-default",
			Numbers:        map[string]string{"02123334455": "agent-config"},
			EnvPrefix:      "PHONE_",
			EnvSuffix:      "_AGENT_ID",
		},
		Integrations: config.IntegrationsConfig{
			CRM: config.CRMConfig{URL: "http://crm.invalid", APIKeyRef: "MAIVO_API_KEY"},
		},
		Secrets: config.SecretsConfig{
			Provider: "memory",
			Values: map[string]string{
				"ELEVENLABS_API_KEY":         "xi-key",
				"MAIVO_API_KEY":              "crm-key",
				"PHONE_08501234567_AGENT_ID": "agent-env",
				"PHONE_08501234568_OTHER":    "ignored",
			},
		},
	}
}

func TestNewBootstrap(t *testing.T) {
	b, err := NewBootstrap(context.Background(), testConfig(), log.Discard())
	require.NoError(t, err)

	id, ok := b.Router.SelectAgent("+90 850 123 45 67")
	require.True(t, ok)
	assert.Equal(t, "agent-env", id)

	id, ok = b.Router.SelectAgent("905551112233")
	require.True(t, ok)
	assert.Equal(t, "agent-default", id)

	assert.Equal(t, []string{"getWeather", "saveAppointmentRequest", "save_db"}, b.Tools.Names())
	assert.NotNil(t, b.Orchestrator)
	assert.NotNil(t, b.Telephony)
}

func TestNewBootstrap_NilConfig(t *testing.T) {
	_, err := NewBootstrap(context.Background(), nil, log.Discard())
	assert.Error(t, err)
}

func TestNewBootstrap_UnknownSecretProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Secrets.Provider = "k8s"
	_, err := NewBootstrap(context.Background(), cfg, log.Discard())
	assert.Error(t, err)
}

func TestResolveCRMKey(t *testing.T) {
	ctx := context.Background()
	store := secrets.NewMemoryStoreWith(map[string]string{"MAIVO_API_KEY": "from-store"})

	assert.Equal(t, "from-store", resolveCRMKey(ctx, store,
		config.CRMConfig{APIKeyRef: "MAIVO_API_KEY", APIKey: "plain"}, log.Discard()))
	assert.Equal(t, "plain", resolveCRMKey(ctx, store,
		config.CRMConfig{APIKeyRef: "MISSING", APIKey: "plain"}, log.Discard()))
	assert.Equal(t, "", resolveCRMKey(ctx, store,
		config.CRMConfig{APIKeyRef: "MISSING"}, log.Discard()))
	assert.Equal(t, "plain", resolveCRMKey(ctx, store,
		config.CRMConfig{APIKey: "plain"}, log.Discard()))
}
