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

package routing

import (
	"context"
	"fmt"
	"strings"

	"voice-platform/pkg/secrets"
)

// LoadEnvMappings 扫描形如 PHONE_<号码>_AGENT_ID 的条目，启动时调用一次
func LoadEnvMappings(ctx context.Context, store secrets.Store, prefix, suffix string) (map[string]string, error) {
	out := make(map[string]string)
	if store == nil || prefix == "" {
		return out, nil
	}
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s* mappings: %w", prefix, err)
	}
	for _, key := range keys {
		if suffix != "" && !strings.HasSuffix(key, suffix) {
			continue
		}
		phone := strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix)
		if phone == "" {
			continue
		}
		agentID, err := store.Get(ctx, key)
		if err != nil {
			continue
		}
		out[phone] = agentID
	}
	return out, nil
}
