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

package builtin

import (
	"context"
	"encoding/json"

	"voice-platform/internal/call"
	"voice-platform/internal/tool"
)

// WeatherProvider 天气查询依赖，由 integration.Client 实现
type WeatherProvider interface {
	GetWeather(ctx context.Context, location, scale string) (json.RawMessage, error)
}

// WeatherTool 实现 getWeather
type WeatherTool struct {
	provider WeatherProvider
}

// NewWeatherTool 创建 getWeather 工具
func NewWeatherTool(provider WeatherProvider) *WeatherTool {
	return &WeatherTool{provider: provider}
}

// Name 实现 tool.Tool
func (t *WeatherTool) Name() string { return "getWeather" }

// Description 实现 tool.Tool
func (t *WeatherTool) Description() string {
	return "查询地点的当前气温与风速。传入 location，可选 scale（celsius|fahrenheit）。"
}

// Schema 实现 tool.Tool
func (t *WeatherTool) Schema() tool.Schema {
	return tool.Schema{
		Type:        "object",
		Description: "天气查询参数",
		Properties: map[string]tool.SchemaProperty{
			"location": {Type: "string", Description: "城市或地点名称"},
			"scale":    {Type: "string", Description: "温度单位，默认 celsius"},
		},
		Required: []string{"location"},
	}
}

// Execute 实现 tool.Tool，返回天气接口原始 JSON
func (t *WeatherTool) Execute(ctx context.Context, _ *call.Session, args map[string]any) (any, error) {
	location, _ := args["location"].(string)
	scale, _ := args["scale"].(string)
	if scale == "" {
		scale = "celsius"
	}
	weather, err := t.provider.GetWeather(ctx, location, scale)
	if err != nil {
		return nil, tool.NewError("Failed to get weather for location", err)
	}
	return weather, nil
}
