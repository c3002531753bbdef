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

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const serviceWeather = "Weather"

// ScaleCelsius 默认温度单位
const ScaleCelsius = "celsius"

// GeoResult 地理编码结果的一条
type GeoResult struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`
}

type geocodingResponse struct {
	Results []GeoResult `json:"results"`
}

// Geocode 取地名的第一个匹配；无结果返回 ErrLocationNotFound
func (c *Client) Geocode(ctx context.Context, location string) (*GeoResult, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, ErrLocationNotFound
	}
	key := "geocode:" + strings.ToLower(location)
	if c.cache != nil {
		var cached GeoResult
		found, err := c.cache.Get(ctx, key, &cached)
		if err != nil {
			c.logger.Warn("读取地理编码缓存失败", "error", err)
		} else if found {
			return &cached, nil
		}
	}
	if err := c.wait(ctx, limiterWeather, serviceWeather); err != nil {
		return nil, err
	}

	ctx, done := c.observe(ctx, "geocoding", c.weather.GeocodingURL)
	result, err := c.geocode(ctx, location)
	done(err)
	if err == nil && c.cache != nil {
		if err := c.cache.Set(ctx, key, result, c.geoTTL); err != nil {
			c.logger.Warn("写入地理编码缓存失败", "error", err)
		}
	}
	return result, err
}

func (c *Client) geocode(ctx context.Context, location string) (*GeoResult, error) {
	var out geocodingResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"name":     location,
			"count":    "1",
			"language": "en",
			"format":   "json",
		}).
		Get(c.weather.GeocodingURL)
	if err != nil {
		return nil, &ConnectivityError{Service: serviceWeather, Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &RemoteError{Service: serviceWeather, StatusCode: resp.StatusCode(), Message: remoteMessage(resp)}
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("解析地理编码响应失败: %w", err)
	}
	if len(out.Results) == 0 {
		return nil, ErrLocationNotFound
	}
	return &out.Results[0], nil
}

// GetWeather 地名 → 坐标 → 当前天气，返回预报接口原始 JSON
func (c *Client) GetWeather(ctx context.Context, location, scale string) (json.RawMessage, error) {
	if scale == "" {
		scale = ScaleCelsius
	}
	geo, err := c.Geocode(ctx, location)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx, limiterWeather, serviceWeather); err != nil {
		return nil, err
	}

	ctx, done := c.observe(ctx, "forecast", c.weather.ForecastURL)
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":         strconv.FormatFloat(geo.Latitude, 'f', -1, 64),
			"longitude":        strconv.FormatFloat(geo.Longitude, 'f', -1, 64),
			"current":          "temperature_2m,wind_speed_10m",
			"temperature_unit": scale,
		}).
		Get(c.weather.ForecastURL)
	if err != nil {
		err = &ConnectivityError{Service: serviceWeather, Err: err}
		done(err)
		return nil, err
	}
	if !resp.IsSuccess() {
		err = &RemoteError{Service: serviceWeather, StatusCode: resp.StatusCode(), Message: remoteMessage(resp)}
		done(err)
		return nil, err
	}
	done(nil)
	return json.RawMessage(resp.Body()), nil
}
