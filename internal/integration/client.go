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

// Package integration 封装对外部 HTTP 服务的类型化调用：
// 天气/地理编码与 CRM 代表请求登记。所有调用只尝试一次，不重试。
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"voice-platform/internal/storage/cache"
	"voice-platform/pkg/config"
	"voice-platform/pkg/log"
	"voice-platform/pkg/metrics"
	"voice-platform/pkg/tracing"
)

const (
	limiterWeather = "weather"
	limiterCRM     = "crm"
)

// Options 构造参数
type Options struct {
	Timeout    time.Duration
	Weather    config.WeatherConfig
	CRMURL     string
	CRMAPIKey  string
	RateLimits map[string]config.RateLimitConfig // key: weather | crm
	Transport  http.RoundTripper                 // 可选，测试注入
	Cache      cache.Store                       // 可选，缓存地理编码结果
	GeocodeTTL time.Duration
	Logger     *log.Logger
}

// Client 并发安全，进程内共享一个实例
type Client struct {
	http      *resty.Client
	weather   config.WeatherConfig
	crmURL    string
	crmAPIKey string
	limiters  map[string]*rate.Limiter
	cache     cache.Store
	geoTTL    time.Duration
	logger    *log.Logger
}

// New 创建 Client；未设置超时时默认 10s
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)
	if opts.Transport != nil {
		client.SetTransport(opts.Transport)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	limiters := make(map[string]*rate.Limiter)
	for name, rl := range opts.RateLimits {
		if rl.QPS <= 0 {
			continue
		}
		burst := rl.Burst
		if burst <= 0 {
			burst = int(rl.QPS)
			if burst < 1 {
				burst = 1
			}
		}
		limiters[strings.ToLower(name)] = rate.NewLimiter(rate.Limit(rl.QPS), burst)
	}

	return &Client{
		http:      client,
		weather:   opts.Weather,
		crmURL:    opts.CRMURL,
		crmAPIKey: opts.CRMAPIKey,
		limiters:  limiters,
		cache:     opts.Cache,
		geoTTL:    opts.GeocodeTTL,
		logger:    logger,
	}
}

// NewFromConfig 由应用配置创建；crmAPIKey 由调用方经 secrets 解析，store 可为 nil
func NewFromConfig(cfg *config.Config, crmAPIKey string, store cache.Store, logger *log.Logger) *Client {
	return New(Options{
		Timeout:    config.ParseDuration(cfg.Integrations.Timeout, 10*time.Second),
		Weather:    cfg.Integrations.Weather,
		CRMURL:     cfg.Integrations.CRM.URL,
		CRMAPIKey:  crmAPIKey,
		RateLimits: cfg.RateLimits.Integrations,
		Cache:      store,
		GeocodeTTL: config.ParseDuration(cfg.Cache.GeocodeTTL, 24*time.Hour),
		Logger:     logger,
	})
}

func (c *Client) wait(ctx context.Context, name, service string) error {
	l, ok := c.limiters[name]
	if !ok {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return &ConnectivityError{Service: service, Err: fmt.Errorf("rate limit wait failed: %w", err)}
	}
	return nil
}

// observe 记录耗时与 span；返回的 done 在调用结束时执行
func (c *Client) observe(ctx context.Context, endpoint, url string) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := tracing.StartIntegrationSpan(ctx, endpoint, url)
	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.IntegrationDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
		tracing.EndSpan(span, err)
	}
}

// remoteMessage 取远端错误体中的 message，缺失时用 HTTP 状态文本
func remoteMessage(resp *resty.Response) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := http.StatusText(resp.StatusCode()); text != "" {
		return text
	}
	return resp.Status()
}
