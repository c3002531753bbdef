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

package dispatch

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"voice-platform/pkg/config"
)

// Limiter 工具维度的限流器，支持 QPS + 并发控制；未配置的工具不限流
type Limiter struct {
	limiters map[string]*toolLimiter // toolName -> limiter，构造后只读
}

type toolLimiter struct {
	rateLimiter *rate.Limiter // QPS 限流器
	semaphore   chan struct{} // 并发控制
}

// NewLimiter 按 rate_limits.tools 创建
func NewLimiter(configs map[string]config.RateLimitConfig) *Limiter {
	l := &Limiter{limiters: make(map[string]*toolLimiter)}
	for name, cfg := range configs {
		tl := &toolLimiter{}
		if cfg.QPS > 0 {
			burst := cfg.Burst
			if burst == 0 {
				burst = int(cfg.QPS)
			}
			if burst < 1 {
				burst = 1
			}
			tl.rateLimiter = rate.NewLimiter(rate.Limit(cfg.QPS), burst)
		}
		if cfg.MaxConcurrent > 0 {
			tl.semaphore = make(chan struct{}, cfg.MaxConcurrent)
		}
		l.limiters[name] = tl
	}
	return l
}

// Acquire 阻塞直到可以执行；返回的 release 必须调用
func (l *Limiter) Acquire(ctx context.Context, toolName string) (release func(), err error) {
	noop := func() {}
	if l == nil {
		return noop, nil
	}
	tl, ok := l.limiters[toolName]
	if !ok {
		return noop, nil
	}

	if tl.rateLimiter != nil {
		if err := tl.rateLimiter.Wait(ctx); err != nil {
			return noop, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	if tl.semaphore == nil {
		return noop, nil
	}
	select {
	case tl.semaphore <- struct{}{}:
		return func() { <-tl.semaphore }, nil
	case <-ctx.Done():
		return noop, ctx.Err()
	}
}
