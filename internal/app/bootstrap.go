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
	"fmt"

	"voice-platform/internal/integration"
	"voice-platform/internal/orchestrator"
	"voice-platform/internal/outcome"
	"voice-platform/internal/routing"
	"voice-platform/internal/storage/cache"
	"voice-platform/internal/telephony"
	"voice-platform/internal/tool/builtin"
	"voice-platform/internal/tool/dispatch"
	"voice-platform/internal/tool/registry"
	"voice-platform/pkg/config"
	"voice-platform/pkg/log"
	"voice-platform/pkg/redaction"
	"voice-platform/pkg/secrets"
)

// Bootstrap 进程级共享组件，启动时装配一次，之后只读
type Bootstrap struct {
	Config       *config.Config
	Logger       *log.Logger
	Secrets      secrets.Store
	Router       *routing.Router
	Cache        cache.Store
	Integrations *integration.Client
	Tools        *registry.Registry
	Dispatcher   *dispatch.Dispatcher
	Recorder     *outcome.Recorder
	Redactor     *redaction.Engine
	Orchestrator *orchestrator.Orchestrator
	Telephony    *telephony.Server
}

// NewBootstrap 按配置装配全部组件；logger 为 nil 时按 cfg.Log 创建
func NewBootstrap(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Bootstrap, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置为空")
	}
	if logger == nil {
		var err error
		logger, err = log.NewLogger(&log.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			File:   cfg.Log.File,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化日志失败: %w", err)
		}
	}

	store, err := secrets.NewStore(cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("初始化凭据存储失败: %w", err)
	}

	envMappings, err := routing.LoadEnvMappings(ctx, store, cfg.Routing.EnvPrefix, cfg.Routing.EnvSuffix)
	if err != nil {
		return nil, fmt.Errorf("加载号码映射失败: %w", err)
	}
	router := routing.NewRouter(cfg.Routing, envMappings)
	rc := router.Configurations()
	logger.Info("号码路由已加载", "mappings", len(rc.Mappings), "default_agent_id", rc.DefaultAgentID)
	if _, ok := router.DefaultAgent(); !ok {
		logger.Warn("未配置默认 agent，未映射号码的来电将被挂断")
	}

	geoCache, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}
	integrations := integration.NewFromConfig(cfg,
		resolveCRMKey(ctx, store, cfg.Integrations.CRM, logger), geoCache, logger)

	reg := registry.New()
	if err := builtin.Register(reg, builtin.Deps{
		Weather:         integrations,
		Representatives: integrations,
		Logger:          logger,
	}); err != nil {
		return nil, fmt.Errorf("注册内置工具失败: %w", err)
	}
	redactor := newRedactor(cfg.Redaction)
	dispatcher := dispatch.New(reg, dispatch.NewLimiter(cfg.RateLimits.Tools), logger)
	dispatcher.SetRedactor(redactor)

	recorder := outcome.NewRecorder(integrations,
		config.ParseDuration(cfg.Outcome.PersistTimeout, 0), logger)

	orch := orchestrator.New(orchestrator.Deps{
		Router:     router,
		Secrets:    store,
		Dispatcher: dispatcher,
		Recorder:   recorder,
		Engine:     cfg.Engine,
		Logger:     logger,
	})

	server := telephony.NewServer(cfg.Telephony, telephony.Hooks{
		Action: cfg.Engine.ActionHook,
		Event:  cfg.Engine.EventHook,
		Tool:   cfg.Engine.ToolHook,
	}, orch, logger)

	return &Bootstrap{
		Config:       cfg,
		Logger:       logger,
		Secrets:      store,
		Router:       router,
		Cache:        geoCache,
		Integrations: integrations,
		Tools:        reg,
		Dispatcher:   dispatcher,
		Recorder:     recorder,
		Redactor:     redactor,
		Orchestrator: orch,
		Telephony:    server,
	}, nil
}

// resolveCRMKey 优先从凭据存储读取，失败时回落到配置中的明文 key
func resolveCRMKey(ctx context.Context, store secrets.Store, cfg config.CRMConfig, logger *log.Logger) string {
	if cfg.APIKeyRef != "" {
		key, err := secrets.Require(ctx, store, cfg.APIKeyRef)
		if err == nil {
			return key
		}
		if cfg.APIKey == "" {
			logger.Warn("CRM API key 未配置，登记请求将被拒绝", "ref", cfg.APIKeyRef, "error", err)
			return ""
		}
		logger.Warn("CRM API key 解析失败，使用配置中的 key", "ref", cfg.APIKeyRef, "error", err)
	}
	return cfg.APIKey
}

// newRedactor 启用但未配置规则时使用默认策略
func newRedactor(cfg config.RedactionConfig) *redaction.Engine {
	policy := redaction.LoadPolicyFromConfig(cfg)
	if policy != nil && len(cfg.Rules) == 0 {
		policy = redaction.DefaultPolicy()
	}
	return redaction.NewEngine(policy)
}
