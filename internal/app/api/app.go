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

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	apihttp "voice-platform/internal/api/http"
	"voice-platform/internal/api/http/middleware"
	"voice-platform/internal/app"
	"voice-platform/pkg/log"
	"voice-platform/pkg/tracing"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App 进程入口：Hertz 诊断/回调接口 + telephony websocket
type App struct {
	config       *app.Bootstrap
	router       *apihttp.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	if bootstrap == nil {
		return nil, errors.New("bootstrap 为空")
	}
	handler := apihttp.NewHandler(bootstrap.Router, bootstrap.Tools, bootstrap.Logger)
	handler.SetRedactor(bootstrap.Redactor)
	router := apihttp.NewRouter(handler, middleware.NewMiddleware(bootstrap.Logger))
	return &App{config: bootstrap, router: router}, nil
}

// Run 启动 telephony 监听并阻塞运行 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	cfg := a.config.Config
	a.config.Logger.Info("API 服务启动", "addr", addr, "telephony_port", cfg.Telephony.Port)

	// 使用 Hertz slog 扩展，与 bootstrap 配置对齐
	var output io.Writer = os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	enabled, err := a.initTracing()
	if err != nil {
		return err
	}
	if enabled {
		tracerOpt, tracerCfg := hertztracing.NewServerTracer()
		a.hertz = a.router.Build(addr, tracerOpt)
		a.hertz.Use(hertztracing.ServerMiddleware(tracerCfg))
	} else {
		a.hertz = a.router.Build(addr)
	}

	go func() {
		if err := a.config.Telephony.ListenAndServe(); err != nil {
			a.config.Logger.Error("telephony 服务异常退出", "error", err)
		}
	}()
	return a.hertz.Run()
}

// initTracing 可选：启用链路追踪（OpenTelemetry）；protocol=http 时使用 OTLP HTTP 导出
func (a *App) initTracing() (bool, error) {
	tc := a.config.Config.Monitoring.Tracing
	if !tc.Enable {
		return false, nil
	}
	serviceName := tc.ServiceName
	if serviceName == "" {
		serviceName = "voice-platform"
	}
	endpoint := tc.ExportEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		a.config.Logger.Warn("链路追踪已开启但未配置导出地址，跳过")
		return false, nil
	}

	if tc.Protocol == "http" {
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    serviceName,
			ExportEndpoint: endpoint,
			Insecure:       tc.Insecure,
		})
		if err != nil {
			return false, fmt.Errorf("初始化链路追踪失败: %w", err)
		}
		a.otelProvider = tp
	} else {
		opts := []provider.Option{
			provider.WithServiceName(serviceName),
			provider.WithExportEndpoint(endpoint),
		}
		if tc.Insecure {
			opts = append(opts, provider.WithInsecure())
		}
		a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
	}
	a.config.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", endpoint, "protocol", tc.Protocol)
	return true, nil
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）；
// 先停 telephony 使进行中的通话以 1001 收尾并完成登记
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.config.Telephony.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("关闭 telephony 服务失败: %w", err))
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("关闭 HTTP 服务失败: %w", err))
		}
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.config.Cache != nil {
		if err := a.config.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭缓存失败: %w", err))
		}
	}
	return errors.Join(errs...)
}
