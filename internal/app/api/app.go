// Copyright 2026 trieungoctam
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
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	apihttp "github.com/trieungoctam/chatbot-orchestrator/internal/api/http"
	"github.com/trieungoctam/chatbot-orchestrator/internal/app"
	"github.com/trieungoctam/chatbot-orchestrator/internal/botconfig"
	"github.com/trieungoctam/chatbot-orchestrator/internal/history"
	"github.com/trieungoctam/chatbot-orchestrator/internal/job"
	"github.com/trieungoctam/chatbot-orchestrator/internal/lock"
	"github.com/trieungoctam/chatbot-orchestrator/internal/orchestrator"
	"github.com/trieungoctam/chatbot-orchestrator/internal/platform"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用：装配编排器与 HTTP 路由
type App struct {
	bootstrap    *app.Bootstrap
	orch         *orchestrator.Orchestrator
	router       *apihttp.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := bootstrap.Logger

	processor := history.NewProcessor(bootstrap.Cache, bootstrap.Repo, cfg.History, logger)
	locks := lock.NewManager(bootstrap.Cache, cfg.Lock, logger)
	jobs := job.NewManager(bootstrap.Cache, cfg.Job, cfg.Worker, logger)
	bots := botconfig.NewService(bootstrap.Repo, bootstrap.Secrets, cfg.AI, cfg.Platform, logger)
	notifier := platform.NewNotifier(cfg.Platform, logger)

	orch := orchestrator.New(processor, locks, jobs, bots, bootstrap.Repo, notifier, cfg.AI, logger)

	handler := apihttp.NewHandler(orch, bootstrap.Cache, logger)
	router := apihttp.NewRouter(handler)

	return &App{
		bootstrap: bootstrap,
		orch:      orch,
		router:    router,
	}, nil
}

// Run 启动 HTTP 服务与编排器后台循环，阻塞直到服务退出
func (a *App) Run(addr string) error {
	a.setupHertzLogger()

	cfg := a.bootstrap.Config
	if cfg != nil && cfg.Monitoring.Tracing.Enable {
		serviceName := cfg.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "chatbot-orchestrator"
		}
		exportEndpoint := cfg.Monitoring.Tracing.ExportEndpoint
		if exportEndpoint == "" {
			exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if cfg.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
			tracerOpt, tracerCfg := hertztracing.NewServerTracer()
			a.hertz = a.router.Build(addr, tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(tracerCfg))
			a.bootstrap.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		} else {
			a.hertz = a.router.Build(addr)
		}
	} else {
		a.hertz = a.router.Build(addr)
	}

	a.orch.Start()
	a.bootstrap.Logger.Info("消息编排服务启动", "addr", addr)
	return a.hertz.Run()
}

// setupHertzLogger 把 Hertz 框架日志接到 slog
func (a *App) setupHertzLogger() {
	levelVar := &slog.LevelVar{}
	if a.bootstrap.Config != nil {
		switch a.bootstrap.Config.Log.Level {
		case "debug":
			levelVar.Set(slog.LevelDebug)
		case "warn":
			levelVar.Set(slog.LevelWarn)
		case "error":
			levelVar.Set(slog.LevelError)
		default:
			levelVar.Set(slog.LevelInfo)
		}
	} else {
		levelVar.Set(slog.LevelInfo)
	}
	hertzLogger := hertzslog.NewLogger(
		hertzslog.WithOutput(os.Stdout),
		hertzslog.WithLevel(levelVar),
	)
	hlog.SetLogger(hertzLogger)
}

// Shutdown 优雅关闭（传入 ctx 以支持超时）
func (a *App) Shutdown(ctx context.Context) error {
	a.orch.Close()
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	a.bootstrap.Close()
	return nil
}
