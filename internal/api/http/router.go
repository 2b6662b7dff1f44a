package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
)

// Router HTTP 路由器
type Router struct {
	handler *Handler
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Build 创建 Hertz 服务并注册路由；opts 可附加链路追踪等服务级选项
func (r *Router) Build(addr string, opts ...hertzconfig.Option) *server.Hertz {
	opts = append(opts, server.WithHostPorts(addr))
	h := server.New(opts...)
	r.register(h)
	return h
}

// register 注册路由
func (r *Router) register(h *server.Hertz) {
	api := h.Group("/api")

	// 健康检查
	api.GET("/health", r.handler.HealthCheck)

	v1 := api.Group("/v1")
	{
		// 消息编排
		v1.POST("/messages", r.handler.HandleMessage)

		// Job 生命周期
		v1.GET("/jobs/:id", r.handler.GetJobStatus)
		v1.POST("/jobs/:id/cancel", r.handler.CancelJob)

		// 会话锁
		v1.GET("/conversations/:id/lock", r.handler.GetLock)
		v1.DELETE("/conversations/:id/lock", r.handler.ReleaseLock)
		v1.POST("/locks/cleanup", r.handler.CleanupLocks)
	}

	// 系统管理
	system := api.Group("/system")
	{
		system.GET("/status", r.handler.SystemStatus)
		system.GET("/metrics", r.handler.SystemMetrics)
	}
}
