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

package http

import (
	"bytes"
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/trieungoctam/chatbot-orchestrator/internal/orchestrator"
	"github.com/trieungoctam/chatbot-orchestrator/internal/storage/cache"
	pkgerrors "github.com/trieungoctam/chatbot-orchestrator/pkg/errors"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/metrics"
)

// Handler HTTP 处理器
type Handler struct {
	orch   *orchestrator.Orchestrator
	cache  *cache.Manager
	logger *log.Logger
}

// NewHandler 创建 HTTP 处理器
func NewHandler(orch *orchestrator.Orchestrator, cacheManager *cache.Manager, logger *log.Logger) *Handler {
	return &Handler{orch: orch, cache: cacheManager, logger: logger}
}

// messageRequest 入站消息请求体
type messageRequest struct {
	ConversationID string `json:"conversation_id"`
	History        string `json:"history"`
	BotID          string `json:"bot_id"`
}

// HandleMessage 处理入站消息
// POST /api/v1/messages
func (h *Handler) HandleMessage(c context.Context, ctx *app.RequestContext) {
	var req messageRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
		return
	}

	resp := h.orch.HandleMessageRequest(c, req.ConversationID, req.History, req.BotID)
	status := consts.StatusOK
	if resp.Status == orchestrator.StatusFailed {
		status = consts.StatusInternalServerError
	}
	ctx.JSON(status, resp)
}

// GetJobStatus 查询 Job 状态
// GET /api/v1/jobs/:id
func (h *Handler) GetJobStatus(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("id")
	if jobID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}

	j, err := h.orch.GetJobStatus(c, jobID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrNotFound) {
			ctx.JSON(consts.StatusNotFound, map[string]string{"error": "job not found or expired"})
			return
		}
		h.logger.Error("Job 状态查询failed", "job_id", jobID, "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": "job status lookup failed"})
		return
	}

	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"job_id": j.ID,
		"status": j.Status,
		"result": j.Result,
		"error":  j.Error,
	})
}

// CancelJob 取消 Job
// POST /api/v1/jobs/:id/cancel
func (h *Handler) CancelJob(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("id")
	ok := h.orch.CancelJob(c, jobID)
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"job_id":    jobID,
		"cancelled": ok,
	})
}

// GetLock 查询会话锁
// GET /api/v1/conversations/:id/lock
func (h *Handler) GetLock(c context.Context, ctx *app.RequestContext) {
	conversationID := ctx.Param("id")
	entry, err := h.orch.GetLockInfo(c, conversationID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrNotFound) {
			ctx.JSON(consts.StatusOK, map[string]interface{}{
				"conversation_id": conversationID,
				"locked":          false,
			})
			return
		}
		h.logger.Error("会话锁查询failed", "conversation_id", conversationID, "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": "lock lookup failed"})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"locked":          true,
		"lock":            entry,
	})
}

// ReleaseLock 管理端强制解锁
// DELETE /api/v1/conversations/:id/lock
func (h *Handler) ReleaseLock(c context.Context, ctx *app.RequestContext) {
	conversationID := ctx.Param("id")
	ok := h.orch.ReleaseLock(c, conversationID)
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"released":        ok,
	})
}

// cleanupRequest 孤儿锁清理请求体，max_age_hours 缺省用配置默认值
type cleanupRequest struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// CleanupLocks 立即清理孤儿锁
// POST /api/v1/locks/cleanup?max_age_hours=N
func (h *Handler) CleanupLocks(c context.Context, ctx *app.RequestContext) {
	var req cleanupRequest
	if v := ctx.Query("max_age_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid max_age_hours"})
			return
		}
		req.MaxAgeHours = n
	} else if len(ctx.Request.Body()) > 0 {
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	removed, err := h.orch.CleanupOldLocks(c, req.MaxAgeHours)
	if err != nil {
		h.logger.Error("孤儿锁清理failed", "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": "lock cleanup failed"})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{"removed": removed})
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]string{
		"status": "ok",
	})
}

// SystemStatus 系统状态：缓存后端与 worker 池
// GET /api/system/status
func (h *Handler) SystemStatus(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"cache": map[string]interface{}{
			"backend": h.cache.Backend(),
			"healthy": h.cache.Healthy(),
		},
		"worker": h.orch.WorkerStatus(),
	})
}

// SystemMetrics Prometheus 指标导出
// GET /api/system/metrics
func (h *Handler) SystemMetrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": "metrics collection failed"})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
