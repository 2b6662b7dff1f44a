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

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trieungoctam/chatbot-orchestrator/internal/ai"
	"github.com/trieungoctam/chatbot-orchestrator/internal/botconfig"
	"github.com/trieungoctam/chatbot-orchestrator/internal/history"
	"github.com/trieungoctam/chatbot-orchestrator/internal/job"
	"github.com/trieungoctam/chatbot-orchestrator/internal/lock"
	"github.com/trieungoctam/chatbot-orchestrator/internal/platform"
	"github.com/trieungoctam/chatbot-orchestrator/internal/storage/conversation"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/metrics"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/tracing"
)

// 请求响应状态
const (
	StatusAIProcessingStarted = "ai_processing_started"
	StatusLocked              = "locked"
	StatusNoNewMessages       = "no_new_messages"
	StatusFailed              = "failed"
)

// ActionProcessingCompleted Job 完成后的动作标记
const ActionProcessingCompleted = "processing_completed"

const cleanupInterval = time.Hour

// Response handle_message_request 的同步响应，总是快速返回，
// AI 结果经 get_job_status 轮询获取
type Response struct {
	Success              bool   `json:"success"`
	Status               string `json:"status"`
	Action               string `json:"action,omitempty"`
	ConversationID       string `json:"conversation_id"`
	AIJobID              string `json:"ai_job_id,omitempty"`
	LockID               int64  `json:"lock_id,omitempty"`
	ConsolidatedMessages int    `json:"consolidated_messages,omitempty"`
	Message              string `json:"message,omitempty"`
}

// Orchestrator 消息编排器：把入站消息变成每会话至多一个在途 AI Job
type Orchestrator struct {
	processor *history.Processor
	locks     *lock.Manager
	jobs      *job.Manager
	bots      *botconfig.Service
	repo      conversation.Store
	notifier  *platform.Notifier
	logger    *log.Logger
	aiCfg     config.AIConfig

	clientMu  sync.Mutex
	aiClients map[string]*ai.Client

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New 组装编排器并接好 Job 执行与完成回调
func New(
	processor *history.Processor,
	locks *lock.Manager,
	jobs *job.Manager,
	bots *botconfig.Service,
	repo conversation.Store,
	notifier *platform.Notifier,
	aiCfg config.AIConfig,
	logger *log.Logger,
) *Orchestrator {
	o := &Orchestrator{
		processor: processor,
		locks:     locks,
		jobs:      jobs,
		bots:      bots,
		repo:      repo,
		notifier:  notifier,
		logger:    logger,
		aiCfg:     aiCfg,
		aiClients: make(map[string]*ai.Client),
		stopCh:    make(chan struct{}),
	}
	jobs.SetRunJob(o.runJob)
	jobs.SetCompletion(o.onJobComplete)
	return o
}

// Start 启动 worker 池与孤儿锁周期清理
func (o *Orchestrator) Start() {
	o.jobs.Start()
	o.wg.Add(1)
	go o.cleanupLoop()
}

// Close 停止后台循环与 worker 池
func (o *Orchestrator) Close() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
	o.jobs.Stop()
}

// cleanupLoop 周期清理孤儿锁，TTL 之外的兜底
func (o *Orchestrator) cleanupLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			if _, err := o.locks.CleanupOld(context.Background(), 0); err != nil {
				o.logger.Warn("孤儿锁清理failed", "error", err)
			}
		}
	}
}

// HandleMessageRequest 处理入站消息。同步路径只做增量处理与加锁决策，
// AI 调用全部走后台 Job；基础设施错误就地吸收，从不向调用方抛出。
func (o *Orchestrator) HandleMessageRequest(ctx context.Context, conversationID, rawHistory, botID string) *Response {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	ctx, span := tracing.StartMessageSpan(ctx, conversationID)
	defer span.End()

	batch, err := o.processor.Process(ctx, conversationID, rawHistory)
	if err != nil {
		o.logger.Error("历史处理failed", "conversation_id", conversationID, "error", err)
		metrics.MessageTotal.WithLabelValues(StatusFailed).Inc()
		return &Response{Status: StatusFailed, ConversationID: conversationID, Message: "history processing failed"}
	}
	if len(batch.Messages) == 0 {
		metrics.MessageTotal.WithLabelValues(StatusNoNewMessages).Inc()
		return &Response{Success: true, Status: StatusNoNewMessages, ConversationID: conversationID}
	}

	decision, err := o.locks.CheckAndAcquire(ctx, conversationID, batch.Fingerprint)
	if err != nil {
		o.logger.Error("会话锁操作failed", "conversation_id", conversationID, "error", err)
		metrics.MessageTotal.WithLabelValues(StatusFailed).Inc()
		return &Response{Status: StatusFailed, ConversationID: conversationID, Message: "lock acquisition failed"}
	}

	if decision.ShouldCancelPrevious {
		if err := o.jobs.Cancel(ctx, decision.PreviousJobID); err != nil {
			// 旧 Job 可能已自然终结，取消失败不影响新 Job
			o.logger.Info("旧 Job 取消未生效", "job_id", decision.PreviousJobID, "error", err)
		}
	}

	if !decision.ShouldCallAI {
		metrics.MessageTotal.WithLabelValues(StatusLocked).Inc()
		return &Response{
			Success:              true,
			Status:               StatusLocked,
			Action:               decision.Action,
			ConversationID:       conversationID,
			LockID:               decision.LockID,
			ConsolidatedMessages: decision.ConsolidatedCount,
			Message:              "existing job in flight for identical content",
		}
	}

	j, err := o.jobs.Create(ctx, &job.Payload{
		ConversationID: conversationID,
		BotID:          botID,
		Messages:       batch.Messages,
		History:        rawHistory,
		LockID:         decision.LockID,
	})
	if err != nil {
		o.logger.Error("Job 创建failed", "conversation_id", conversationID, "error", err)
		metrics.MessageTotal.WithLabelValues(StatusFailed).Inc()
		return &Response{Status: StatusFailed, ConversationID: conversationID, Message: "job creation failed"}
	}
	// 先挂锁再入队：入队可能内联同步执行，完成回调要求锁已引用本 Job
	if err := o.locks.AttachJob(ctx, conversationID, j.ID); err != nil {
		o.logger.Warn("Job 挂接到锁failed", "conversation_id", conversationID, "job_id", j.ID, "error", err)
	}
	o.jobs.Enqueue(ctx, j.ID)

	metrics.MessageTotal.WithLabelValues(StatusAIProcessingStarted).Inc()
	return &Response{
		Success:              true,
		Status:               StatusAIProcessingStarted,
		Action:               decision.Action,
		ConversationID:       conversationID,
		AIJobID:              j.ID,
		LockID:               decision.LockID,
		ConsolidatedMessages: decision.ConsolidatedCount,
	}
}

// GetJobStatus 查询 Job 状态
func (o *Orchestrator) GetJobStatus(ctx context.Context, jobID string) (*job.Job, error) {
	return o.jobs.GetStatus(ctx, jobID)
}

// CancelJob 取消 Job，终态或不存在返回 false
func (o *Orchestrator) CancelJob(ctx context.Context, jobID string) bool {
	if err := o.jobs.Cancel(ctx, jobID); err != nil {
		o.logger.Info("Job 取消failed", "job_id", jobID, "error", err)
		return false
	}
	return true
}

// GetLockInfo 查询会话锁条目，未加锁返回 ErrNotFound
func (o *Orchestrator) GetLockInfo(ctx context.Context, conversationID string) (*lock.Entry, error) {
	return o.locks.Get(ctx, conversationID)
}

// ReleaseLock 管理端强制解锁
func (o *Orchestrator) ReleaseLock(ctx context.Context, conversationID string) bool {
	if err := o.locks.Release(ctx, conversationID); err != nil {
		o.logger.Warn("强制解锁failed", "conversation_id", conversationID, "error", err)
		return false
	}
	return true
}

// CleanupOldLocks 立即清理孤儿锁，返回清理数量；
// maxAgeHours <= 0 时使用配置的默认年龄
func (o *Orchestrator) CleanupOldLocks(ctx context.Context, maxAgeHours int) (int, error) {
	return o.locks.CleanupOld(ctx, maxAgeHours)
}

// WorkerStatus worker 池运行状态
func (o *Orchestrator) WorkerStatus() job.WorkerStatus {
	return o.jobs.Status()
}
