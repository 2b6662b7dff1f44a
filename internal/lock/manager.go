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

package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/trieungoctam/chatbot-orchestrator/internal/storage/cache"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
	pkgerrors "github.com/trieungoctam/chatbot-orchestrator/pkg/errors"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/metrics"
)

const lockKeyPrefix = "msg_lock:"

const (
	defaultLockTTL          = time.Hour
	defaultCleanupMaxAgeHrs = 24
)

// 加锁决策动作
const (
	ActionLockAcquired = "lock_acquired"
	// ActionLockUpdated 指纹变化时换入新 Job 并要求取消旧 Job
	ActionLockUpdated = "lock_updated_cancel_and_reprocess"
	// ActionLocked 指纹未变，已有 Job 在途，无需新工作
	ActionLocked = "locked"
)

// Entry 会话锁条目，一个会话至多一条；不存在即未加锁
type Entry struct {
	ConversationID     string `json:"conversation_id"`
	HistoryFingerprint string `json:"history_fingerprint"`
	LockID             int64  `json:"lock_id"` // 毫秒时间戳，单调递增
	ConsolidatedCount  int    `json:"consolidated_count"`
	CurrentJobID       string `json:"current_job_id"`
	PreviousJobID      string `json:"previous_job_id"`
	CreatedAt          int64  `json:"created_at"` // Unix 秒
	UpdatedAt          int64  `json:"updated_at"`
}

// Decision 加锁决策，告诉调用方接下来做什么
type Decision struct {
	Action               string `json:"action"`
	ShouldCallAI         bool   `json:"should_call_ai"`
	ShouldCancelPrevious bool   `json:"should_cancel_previous"`
	PreviousJobID        string `json:"previous_job_id,omitempty"`
	ConsolidatedCount    int    `json:"consolidated_count"`
	LockID               int64  `json:"lock_id"`
}

// Manager 会话锁管理器：保证每个会话至多一个在途 AI Job，
// 把快速重发折叠为 consolidation 而不是重复工作
type Manager struct {
	cache  cache.Store
	logger *log.Logger
	ttl    time.Duration
	maxAge time.Duration
}

// NewManager 创建会话锁管理器
func NewManager(cacheStore cache.Store, cfg config.LockConfig, logger *log.Logger) *Manager {
	ttl := defaultLockTTL
	if cfg.TTL != "" {
		if d, err := time.ParseDuration(cfg.TTL); err == nil && d > 0 {
			ttl = d
		}
	}
	maxAgeHours := cfg.CleanupMaxAgeHours
	if maxAgeHours <= 0 {
		maxAgeHours = defaultCleanupMaxAgeHrs
	}
	return &Manager{
		cache:  cacheStore,
		logger: logger,
		ttl:    ttl,
		maxAge: time.Duration(maxAgeHours) * time.Hour,
	}
}

// lockKey 会话锁缓存键
func lockKey(conversationID string) string {
	return lockKeyPrefix + conversationID
}

// CheckAndAcquire 检查并获取会话锁。
// 未加锁则新建；已加锁且指纹不同则折叠进新 Job 并要求取消旧 Job；
// 指纹相同则维持现状，调用方不应再发起 AI 调用。
func (m *Manager) CheckAndAcquire(ctx context.Context, conversationID, fingerprint string) (*Decision, error) {
	key := lockKey(conversationID)
	now := time.Now()

	var entry Entry
	err := m.cache.Get(ctx, key, &entry)
	if err != nil {
		if !pkgerrors.Is(err, pkgerrors.ErrNotFound) {
			return nil, fmt.Errorf("read lock %s: %w", conversationID, err)
		}
		// 未加锁，新建条目
		entry = Entry{
			ConversationID:     conversationID,
			HistoryFingerprint: fingerprint,
			LockID:             now.UnixMilli(),
			ConsolidatedCount:  1,
			CreatedAt:          now.Unix(),
			UpdatedAt:          now.Unix(),
		}
		if err := m.cache.Set(ctx, key, entry, m.ttl); err != nil {
			return nil, fmt.Errorf("write lock %s: %w", conversationID, err)
		}
		return &Decision{
			Action:            ActionLockAcquired,
			ShouldCallAI:      true,
			ConsolidatedCount: entry.ConsolidatedCount,
			LockID:            entry.LockID,
		}, nil
	}

	if entry.HistoryFingerprint == fingerprint {
		// 同一内容重发，已有 Job 在途
		return &Decision{
			Action:            ActionLocked,
			ShouldCallAI:      false,
			ConsolidatedCount: entry.ConsolidatedCount,
			LockID:            entry.LockID,
		}, nil
	}

	// 新内容在完成前到达：折叠计数，换入新 LockID，旧 Job 待取消
	previousJobID := entry.CurrentJobID
	entry.HistoryFingerprint = fingerprint
	entry.LockID = now.UnixMilli()
	entry.ConsolidatedCount++
	entry.PreviousJobID = previousJobID
	entry.CurrentJobID = ""
	entry.UpdatedAt = now.Unix()
	if err := m.cache.Set(ctx, key, entry, m.ttl); err != nil {
		return nil, fmt.Errorf("update lock %s: %w", conversationID, err)
	}
	metrics.ConsolidationTotal.Inc()
	m.logger.Info("会话锁折叠更新",
		"conversation_id", conversationID,
		"consolidated_count", entry.ConsolidatedCount,
		"previous_job_id", previousJobID)

	return &Decision{
		Action:               ActionLockUpdated,
		ShouldCallAI:         true,
		ShouldCancelPrevious: previousJobID != "",
		PreviousJobID:        previousJobID,
		ConsolidatedCount:    entry.ConsolidatedCount,
		LockID:               entry.LockID,
	}, nil
}

// AttachJob 把新建的 Job 记到锁上，成为该会话当前唯一在途 Job
func (m *Manager) AttachJob(ctx context.Context, conversationID, jobID string) error {
	key := lockKey(conversationID)
	var entry Entry
	if err := m.cache.Get(ctx, key, &entry); err != nil {
		return fmt.Errorf("read lock %s: %w", conversationID, err)
	}
	entry.CurrentJobID = jobID
	entry.UpdatedAt = time.Now().Unix()
	if err := m.cache.Set(ctx, key, entry, m.ttl); err != nil {
		return fmt.Errorf("update lock %s: %w", conversationID, err)
	}
	return nil
}

// Get 获取会话锁条目，未加锁返回 ErrNotFound
func (m *Manager) Get(ctx context.Context, conversationID string) (*Entry, error) {
	var entry Entry
	if err := m.cache.Get(ctx, lockKey(conversationID), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Release 释放会话锁。完成回调与管理端强制解锁共用此路径，幂等。
func (m *Manager) Release(ctx context.Context, conversationID string) error {
	return m.cache.Delete(ctx, lockKey(conversationID))
}

// CleanupOld 清理超过最大年龄的孤儿锁，返回清理数量。
// maxAgeHours <= 0 时使用配置的默认年龄。
// 常规过期由 TTL 兜底，这里处理降级期间遗留的无 TTL 条目。
func (m *Manager) CleanupOld(ctx context.Context, maxAgeHours int) (int, error) {
	keys, err := m.cache.Keys(ctx, lockKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("scan locks: %w", err)
	}

	maxAge := m.maxAge
	if maxAgeHours > 0 {
		maxAge = time.Duration(maxAgeHours) * time.Hour
	}
	cutoff := time.Now().Add(-maxAge).Unix()
	removed := 0
	for _, key := range keys {
		var entry Entry
		if err := m.cache.Get(ctx, key, &entry); err != nil {
			continue
		}
		if entry.CreatedAt >= cutoff {
			continue
		}
		if err := m.cache.Delete(ctx, key); err != nil {
			m.logger.Warn("清理孤儿锁failed", "key", key, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("孤儿锁清理completed", "removed", removed)
	}
	return removed, nil
}
