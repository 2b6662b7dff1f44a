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

package history

import (
	"context"
	"strings"
	"time"

	"github.com/trieungoctam/chatbot-orchestrator/internal/storage/cache"
	"github.com/trieungoctam/chatbot-orchestrator/internal/storage/conversation"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
)

const snapshotKeyPrefix = "processed_history:"

const (
	defaultMaxMessages = 50
	defaultMaxChars    = 10000
	defaultSnapshotTTL = time.Hour
)

// snapshot 上次成功处理的历史快照，仅用于计算下一次增量
type snapshot struct {
	History       string `json:"history"`
	ProcessedAt   int64  `json:"processed_at"`
	HistoryLength int    `json:"history_length"`
}

// Batch 一次处理产出的新消息批
type Batch struct {
	Messages    []Message // 有序、有界的新消息
	Fingerprint string    // 当前完整历史的指纹
	Incremental bool      // 是否走了增量路径
}

// Processor 历史增量处理器：对比快照取增量后缀，解析并按上限裁剪
type Processor struct {
	cache       cache.Store
	repo        conversation.Store
	logger      *log.Logger
	maxMessages int
	maxChars    int
	snapshotTTL time.Duration
}

// NewProcessor 创建历史处理器；repo 可为 nil（无持久化回源）
func NewProcessor(cacheStore cache.Store, repo conversation.Store, cfg config.HistoryConfig, logger *log.Logger) *Processor {
	maxMessages := cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	snapshotTTL := defaultSnapshotTTL
	if cfg.SnapshotTTL != "" {
		if d, err := time.ParseDuration(cfg.SnapshotTTL); err == nil && d > 0 {
			snapshotTTL = d
		}
	}
	return &Processor{
		cache:       cacheStore,
		repo:        repo,
		logger:      logger,
		maxMessages: maxMessages,
		maxChars:    maxChars,
		snapshotTTL: snapshotTTL,
	}
}

// snapshotKey 快照缓存键
func snapshotKey(conversationID string) string {
	return snapshotKeyPrefix + conversationID
}

// previousHistory 取上次处理的历史：缓存优先，其次持久化存储，都没有则为空
func (p *Processor) previousHistory(ctx context.Context, conversationID string) string {
	var snap snapshot
	if err := p.cache.Get(ctx, snapshotKey(conversationID), &snap); err == nil {
		return snap.History
	}
	if p.repo != nil {
		prev, err := p.repo.GetHistory(ctx, conversationID)
		if err != nil {
			p.logger.Warn("读取持久化历史failed，按全量处理", "conversation_id", conversationID, "error", err)
			return ""
		}
		return prev
	}
	return ""
}

// Process 计算会话的新消息批并更新快照。
// 上次历史是当前文本的字面前缀时走增量路径，否则整段按新内容处理。
func (p *Processor) Process(ctx context.Context, conversationID, current string) (*Batch, error) {
	batch := &Batch{Fingerprint: Fingerprint(current)}

	previous := p.previousHistory(ctx, conversationID)

	delta := current
	if previous != "" && strings.HasPrefix(current, previous) {
		delta = current[len(previous):]
		batch.Incremental = true
	}

	if strings.TrimSpace(delta) != "" {
		messages := ParseMessages(delta)
		if len(messages) == 0 {
			// 无法按标签解析时降级为单条伪消息，不报错
			content := Truncate(strings.TrimSpace(delta), p.maxChars)
			messages = []Message{{
				Role:      RoleUser,
				Content:   content,
				Timestamp: time.Now(),
			}}
		}
		batch.Messages = Chunk(messages, p.maxMessages, p.maxChars)
	}

	snap := snapshot{
		History:       current,
		ProcessedAt:   time.Now().Unix(),
		HistoryLength: len(current),
	}
	if err := p.cache.Set(ctx, snapshotKey(conversationID), snap, p.snapshotTTL); err != nil {
		// 快照写入失败只影响下次增量效率，不影响本次结果
		p.logger.Warn("写入历史快照failed", "conversation_id", conversationID, "error", err)
	}

	return batch, nil
}
