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

package conversation

import (
	"context"
	"fmt"
	"sync"

	pkgerrors "github.com/trieungoctam/chatbot-orchestrator/pkg/errors"
)

// MemoryStore 内存会话存储实现，供单实例部署与测试使用
type MemoryStore struct {
	mu       sync.RWMutex
	history  map[string]string
	messages map[string][]*StoredMessage
	bots     map[string]*BotConfig
}

// NewMemoryStore 创建新的内存会话存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		history:  make(map[string]string),
		messages: make(map[string][]*StoredMessage),
		bots:     make(map[string]*BotConfig),
	}
}

// GetHistory 获取会话历史文本，不存在返回空串
func (s *MemoryStore) GetHistory(ctx context.Context, conversationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[conversationID], nil
}

// SaveHistory 保存会话历史文本
func (s *MemoryStore) SaveHistory(ctx context.Context, conversationID, history string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[conversationID] = history
	return nil
}

// SaveMessages 批量持久化结构化消息
func (s *MemoryStore) SaveMessages(ctx context.Context, messages []*StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
	}
	return nil
}

// Messages 返回会话的结构化消息，测试用
func (s *MemoryStore) Messages(conversationID string) []*StoredMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*StoredMessage(nil), s.messages[conversationID]...)
}

// PutBotConfig 写入机器人配置，测试与引导用
func (s *MemoryStore) PutBotConfig(cfg *BotConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[cfg.ID] = cfg
}

// GetBotConfig 按 ID 获取机器人配置
func (s *MemoryStore) GetBotConfig(ctx context.Context, botID string) (*BotConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.bots[botID]
	if !ok {
		return nil, fmt.Errorf("bot config %s: %w", botID, pkgerrors.ErrNotFound)
	}
	return cfg, nil
}

// Close 关闭存储连接
func (s *MemoryStore) Close() error {
	return nil
}
