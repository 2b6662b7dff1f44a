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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgerrors "github.com/trieungoctam/chatbot-orchestrator/pkg/errors"
)

// PgStore PostgreSQL 会话存储实现，API 与 Worker 共享同一库
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 创建基于 PostgreSQL 的会话存储；dsn 为连接串
func NewPgStore(ctx context.Context, dsn string, poolSize int) (*PgStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if poolSize > 0 {
		config.MaxConns = int32(poolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &PgStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// ensureSchema 建表，幂等
func (s *PgStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			history TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS bot_configs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			ai_endpoint TEXT NOT NULL DEFAULT '',
			ai_auth_token_key TEXT NOT NULL DEFAULT '',
			platform_base_url TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// GetHistory 获取会话历史文本，不存在返回空串
func (s *PgStore) GetHistory(ctx context.Context, conversationID string) (string, error) {
	var history string
	err := s.pool.QueryRow(ctx,
		`SELECT history FROM conversations WHERE id = $1`, conversationID).Scan(&history)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return history, nil
}

// SaveHistory 保存会话历史文本，upsert
func (s *PgStore) SaveHistory(ctx context.Context, conversationID, history string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, history, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET history = EXCLUDED.history, updated_at = now()`,
		conversationID, history)
	return err
}

// SaveMessages 批量持久化结构化消息
func (s *PgStore) SaveMessages(ctx context.Context, messages []*StoredMessage) error {
	if len(messages) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range messages {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		batch.Queue(
			`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
			id, m.ConversationID, m.Role, m.Content, createdAt)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range messages {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save messages: %w", err)
		}
	}
	return nil
}

// GetBotConfig 按 ID 获取机器人配置
func (s *PgStore) GetBotConfig(ctx context.Context, botID string) (*BotConfig, error) {
	var cfg BotConfig
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, ai_endpoint, ai_auth_token_key, platform_base_url, active
		 FROM bot_configs WHERE id = $1`, botID).
		Scan(&cfg.ID, &cfg.Name, &cfg.AIEndpoint, &cfg.AIAuthTokenKey, &cfg.PlatformBaseURL, &cfg.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bot config %s: %w", botID, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &cfg, nil
}

// Close 关闭连接池
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
