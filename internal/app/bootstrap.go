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

package app

import (
	"context"
	"fmt"

	"github.com/trieungoctam/chatbot-orchestrator/internal/storage/cache"
	"github.com/trieungoctam/chatbot-orchestrator/internal/storage/conversation"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/secrets"
)

// Bootstrap 统一初始化：日志、缓存、会话存储与 secrets，供 cmd 层复用
type Bootstrap struct {
	Config  *config.Config
	Logger  *log.Logger
	Cache   *cache.Manager
	Repo    conversation.Store
	Secrets secrets.Store
}

// NewBootstrap 根据配置创建 Bootstrap
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}

	var cacheCfg config.CacheConfig
	var convCfg config.ConversationConfig
	var secretsCfg config.SecretsConfig
	if cfg != nil {
		cacheCfg = cfg.Cache
		convCfg = cfg.Conversation
		secretsCfg = cfg.Secrets
	}

	cacheManager, err := cache.NewCache(cacheCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存failed: %w", err)
	}

	repo, err := conversation.NewStore(context.Background(), convCfg)
	if err != nil {
		// 持久化不可用不致命：历史回源与完成持久化降级为 no-op
		logger.Warn("初始化会话存储failed，使用内存存储", "error", err)
		repo = conversation.NewMemoryStore()
	}

	secretStore, err := secrets.NewStore(secrets.Config{
		Provider: secretsCfg.Provider,
		Vault: secrets.VaultConfig{
			Address:    secretsCfg.Vault.Address,
			Token:      secretsCfg.Vault.Token,
			PathPrefix: secretsCfg.Vault.PathPrefix,
		},
	})
	if err != nil {
		logger.Warn("初始化 secret store failed，使用环境变量", "error", err)
		secretStore = secrets.NewEnvStore()
	}

	return &Bootstrap{
		Config:  cfg,
		Logger:  logger,
		Cache:   cacheManager,
		Repo:    repo,
		Secrets: secretStore,
	}, nil
}

// Close 释放 Bootstrap 持有的连接
func (b *Bootstrap) Close() {
	if b.Repo != nil {
		_ = b.Repo.Close()
	}
	if b.Cache != nil {
		_ = b.Cache.Close()
	}
}
