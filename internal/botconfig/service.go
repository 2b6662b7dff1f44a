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

package botconfig

import (
	"context"

	"github.com/trieungoctam/chatbot-orchestrator/internal/storage/conversation"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/secrets"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/utils"
)

// Resolved 一次解析完成的机器人运行配置
type Resolved struct {
	Bot             *conversation.BotConfig
	AIEndpoint      string
	AIAuthToken     string
	PlatformBaseURL string
}

// Service 机器人配置解析：优先存储中的会话级配置，
// 存储不可用或未配置时退回进程内默认值，auth token 经 secrets store 解析
type Service struct {
	repo        conversation.Store
	secrets     secrets.Store
	aiDefaults  config.AIConfig
	platformURL string
	logger      *log.Logger
}

// NewService 创建配置解析服务；repo 可为 nil（纯默认值模式）
func NewService(repo conversation.Store, secretStore secrets.Store, aiCfg config.AIConfig, platformCfg config.PlatformConfig, logger *log.Logger) *Service {
	return &Service{
		repo:        repo,
		secrets:     secretStore,
		aiDefaults:  aiCfg,
		platformURL: platformCfg.BaseURL,
		logger:      logger,
	}
}

// Resolve 解析机器人配置。botID 为空或查不到时使用默认配置，从不报错。
func (s *Service) Resolve(ctx context.Context, botID string) *Resolved {
	resolved := &Resolved{
		AIEndpoint:      s.aiDefaults.Endpoint,
		PlatformBaseURL: s.platformURL,
	}
	tokenKey := s.aiDefaults.AuthTokenKey

	if botID != "" && s.repo != nil {
		bot, err := s.repo.GetBotConfig(ctx, botID)
		if err != nil {
			s.logger.Warn("机器人配置读取failed，使用默认配置", "bot_id", botID, "error", err)
		} else if bot.Active {
			resolved.Bot = bot
			resolved.AIEndpoint = utils.CoalesceString(bot.AIEndpoint, s.aiDefaults.Endpoint)
			resolved.PlatformBaseURL = utils.CoalesceString(bot.PlatformBaseURL, s.platformURL)
			tokenKey = utils.CoalesceString(bot.AIAuthTokenKey, s.aiDefaults.AuthTokenKey)
		}
	}

	if tokenKey != "" && s.secrets != nil {
		token, err := s.secrets.Get(ctx, tokenKey)
		if err != nil {
			s.logger.Warn("AI auth token 解析failed，调用不带认证", "key", tokenKey, "error", err)
		} else {
			resolved.AIAuthToken = token
		}
	}

	return resolved
}
