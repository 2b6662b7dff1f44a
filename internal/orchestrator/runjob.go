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
	"time"

	"github.com/trieungoctam/chatbot-orchestrator/internal/ai"
	"github.com/trieungoctam/chatbot-orchestrator/internal/history"
	"github.com/trieungoctam/chatbot-orchestrator/internal/job"
	"github.com/trieungoctam/chatbot-orchestrator/internal/storage/conversation"
	pkgerrors "github.com/trieungoctam/chatbot-orchestrator/pkg/errors"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/tracing"
)

// clientFor 按端点+令牌复用 AI 客户端，限流器随客户端共享
func (o *Orchestrator) clientFor(endpoint, token string) *ai.Client {
	key := endpoint + "\x00" + token
	o.clientMu.Lock()
	defer o.clientMu.Unlock()
	if c, ok := o.aiClients[key]; ok {
		return c
	}
	cfg := o.aiCfg
	cfg.Endpoint = endpoint
	c := ai.NewClient(cfg, token, o.logger)
	o.aiClients[key] = c
	return c
}

// runJob worker 执行回调：解析机器人配置，调用外部 AI 服务
func (o *Orchestrator) runJob(ctx context.Context, j *job.Job) (*job.Result, error) {
	ctx, span := tracing.StartJobSpan(ctx, j.ID, j.ConversationID)
	defer span.End()

	var botID string
	if j.Payload != nil {
		botID = j.Payload.BotID
	}
	resolved := o.bots.Resolve(ctx, botID)
	client := o.clientFor(resolved.AIEndpoint, resolved.AIAuthToken)

	var messages []history.Message
	if j.Payload != nil {
		messages = j.Payload.Messages
	}
	return client.Process(ctx, j.ConversationID, messages)
}

// onJobComplete 完成回调：持久化终态历史与消息，释放锁，回投平台。
// 锁已不再引用本 Job 时（内容折叠进了新 Job）结果作废，什么都不做。
func (o *Orchestrator) onJobComplete(ctx context.Context, j *job.Job) {
	entry, err := o.locks.Get(ctx, j.ConversationID)
	if err != nil {
		if !pkgerrors.Is(err, pkgerrors.ErrNotFound) {
			o.logger.Warn("完成回调读锁failed", "conversation_id", j.ConversationID, "error", err)
		}
		return
	}
	if entry.CurrentJobID != j.ID {
		o.logger.Info("过期 Job 完成，忽略",
			"conversation_id", j.ConversationID,
			"job_id", j.ID,
			"current_job_id", entry.CurrentJobID)
		return
	}

	if o.repo != nil && j.Payload != nil {
		if err := o.repo.SaveHistory(ctx, j.ConversationID, j.Payload.History); err != nil {
			o.logger.Warn("历史持久化failed", "conversation_id", j.ConversationID, "error", err)
		}
		if err := o.repo.SaveMessages(ctx, storedMessages(j)); err != nil {
			o.logger.Warn("消息持久化failed", "conversation_id", j.ConversationID, "error", err)
		}
	}

	if err := o.locks.Release(ctx, j.ConversationID); err != nil {
		o.logger.Warn("完成后释放锁failed", "conversation_id", j.ConversationID, "error", err)
	}

	if o.notifier != nil && j.Result != nil {
		if err := o.notifier.Notify(ctx, j.ConversationID, j.Result); err != nil {
			o.logger.Warn("平台通知failed", "conversation_id", j.ConversationID, "error", err)
		}
	}

	o.logger.Info("Job 处理completed",
		"conversation_id", j.ConversationID,
		"job_id", j.ID,
		"action", ActionProcessingCompleted)
}

// storedMessages 把 Job 载荷消息与 AI 回复转为持久化记录
func storedMessages(j *job.Job) []*conversation.StoredMessage {
	var out []*conversation.StoredMessage
	for _, m := range j.Payload.Messages {
		out = append(out, &conversation.StoredMessage{
			ConversationID: j.ConversationID,
			Role:           m.Role,
			Content:        m.Content,
			CreatedAt:      m.Timestamp,
		})
	}
	if j.Result != nil && j.Result.ResponseText != "" {
		out = append(out, &conversation.StoredMessage{
			ConversationID: j.ConversationID,
			Role:           history.RoleBot,
			Content:        j.Result.ResponseText,
			CreatedAt:      time.Now(),
		})
	}
	return out
}
