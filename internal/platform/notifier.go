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

package platform

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/trieungoctam/chatbot-orchestrator/internal/job"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
)

// Notifier 平台通知客户端：Job 完成后把 AI 结果回投给消息平台
type Notifier struct {
	baseURL   string
	authToken string
	client    *resty.Client
	logger    *log.Logger
}

// NewNotifier 创建平台通知客户端；baseURL 为空时 Notify 为 no-op
func NewNotifier(cfg config.PlatformConfig, logger *log.Logger) *Notifier {
	timeout := 10 * time.Second
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)

	return &Notifier{
		baseURL:   cfg.BaseURL,
		authToken: cfg.AuthToken,
		client:    client,
		logger:    logger,
	}
}

// Notify 回投 AI 处理结果。通知失败只记日志，不影响 Job 终态。
func (n *Notifier) Notify(ctx context.Context, conversationID string, result *job.Result) error {
	if n.baseURL == "" {
		return nil
	}

	body := map[string]interface{}{
		"conversation_id": conversationID,
		"response_text":   result.ResponseText,
		"intent":          result.Intent,
		"actions":         result.Actions,
	}

	req := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if n.authToken != "" {
		req.SetHeader("Authorization", "Bearer "+n.authToken)
	}

	resp, err := req.Post(n.baseURL + "/api/v1/conversations/" + conversationID + "/reply")
	if err != nil {
		return fmt.Errorf("平台通知failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusAccepted {
		return fmt.Errorf("平台通知返回错误状态 %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
