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

package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/trieungoctam/chatbot-orchestrator/internal/history"
	"github.com/trieungoctam/chatbot-orchestrator/internal/job"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/metrics"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/tracing"
)

// Client 外部 AI 处理服务客户端
type Client struct {
	endpoint  string
	authToken string
	client    *resty.Client
	limiter   *rate.Limiter
	logger    *log.Logger
}

// NewClient 创建 AI 客户端；authToken 为空则不带认证头
func NewClient(cfg config.AIConfig, authToken string, logger *log.Logger) *Client {
	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	retryCount := cfg.RetryCount
	if retryCount < 0 {
		retryCount = 0
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(retryCount)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(5 * time.Second)

	var limiter *rate.Limiter
	if cfg.QPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), burst)
	}

	return &Client{
		endpoint:  cfg.Endpoint,
		authToken: authToken,
		client:    client,
		limiter:   limiter,
		logger:    logger,
	}
}

// Endpoint 返回客户端目标端点
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Process 把消息批发给 AI 服务处理并返回结构化结果
func (c *Client) Process(ctx context.Context, conversationID string, messages []history.Message) (*job.Result, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("AI endpoint 未配置")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("AI 限流等待: %w", err)
		}
	}

	ctx, span := tracing.StartAICallSpan(ctx, c.endpoint)
	defer span.End()

	reqMessages := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		// bot/sale 侧消息统一作为 assistant 发给 AI 服务
		role := "assistant"
		if m.Role == history.RoleUser {
			role = "user"
		}
		reqMessages = append(reqMessages, map[string]string{
			"role":    role,
			"content": m.Content,
		})
	}
	request := map[string]interface{}{
		"conversation_id": conversationID,
		"messages":        reqMessages,
	}

	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request)
	if c.authToken != "" {
		req.SetHeader("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	response, err := req.Post(c.endpoint)
	metrics.AICallDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("调用 AI 服务failed: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("AI 服务返回错误状态 %d: %s", response.StatusCode(), response.String())
	}

	var result job.Result
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, fmt.Errorf("解析 AI 响应failed: %w", err)
	}
	return &result, nil
}
