package conversation

import (
	"context"
	"time"
)

// StoredMessage 持久化的单条会话消息
type StoredMessage struct {
	ID             string    `json:"id"`              // 消息唯一标识
	ConversationID string    `json:"conversation_id"` // 所属会话
	Role           string    `json:"role"`            // user | bot | sale
	Content        string    `json:"content"`         // 消息内容
	CreatedAt      time.Time `json:"created_at"`      // 写入时间
}

// BotConfig 机器人配置（AI 端点与平台回调信息）
type BotConfig struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	AIEndpoint      string `json:"ai_endpoint"`       // AI 服务端点
	AIAuthTokenKey  string `json:"ai_auth_token_key"` // secrets 中的令牌键名
	PlatformBaseURL string `json:"platform_base_url"` // 平台回调地址
	Active          bool   `json:"active"`
}

// Store 会话持久化存储接口
type Store interface {
	// GetHistory 获取会话的完整历史文本
	GetHistory(ctx context.Context, conversationID string) (string, error)
	// SaveHistory 保存会话的完整历史文本
	SaveHistory(ctx context.Context, conversationID, history string) error
	// SaveMessages 批量持久化结构化消息
	SaveMessages(ctx context.Context, messages []*StoredMessage) error
	// GetBotConfig 按 ID 获取机器人配置
	GetBotConfig(ctx context.Context, botID string) (*BotConfig, error)
	// Close 关闭存储连接
	Close() error
}
