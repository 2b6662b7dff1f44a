package conversation

import (
	"context"
	"fmt"

	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
)

// NewStore 根据配置创建会话存储统一入口
func NewStore(ctx context.Context, cfg config.ConversationConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		return NewPgStore(ctx, cfg.DSN, cfg.PoolSize)
	default:
		return nil, fmt.Errorf("不支持的会话存储类型: %s", cfg.Type)
	}
}
