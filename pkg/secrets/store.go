// Copyright 2026 trieungoctam
// Secret management abstraction

package secrets

import (
	"context"
)

// Store Secret 存储接口（AI auth token 等凭据的解析来源）
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除 secret
	Delete(ctx context.Context, key string) error
}

// Config Secret Store 配置
type Config struct {
	Provider string      // vault | env | memory
	Vault    VaultConfig // Provider=vault 时使用
}

// NewStore 创建 Secret Store；provider 未知时回退 env
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "memory":
		return NewMemoryStore(), nil
	case "vault":
		return NewVaultStore(config.Vault)
	default:
		return NewEnvStore(), nil
	}
}
