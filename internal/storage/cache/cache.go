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

package cache

import (
	"fmt"
	"time"

	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
)

// NewCache 根据配置创建带降级的缓存管理器统一入口
func NewCache(cfg config.CacheConfig, logger *log.Logger) (*Manager, error) {
	var probe time.Duration
	if cfg.ProbeInterval != "" {
		d, err := time.ParseDuration(cfg.ProbeInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid probe_interval %s: %w", cfg.ProbeInterval, err)
		}
		probe = d
	}

	switch cfg.Type {
	case "", "memory":
		return NewManager(nil, logger, probe), nil
	case "redis":
		return NewManager(NewRedisStore(cfg), logger, probe), nil
	default:
		return nil, fmt.Errorf("不支持的缓存类型: %s", cfg.Type)
	}
}
