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
	"context"
	"sync"
	"time"

	pkgerrors "github.com/trieungoctam/chatbot-orchestrator/pkg/errors"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/metrics"
)

// isConnError 区分后端故障与正常的未命中
func isConnError(err error) bool {
	return err != nil && !pkgerrors.Is(err, pkgerrors.ErrNotFound)
}

// Prober 支持连通性探测的存储
type Prober interface {
	Ping(ctx context.Context) error
}

// Manager 带降级的缓存管理器：主存储不可用时切换到内存回退，
// 并按固定间隔重试主存储。两边键空间独立，切换期间写入回退存储的
// 数据不会回迁，依赖 TTL 自然过期。
type Manager struct {
	primary  Store
	fallback Store
	logger   *log.Logger

	mu      sync.RWMutex
	healthy bool

	probeInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewManager 创建缓存管理器。primary 为 nil 时直接使用回退存储。
func NewManager(primary Store, logger *log.Logger, probeInterval time.Duration) *Manager {
	if probeInterval <= 0 {
		probeInterval = 30 * time.Second
	}

	m := &Manager{
		primary:       primary,
		fallback:      NewMemoryStore(),
		logger:        logger,
		healthy:       primary != nil,
		probeInterval: probeInterval,
		stopCh:        make(chan struct{}),
	}

	if primary != nil {
		if prober, ok := primary.(Prober); ok {
			// 启动时先探测一次，Redis 未就绪则直接从回退存储开始
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := prober.Ping(ctx); err != nil {
				m.healthy = false
				metrics.CacheFallbackTotal.Inc()
				logger.Warn("缓存主存储启动探测failed，先使用内存回退存储", "error", err)
			}
			cancel()

			m.wg.Add(1)
			go m.probeLoop()
		}
	} else {
		logger.Warn("缓存主存储未配置，使用内存回退存储")
	}

	return m
}

// Healthy 返回主存储当前是否可用
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy
}

// Backend 返回当前生效的后端名称
func (m *Manager) Backend() string {
	if m.Healthy() {
		return "primary"
	}
	return "fallback"
}

// active 返回当前生效的存储
func (m *Manager) active() Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.healthy {
		return m.primary
	}
	return m.fallback
}

// markUnhealthy 标记主存储不可用，只在状态翻转时记日志
func (m *Manager) markUnhealthy(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.healthy {
		return
	}
	m.healthy = false
	metrics.CacheFallbackTotal.Inc()
	m.logger.Error("缓存主存储不可用，切换到内存回退存储", "error", err)
}

// markHealthy 标记主存储恢复
func (m *Manager) markHealthy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.healthy {
		return
	}
	m.healthy = true
	m.logger.Info("缓存主存储恢复，切回主存储")
}

// probeLoop 按间隔探测主存储，恢复后切回
func (m *Manager) probeLoop() {
	defer m.wg.Done()

	prober := m.primary.(Prober)
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.Healthy() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := prober.Ping(ctx)
			cancel()
			if err == nil {
				m.markHealthy()
			}
		}
	}
}

// Set 设置缓存
func (m *Manager) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	store := m.active()
	err := store.Set(ctx, key, value, expiration)
	if err != nil && store == m.primary {
		m.markUnhealthy(err)
		return m.fallback.Set(ctx, key, value, expiration)
	}
	return err
}

// Get 获取缓存
func (m *Manager) Get(ctx context.Context, key string, dest interface{}) error {
	store := m.active()
	err := store.Get(ctx, key, dest)
	if err != nil && store == m.primary && isConnError(err) {
		m.markUnhealthy(err)
		return m.fallback.Get(ctx, key, dest)
	}
	return err
}

// Delete 删除缓存
func (m *Manager) Delete(ctx context.Context, key string) error {
	store := m.active()
	err := store.Delete(ctx, key)
	if err != nil && store == m.primary {
		m.markUnhealthy(err)
		return m.fallback.Delete(ctx, key)
	}
	return err
}

// Exists 检查缓存是否存在
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	store := m.active()
	ok, err := store.Exists(ctx, key)
	if err != nil && store == m.primary {
		m.markUnhealthy(err)
		return m.fallback.Exists(ctx, key)
	}
	return ok, err
}

// Keys 按模式列出缓存键
func (m *Manager) Keys(ctx context.Context, pattern string) ([]string, error) {
	store := m.active()
	keys, err := store.Keys(ctx, pattern)
	if err != nil && store == m.primary {
		m.markUnhealthy(err)
		return m.fallback.Keys(ctx, pattern)
	}
	return keys, err
}

// Close 关闭缓存连接
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	_ = m.fallback.Close()
	if m.primary != nil {
		return m.primary.Close()
	}
	return nil
}
