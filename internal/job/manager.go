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

package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trieungoctam/chatbot-orchestrator/internal/storage/cache"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
	pkgerrors "github.com/trieungoctam/chatbot-orchestrator/pkg/errors"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/metrics"
)

const jobKeyPrefix = "ai_job:"

const (
	defaultJobTTL       = time.Hour
	defaultConcurrency  = 4
	defaultQueueSize    = 64
	defaultHeartbeat    = 5 * time.Second
	defaultStartTimeout = 2 * time.Second
)

// RunJobFunc 执行单条 Job 的回调（由应用层注入，通常是 AI 调用）
type RunJobFunc func(ctx context.Context, j *Job) (*Result, error)

// CompletionFunc Job 成功完成后的回调（持久化、释放锁、平台通知）
type CompletionFunc func(ctx context.Context, j *Job)

// Manager 后台 Job 管理器：FIFO 队列 + 有界 worker 池，
// Job 记录写入共享缓存键空间，记录随 TTL 过期回收
type Manager struct {
	cache  cache.Store
	logger *log.Logger
	ttl    time.Duration

	runJob   RunJobFunc
	complete CompletionFunc

	queue        chan string
	concurrency  int
	heartbeat    time.Duration
	startTimeout time.Duration

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	busy     int
	lastBeat time.Time
}

// NewManager 创建 Job 管理器；runJob 经 SetRunJob 注入后再 Start
func NewManager(cacheStore cache.Store, jobCfg config.JobConfig, workerCfg config.WorkerConfig, logger *log.Logger) *Manager {
	ttl := defaultJobTTL
	if jobCfg.TTL != "" {
		if d, err := time.ParseDuration(jobCfg.TTL); err == nil && d > 0 {
			ttl = d
		}
	}
	concurrency := workerCfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	queueSize := workerCfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	heartbeat := defaultHeartbeat
	if workerCfg.Heartbeat != "" {
		if d, err := time.ParseDuration(workerCfg.Heartbeat); err == nil && d > 0 {
			heartbeat = d
		}
	}
	startTimeout := defaultStartTimeout
	if workerCfg.StartTimeout != "" {
		if d, err := time.ParseDuration(workerCfg.StartTimeout); err == nil && d > 0 {
			startTimeout = d
		}
	}

	return &Manager{
		cache:        cacheStore,
		logger:       logger,
		ttl:          ttl,
		queue:        make(chan string, queueSize),
		concurrency:  concurrency,
		heartbeat:    heartbeat,
		startTimeout: startTimeout,
	}
}

// SetRunJob 注入 Job 执行回调（可在启动前注入）
func (m *Manager) SetRunJob(fn RunJobFunc) {
	m.runJob = fn
}

// SetCompletion 注入完成回调（可选）
func (m *Manager) SetCompletion(fn CompletionFunc) {
	m.complete = fn
}

// jobKey Job 记录缓存键
func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

// save 写入 Job 记录，刷新 UpdatedAt 与 TTL
func (m *Manager) save(ctx context.Context, j *Job) error {
	j.UpdatedAt = time.Now().Unix()
	if err := m.cache.Set(ctx, jobKey(j.ID), j, m.ttl); err != nil {
		return fmt.Errorf("write job %s: %w", j.ID, err)
	}
	return nil
}

// Create 新建 PENDING Job 记录，不入队。
// 调用方在把 job_id 挂到会话锁之后再 Enqueue，
// 否则内联执行可能在锁引用本 Job 之前就完成。
func (m *Manager) Create(ctx context.Context, payload *Payload) (*Job, error) {
	if payload == nil {
		return nil, fmt.Errorf("job payload: %w", pkgerrors.ErrInvalidArg)
	}

	j := &Job{
		ID:             uuid.NewString(),
		ConversationID: payload.ConversationID,
		Status:         StatusPending,
		Payload:        payload,
		CreatedAt:      time.Now().Unix(),
	}
	if err := m.save(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Enqueue 把已创建的 Job 投入执行队列
func (m *Manager) Enqueue(ctx context.Context, jobID string) {
	m.enqueue(ctx, jobID)
}

// GetStatus 查询 Job 记录，过期或不存在返回 ErrNotFound
func (m *Manager) GetStatus(ctx context.Context, jobID string) (*Job, error) {
	var j Job
	if err := m.cache.Get(ctx, jobKey(jobID), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Cancel 取消 Job。仅 PENDING/PROCESSING 可取消；
// 已发出的网络调用不会被打断，其结果因状态已终结而被丢弃。
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	j, err := m.GetStatus(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return fmt.Errorf("job %s already %s: %w", jobID, j.Status, pkgerrors.ErrTerminal)
	}
	j.Status = StatusCancelled
	if err := m.save(ctx, j); err != nil {
		return err
	}
	metrics.JobTotal.WithLabelValues(string(StatusCancelled)).Inc()
	m.logger.Info("Job 已取消", "job_id", jobID)
	return nil
}

// enqueue 入队并自愈：池未运行则重启，无法确认健康时内联同步执行，
// 保证入队不会静默丢任务
func (m *Manager) enqueue(ctx context.Context, jobID string) {
	if !m.Healthy() {
		m.logger.Warn("worker 池未运行，尝试重启", "job_id", jobID)
		m.Start()
		if !m.waitHealthy(m.startTimeout) {
			m.logger.Error("worker 池重启未确认，内联执行", "job_id", jobID)
			m.process(ctx, jobID)
			return
		}
	}

	select {
	case m.queue <- jobID:
		metrics.QueueDepth.Set(float64(len(m.queue)))
	default:
		// 队列已满时同样退化为内联执行
		m.logger.Warn("Job 队列已满，内联执行", "job_id", jobID)
		m.process(ctx, jobID)
	}
}

// Healthy worker 池是否在运行且心跳新鲜
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	return time.Since(m.lastBeat) < 3*m.heartbeat
}

// waitHealthy 等待池健康确认，超时返回 false
func (m *Manager) waitHealthy(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.Healthy() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return m.Healthy()
}

// WorkerStatus worker 池运行状态快照
type WorkerStatus struct {
	Running       bool  `json:"running"`
	Workers       int   `json:"workers"`
	Busy          int   `json:"busy"`
	QueueDepth    int   `json:"queue_depth"`
	LastHeartbeat int64 `json:"last_heartbeat"` // Unix 秒，0 表示尚无心跳
}

// Status 返回 worker 池状态
func (m *Manager) Status() WorkerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := WorkerStatus{
		Running:    m.running,
		Workers:    m.concurrency,
		Busy:       m.busy,
		QueueDepth: len(m.queue),
	}
	if !m.lastBeat.IsZero() {
		st.LastHeartbeat = m.lastBeat.Unix()
	}
	return st
}
