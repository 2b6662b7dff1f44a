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
	"time"

	"github.com/trieungoctam/chatbot-orchestrator/pkg/metrics"
)

// Start 启动 worker 池与心跳循环，幂等
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.lastBeat = time.Now()
	stopCh := m.stopCh
	m.mu.Unlock()

	for i := 0; i < m.concurrency; i++ {
		m.wg.Add(1)
		go m.workerLoop(stopCh)
	}

	m.wg.Add(1)
	go m.heartbeatLoop(stopCh)

	m.logger.Info("worker 池已启动", "concurrency", m.concurrency, "queue_size", cap(m.queue))
}

// Stop 优雅退出：关闭 stopCh，等待后台 goroutine 结束
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("worker 池已停止")
}

// workerLoop 从 FIFO 队列拉取 Job 执行
func (m *Manager) workerLoop(stopCh chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			return
		case jobID := <-m.queue:
			metrics.QueueDepth.Set(float64(len(m.queue)))
			m.setBusy(1)
			m.process(context.Background(), jobID)
			m.setBusy(-1)
		}
	}
}

// heartbeatLoop 周期刷新心跳，Enqueue 以此判断池是否健康
func (m *Manager) heartbeatLoop(stopCh chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			m.lastBeat = time.Now()
			m.mu.Unlock()
		}
	}
}

func (m *Manager) setBusy(delta int) {
	m.mu.Lock()
	m.busy += delta
	busy := m.busy
	m.mu.Unlock()
	metrics.WorkerBusy.Set(float64(busy))
}

// process 执行单条 Job：PENDING → PROCESSING → 终态。
// 执行前后都复查状态，取消可发生在排队期间或执行期间，
// 已取消 Job 的结果一律丢弃。AI 异常记入 error 字段，从不向上抛。
func (m *Manager) process(ctx context.Context, jobID string) {
	j, err := m.GetStatus(ctx, jobID)
	if err != nil {
		m.logger.Warn("Job 记录不可读，跳过", "job_id", jobID, "error", err)
		return
	}
	if j.Status != StatusPending {
		// 排队期间被取消（或重复投递），不执行
		m.logger.Info("Job 非 PENDING，跳过执行", "job_id", jobID, "status", j.Status)
		return
	}

	j.Status = StatusProcessing
	if err := m.save(ctx, j); err != nil {
		m.logger.Error("Job 状态更新failed", "job_id", jobID, "error", err)
		return
	}

	start := time.Now()
	result, runErr := m.runJob(ctx, j)
	metrics.JobDuration.Observe(time.Since(start).Seconds())

	// 执行期间可能被取消，取消后的结果丢弃
	current, err := m.GetStatus(ctx, jobID)
	if err == nil && current.Status == StatusCancelled {
		m.logger.Info("Job 执行期间被取消，丢弃结果", "job_id", jobID)
		return
	}

	if runErr != nil {
		j.Status = StatusFailed
		j.Error = runErr.Error()
		if err := m.save(ctx, j); err != nil {
			m.logger.Error("Job 失败状态写入failed", "job_id", jobID, "error", err)
		}
		metrics.JobTotal.WithLabelValues(string(StatusFailed)).Inc()
		m.logger.Error("Job 执行failed", "job_id", jobID, "error", runErr)
		return
	}

	j.Status = StatusCompleted
	j.Result = result
	if err := m.save(ctx, j); err != nil {
		m.logger.Error("Job 完成状态写入failed", "job_id", jobID, "error", err)
		return
	}
	metrics.JobTotal.WithLabelValues(string(StatusCompleted)).Inc()

	if m.complete != nil {
		m.complete(ctx, j)
	}
}
