package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trieungoctam/chatbot-orchestrator/internal/storage/cache"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
	pkgerrors "github.com/trieungoctam/chatbot-orchestrator/pkg/errors"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
)

func newTestJobManager(t *testing.T, workerCfg config.WorkerConfig) *Manager {
	t.Helper()
	m := NewManager(cache.NewMemoryStore(), config.JobConfig{}, workerCfg, log.Nop())
	t.Cleanup(m.Stop)
	return m
}

// submit 建记录并入队，生产路径中两步之间还有挂锁动作
func submit(t *testing.T, m *Manager, payload *Payload) *Job {
	t.Helper()
	j, err := m.Create(context.Background(), payload)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.Enqueue(context.Background(), j.ID)
	return j
}

// waitStatus 轮询直到 Job 到达期望状态
func waitStatus(t *testing.T, m *Manager, jobID string, want Status) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := m.GetStatus(context.Background(), jobID)
		if err == nil && j.Status == want {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	j, err := m.GetStatus(context.Background(), jobID)
	t.Fatalf("job %s did not reach %s: job=%+v err=%v", jobID, want, j, err)
	return nil
}

func TestManager_CreateAndComplete(t *testing.T) {
	ctx := context.Background()
	m := newTestJobManager(t, config.WorkerConfig{Concurrency: 2})
	m.SetRunJob(func(ctx context.Context, j *Job) (*Result, error) {
		return &Result{ResponseText: "hello", Intent: "greeting"}, nil
	})

	done := make(chan string, 1)
	m.SetCompletion(func(ctx context.Context, j *Job) {
		done <- j.ID
	})
	m.Start()

	j, err := m.Create(ctx, &Payload{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Create 只建记录，入队前保持 PENDING
	if j.Status != StatusPending {
		t.Errorf("status before enqueue: %s", j.Status)
	}
	m.Enqueue(ctx, j.ID)

	select {
	case id := <-done:
		if id != j.ID {
			t.Errorf("completion for %s, want %s", id, j.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback not invoked")
	}

	got := waitStatus(t, m, j.ID, StatusCompleted)
	if got.Result == nil || got.Result.ResponseText != "hello" {
		t.Errorf("result: %+v", got.Result)
	}
}

func TestManager_FailedJobRecordsError(t *testing.T) {
	m := newTestJobManager(t, config.WorkerConfig{Concurrency: 1})
	m.SetRunJob(func(ctx context.Context, j *Job) (*Result, error) {
		return nil, errors.New("ai timeout")
	})
	m.Start()

	j := submit(t, m, &Payload{ConversationID: "conv-1"})
	got := waitStatus(t, m, j.ID, StatusFailed)
	if got.Error != "ai timeout" {
		t.Errorf("error field: %q", got.Error)
	}
}

func TestManager_CancelBeforePickup(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	var runs atomic.Int32

	m := newTestJobManager(t, config.WorkerConfig{Concurrency: 1, QueueSize: 8})
	m.SetRunJob(func(ctx context.Context, j *Job) (*Result, error) {
		runs.Add(1)
		if j.Payload != nil && j.Payload.BotID == "block" {
			<-gate
		}
		return &Result{}, nil
	})
	m.Start()

	// 占住唯一 worker
	blocker := submit(t, m, &Payload{ConversationID: "conv-0", BotID: "block"})
	waitStatus(t, m, blocker.ID, StatusProcessing)

	queued := submit(t, m, &Payload{ConversationID: "conv-1"})
	if err := m.Cancel(ctx, queued.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	close(gate)
	waitStatus(t, m, blocker.ID, StatusCompleted)

	// 已取消的 Job 不被执行，状态保持 CANCELLED
	time.Sleep(50 * time.Millisecond)
	got, err := m.GetStatus(ctx, queued.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status: %s, want cancelled", got.Status)
	}
	if runs.Load() != 1 {
		t.Errorf("runJob invoked %d times, want 1", runs.Load())
	}
}

func TestManager_CancelTerminalJobFails(t *testing.T) {
	ctx := context.Background()
	m := newTestJobManager(t, config.WorkerConfig{Concurrency: 1})
	m.SetRunJob(func(ctx context.Context, j *Job) (*Result, error) {
		return &Result{}, nil
	})
	m.Start()

	j := submit(t, m, &Payload{ConversationID: "conv-1"})
	waitStatus(t, m, j.ID, StatusCompleted)

	if err := m.Cancel(ctx, j.ID); !pkgerrors.Is(err, pkgerrors.ErrTerminal) {
		t.Errorf("Cancel terminal: want ErrTerminal, got %v", err)
	}
}

func TestManager_QueueFullRunsInline(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	defer close(gate)

	m := newTestJobManager(t, config.WorkerConfig{Concurrency: 1, QueueSize: 1})
	m.SetRunJob(func(ctx context.Context, j *Job) (*Result, error) {
		if j.Payload != nil && j.Payload.BotID == "block" {
			<-gate
		}
		return &Result{ResponseText: "inline"}, nil
	})
	m.Start()

	blocker := submit(t, m, &Payload{ConversationID: "conv-0", BotID: "block"})
	waitStatus(t, m, blocker.ID, StatusProcessing)

	submit(t, m, &Payload{ConversationID: "conv-1", BotID: "block"})

	// worker 被占、队列已满，入队退化为内联执行，Enqueue 返回时已完成
	inline := submit(t, m, &Payload{ConversationID: "conv-2"})
	got, err := m.GetStatus(ctx, inline.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("inline job status: %s, want completed", got.Status)
	}
}

func TestManager_EnqueueRestartsStoppedPool(t *testing.T) {
	m := newTestJobManager(t, config.WorkerConfig{Concurrency: 1, QueueSize: 8})
	m.SetRunJob(func(ctx context.Context, j *Job) (*Result, error) {
		return &Result{ResponseText: "revived"}, nil
	})
	m.Start()
	m.Stop()
	if m.Healthy() {
		t.Fatal("pool should be down after Stop")
	}

	// 池已停时入队自愈：重启池（或退化内联），任务不丢
	j := submit(t, m, &Payload{ConversationID: "conv-1"})
	got := waitStatus(t, m, j.ID, StatusCompleted)
	if got.Result == nil || got.Result.ResponseText != "revived" {
		t.Errorf("result: %+v", got.Result)
	}
	if !m.Healthy() {
		t.Error("pool should be running again after self-healing enqueue")
	}
}

func TestManager_ExpiredJobRecordAbsent(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	m := NewManager(store, config.JobConfig{TTL: "1s"}, config.WorkerConfig{}, log.Nop())

	j, err := m.Create(ctx, &Payload{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.GetStatus(ctx, j.ID); err != nil {
		t.Fatalf("GetStatus before expiry: %v", err)
	}

	// 过期判定秒级粒度，多等一秒保证越过边界
	time.Sleep(2100 * time.Millisecond)
	if _, err := m.GetStatus(ctx, j.ID); !pkgerrors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("expired job: want ErrNotFound, got %v", err)
	}
}
