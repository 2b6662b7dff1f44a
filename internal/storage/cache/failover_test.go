package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
)

// flakyStore 可手动切换故障状态的存储，用于演练降级路径
type flakyStore struct {
	*MemoryStore

	mu   sync.Mutex
	down bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: NewMemoryStore()}
}

func (s *flakyStore) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *flakyStore) isDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

func (s *flakyStore) Ping(ctx context.Context) error {
	if s.isDown() {
		return errors.New("connection refused")
	}
	return nil
}

func (s *flakyStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if s.isDown() {
		return errors.New("connection refused")
	}
	return s.MemoryStore.Set(ctx, key, value, expiration)
}

func (s *flakyStore) Get(ctx context.Context, key string, dest interface{}) error {
	if s.isDown() {
		return errors.New("connection refused")
	}
	return s.MemoryStore.Get(ctx, key, dest)
}

func TestManager_FallsBackWhenPrimaryFails(t *testing.T) {
	ctx := context.Background()
	primary := newFlakyStore()
	m := NewManager(primary, log.Nop(), time.Hour)
	defer m.Close()

	if !m.Healthy() {
		t.Fatal("manager should start healthy")
	}

	primary.setDown(true)
	if err := m.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set during outage: %v", err)
	}
	if m.Healthy() {
		t.Error("manager should be unhealthy after primary failure")
	}
	if m.Backend() != "fallback" {
		t.Errorf("Backend: got %q, want fallback", m.Backend())
	}

	// 故障期间写入的数据从回退存储可读
	var v string
	if err := m.Get(ctx, "k", &v); err != nil {
		t.Fatalf("Get during outage: %v", err)
	}
	if v != "v" {
		t.Errorf("Get: got %q", v)
	}
}

func TestManager_StartsOnFallbackWhenPrimaryUnreachable(t *testing.T) {
	ctx := context.Background()
	primary := newFlakyStore()
	primary.setDown(true)
	m := NewManager(primary, log.Nop(), time.Hour)
	defer m.Close()

	if m.Healthy() {
		t.Error("manager should start unhealthy when primary is down")
	}
	if err := m.Set(ctx, "k", 1, 0); err != nil {
		t.Fatalf("Set on fallback: %v", err)
	}
}

func TestManager_MemoryOnly(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, log.Nop(), 0)
	defer m.Close()

	if m.Healthy() {
		t.Error("manager without primary should report unhealthy")
	}
	if err := m.Set(ctx, "k", map[string]int{"a": 1}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got map[string]int
	if err := m.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["a"] != 1 {
		t.Errorf("Get: got %v", got)
	}
}
