package cache

import (
	"context"
	"testing"
	"time"

	pkgerrors "github.com/trieungoctam/chatbot-orchestrator/pkg/errors"
)

func TestMemoryStore_Set_Get_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var v string
	if err := s.Get(ctx, "k1", &v); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "v1" {
		t.Errorf("Get: got %q", v)
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Get(ctx, "k1", &v); !pkgerrors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("Get after Delete: want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var v string
	if err := s.Get(ctx, "missing", &v); !pkgerrors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("Get missing: want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Exists(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ok, err := s.Exists(ctx, "k")
	if err != nil || ok {
		t.Errorf("Exists missing: ok=%v err=%v", ok, err)
	}
	_ = s.Set(ctx, "k", "v", 0)
	ok, err = s.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists present: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStore_Keys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "msg_lock:conv-1", "a", 0)
	_ = s.Set(ctx, "msg_lock:conv-2", "b", 0)
	_ = s.Set(ctx, "ai_job:job-1", "c", 0)

	keys, err := s.Keys(ctx, "msg_lock:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Keys: got %d keys %v, want 2", len(keys), keys)
	}
	for _, k := range keys {
		if k != "msg_lock:conv-1" && k != "msg_lock:conv-2" {
			t.Errorf("Keys: unexpected key %q", k)
		}
	}
}

func TestMemoryStore_Expiration(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Set(ctx, "k", "v", 1*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var v string
	if err := s.Get(ctx, "k", &v); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	// 过期判定秒级粒度，多等一秒保证越过边界
	time.Sleep(2100 * time.Millisecond)
	if err := s.Get(ctx, "k", &v); !pkgerrors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("Get after expiry: want ErrNotFound, got %v", err)
	}
	if ok, _ := s.Exists(ctx, "k"); ok {
		t.Error("Exists after expiry should be false")
	}
	keys, err := s.Keys(ctx, "k")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expired key listed: %v", keys)
	}
}
