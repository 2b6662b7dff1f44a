package conversation

import (
	"context"
	"testing"

	pkgerrors "github.com/trieungoctam/chatbot-orchestrator/pkg/errors"
)

func TestMemoryStore_History(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	h, err := s.GetHistory(ctx, "conv-1")
	if err != nil || h != "" {
		t.Errorf("GetHistory empty: h=%q err=%v", h, err)
	}

	if err := s.SaveHistory(ctx, "conv-1", "<USER>hi</USER>"); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	h, err = s.GetHistory(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if h != "<USER>hi</USER>" {
		t.Errorf("GetHistory: got %q", h)
	}
}

func TestMemoryStore_SaveMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	msgs := []*StoredMessage{
		{ConversationID: "conv-1", Role: "user", Content: "hi"},
		{ConversationID: "conv-1", Role: "bot", Content: "hello"},
	}
	if err := s.SaveMessages(ctx, msgs); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}
	got := s.Messages("conv-1")
	if len(got) != 2 {
		t.Fatalf("Messages: got %d, want 2", len(got))
	}
	if got[1].Role != "bot" || got[1].Content != "hello" {
		t.Errorf("Messages[1]: got %+v", got[1])
	}
}

func TestMemoryStore_GetBotConfig(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.GetBotConfig(ctx, "bot-1"); !pkgerrors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("GetBotConfig missing: want ErrNotFound, got %v", err)
	}

	s.PutBotConfig(&BotConfig{ID: "bot-1", Name: "sales-bot", Active: true})
	cfg, err := s.GetBotConfig(ctx, "bot-1")
	if err != nil {
		t.Fatalf("GetBotConfig: %v", err)
	}
	if cfg.Name != "sales-bot" || !cfg.Active {
		t.Errorf("GetBotConfig: got %+v", cfg)
	}
}
