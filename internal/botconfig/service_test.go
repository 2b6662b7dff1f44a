package botconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trieungoctam/chatbot-orchestrator/internal/storage/conversation"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/secrets"
)

func TestResolve_DefaultsWhenUnknownBot(t *testing.T) {
	ctx := context.Background()
	s := NewService(conversation.NewMemoryStore(), nil,
		config.AIConfig{Endpoint: "http://ai.default"},
		config.PlatformConfig{BaseURL: "http://platform.default"},
		log.Nop())

	r := s.Resolve(ctx, "missing-bot")
	assert.Equal(t, "http://ai.default", r.AIEndpoint)
	assert.Equal(t, "http://platform.default", r.PlatformBaseURL)
	assert.Nil(t, r.Bot)
}

func TestResolve_BotOverridesAndToken(t *testing.T) {
	ctx := context.Background()
	repo := conversation.NewMemoryStore()
	repo.PutBotConfig(&conversation.BotConfig{
		ID:             "bot-1",
		AIEndpoint:     "http://ai.custom",
		AIAuthTokenKey: "bot1_token",
		Active:         true,
	})

	sec := secrets.NewMemoryStore()
	require.NoError(t, sec.Set(ctx, "bot1_token", "sekrit"))

	s := NewService(repo, sec,
		config.AIConfig{Endpoint: "http://ai.default"},
		config.PlatformConfig{BaseURL: "http://platform.default"},
		log.Nop())

	r := s.Resolve(ctx, "bot-1")
	assert.Equal(t, "http://ai.custom", r.AIEndpoint)
	assert.Equal(t, "sekrit", r.AIAuthToken)
	assert.Equal(t, "http://platform.default", r.PlatformBaseURL)
}

func TestResolve_InactiveBotFallsBack(t *testing.T) {
	ctx := context.Background()
	repo := conversation.NewMemoryStore()
	repo.PutBotConfig(&conversation.BotConfig{
		ID:         "bot-1",
		AIEndpoint: "http://ai.custom",
		Active:     false,
	})

	s := NewService(repo, nil,
		config.AIConfig{Endpoint: "http://ai.default"},
		config.PlatformConfig{}, log.Nop())

	r := s.Resolve(ctx, "bot-1")
	assert.Equal(t, "http://ai.default", r.AIEndpoint, "inactive bot should use defaults")
}
