package job

import (
	"github.com/trieungoctam/chatbot-orchestrator/internal/history"
)

// Status Job 生命周期状态，终态后不再迁移
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal 是否终态
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Payload AI 处理任务载荷
type Payload struct {
	ConversationID string            `json:"conversation_id"`
	BotID          string            `json:"bot_id,omitempty"`
	Messages       []history.Message `json:"messages"`
	History        string            `json:"history"` // 完整历史，完成后持久化用
	LockID         int64             `json:"lock_id"`
}

// Result 外部 AI 服务返回的处理结果
type Result struct {
	ResponseText string                   `json:"response_text"`
	Intent       string                   `json:"intent,omitempty"`
	Confidence   float64                  `json:"confidence,omitempty"`
	Actions      []map[string]interface{} `json:"actions,omitempty"`
}

// Job 后台 AI 处理任务记录，存于共享缓存键空间，跨实例可查
type Job struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversation_id"`
	Status         Status   `json:"status"`
	Payload        *Payload `json:"payload,omitempty"`
	Result         *Result  `json:"result,omitempty"`
	Error          string   `json:"error,omitempty"`
	CreatedAt      int64    `json:"created_at"` // Unix 秒
	UpdatedAt      int64    `json:"updated_at"`
}
