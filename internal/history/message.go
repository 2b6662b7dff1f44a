package history

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// 消息角色
const (
	RoleUser = "user"
	RoleBot  = "bot"
	RoleSale = "sale"
)

// Message 结构化消息，由历史处理器产出，随 Job 载荷消费
type Message struct {
	Role      string    `json:"role"`            // user | bot | sale
	Content   string    `json:"content"`         // 消息内容
	Timestamp time.Time `json:"timestamp"`       // 处理时刻
	SourcePos int       `json:"source_position"` // 在原始文本中的起始位置
}

// Fingerprint 计算历史内容指纹，用于判断新消息是否真的改变了会话状态
func Fingerprint(history string) string {
	sum := sha256.Sum256([]byte(history))
	return hex.EncodeToString(sum[:])
}
