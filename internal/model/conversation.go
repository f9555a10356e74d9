package model

import "time"

// ChatMessage 代表一条对话消息，同时也是存储在 Redis 中的历史记录格式。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ChatExchange 是一次成功问答的审计记录。
type ChatExchange struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"type:varchar(64);index" json:"sessionId"`
	Endpoint  string    `gorm:"type:varchar(32);not null" json:"endpoint"`
	Selector  string    `gorm:"type:varchar(32);not null" json:"selector"`
	Provider  string    `gorm:"type:varchar(32);not null" json:"provider"`
	Model     string    `gorm:"type:varchar(64);not null" json:"model"`
	Attempts  int       `gorm:"not null" json:"attempts"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text;not null" json:"answer"`
	CreatedAt LocalTime `gorm:"autoCreateTime" json:"createdAt"`
}

func (ChatExchange) TableName() string {
	return "chat_exchanges"
}
