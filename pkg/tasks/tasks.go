// Package tasks defines the messages that are sent to Kafka.
package tasks

import "time"

// ChatExchangeTask 是一次成功问答的事件，由 pipeline 落库。
type ChatExchangeTask struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Endpoint  string    `json:"endpoint"`
	Selector  string    `json:"selector"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Attempts  int       `json:"attempts"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
