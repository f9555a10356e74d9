package model

// ElementInfo 描述页面上被“检查”的元素，用于把回答限定在该元素范围内。
type ElementInfo struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Details     string   `json:"details"`
	Tech        []string `json:"tech"`
	Inspiration string   `json:"inspiration"`
}

// IsZero 报告元素信息是否完全为空。
func (e *ElementInfo) IsZero() bool {
	return e == nil || (e.Title == "" && e.Description == "" && e.Details == "" && len(e.Tech) == 0 && e.Inspiration == "")
}

// ChatRequest 是聊天接口的请求体。
// /chat 与 /chat-inspector 使用 Messages，最后一条 user 消息即为当前问题；simple 接口使用 Message + History。
type ChatRequest struct {
	Message     string        `json:"message"`
	Messages    []ChatMessage `json:"messages,omitempty"`
	History     []ChatMessage `json:"history,omitempty"`
	Model       string        `json:"model"`
	SessionID   string        `json:"session_id,omitempty"`
	ElementInfo *ElementInfo  `json:"elementInfo,omitempty"`
}

// ChatReply 是一次成功的聊天结果。
type ChatReply struct {
	Response  string `json:"response"`
	Model     string `json:"model"`
	ModelUsed string `json:"model_used"`
	Provider  string `json:"provider"`
	Attempts  int    `json:"attempts"`
	SessionID string `json:"session_id,omitempty"`
}
