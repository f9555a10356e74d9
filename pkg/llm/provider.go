// Package llm provides clients for hosted Large Language Models and the
// ordered fallback logic that runs a chat request across them.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"portfolio-go/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrMissingAPIKey 在发起任何网络请求之前返回。
	ErrMissingAPIKey = errors.New("llm: api key is not configured")
	// ErrEmptyCompletion 表示模型返回了空白文本。
	ErrEmptyCompletion = errors.New("llm: empty response from model")
	// ErrMalformedResponse 表示响应体无法解析出文本。
	ErrMalformedResponse = errors.New("llm: invalid response format")
	// ErrUnknownProvider 表示回退链引用了未注册的供应商。
	ErrUnknownProvider = errors.New("llm: unknown provider")
	// ErrAllProvidersExhausted 表示回退链中的所有项都失败了。
	ErrAllProvidersExhausted = errors.New("llm: all providers failed")
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request 是发送给任意供应商的归一化请求。
type Request struct {
	System      string
	History     []Message
	Message     string
	MaxTokens   int
	Temperature float64
}

// Messages 按 system → history → user 的顺序展开为 OpenAI 风格的消息列表。
func (r Request) Messages() []Message {
	msgs := make([]Message, 0, len(r.History)+2)
	if r.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.System})
	}
	for _, m := range r.History {
		role := RoleAssistant
		if m.Role == RoleUser {
			role = RoleUser
		}
		msgs = append(msgs, Message{Role: role, Content: m.Content})
	}
	return append(msgs, Message{Role: RoleUser, Content: r.Message})
}

// Result 是各供应商响应归一化之后的结果，回退逻辑只依赖这里的字段。
type Result struct {
	Text     string
	Provider string
	Model    string
	Attempts int
	Raw      json.RawMessage
}

// Stream 按顺序产出增量文本，结束时返回 io.EOF。
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider 是一个托管的大语言模型 API。
type Provider interface {
	Name() string
	Complete(ctx context.Context, model string, req Request) (Result, error)
	Stream(ctx context.Context, model string, req Request) (Stream, error)
}

// Providers 以供应商名称索引。
type Providers map[string]Provider

// StatusError 表示供应商返回了非 2xx 状态码。
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "…"
	}
	return fmt.Sprintf("%s api returned HTTP %d: %s", e.Provider, e.StatusCode, strings.TrimSpace(body))
}

// NewProviders creates the provider registry described by the config.
func NewProviders(cfg config.LLMConfig) Providers {
	providers := make(Providers, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		switch name {
		case "gemini":
			providers[name] = NewGeminiClient(pc)
		default:
			providers[name] = NewOpenAICompatibleClient(name, pc)
		}
	}
	// 两个内置供应商即使没有配置也要注册，这样缺少密钥时会快速失败而不是报未知供应商。
	if _, ok := providers["gemini"]; !ok {
		providers["gemini"] = NewGeminiClient(config.ProviderConfig{})
	}
	if _, ok := providers["groq"]; !ok {
		providers["groq"] = NewOpenAICompatibleClient("groq", config.ProviderConfig{})
	}
	return providers
}
