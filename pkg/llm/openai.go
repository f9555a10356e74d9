package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"portfolio-go/internal/config"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// openAICompatibleClient 调用任何兼容 OpenAI /chat/completions 的接口（Groq、DeepSeek 等）。
type openAICompatibleClient struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

// NewOpenAICompatibleClient creates a client for an OpenAI-compatible chat API.
func NewOpenAICompatibleClient(name string, cfg config.ProviderConfig) Provider {
	if cfg.BaseURL == "" && name == "groq" {
		cfg.BaseURL = groqBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &openAICompatibleClient{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *openAICompatibleClient) Name() string { return c.name }

func (c *openAICompatibleClient) Complete(ctx context.Context, model string, req Request) (Result, error) {
	resp, err := c.post(ctx, model, req, false)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read chat response: %w", err)
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == nil {
		return Result{}, ErrMalformedResponse
	}
	return Result{Text: *out.Choices[0].Message.Content, Raw: raw}, nil
}

func (c *openAICompatibleClient) Stream(ctx context.Context, model string, req Request) (Stream, error) {
	resp, err := c.post(ctx, model, req, true)
	if err != nil {
		return nil, err
	}
	return newSSEStream(resp.Body, func(data []byte) (string, bool) {
		var chunk chatStreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return "", false
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			return "", false
		}
		return chunk.Choices[0].Delta.Content, true
	}), nil
}

// post 发送请求并检查状态码；成功时调用方负责关闭响应体。
func (c *openAICompatibleClient) post(ctx context.Context, model string, req Request, stream bool) (*http.Response, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", c.name, ErrMissingAPIKey)
	}

	reqBody := chatRequest{
		Model:    model,
		Messages: req.Messages(),
		Stream:   stream,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		reqBody.Temperature = &t
	}
	if req.MaxTokens != 0 {
		m := req.MaxTokens
		reqBody.MaxTokens = &m
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s chat api: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Provider: c.name, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}
