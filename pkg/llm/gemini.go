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

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiClient struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewGeminiClient creates a client for the Gemini generateContent API.
func NewGeminiClient(cfg config.ProviderConfig) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &geminiClient{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// text 拼接第一个候选的所有文本片段；没有候选时 ok=false。
func (r geminiResponse) text() (string, bool) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), true
}

func (c *geminiClient) Name() string { return "gemini" }

func (c *geminiClient) Complete(ctx context.Context, model string, req Request) (Result, error) {
	resp, err := c.post(ctx, model+":generateContent", req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read gemini response: %w", err)
	}
	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	text, ok := out.text()
	if !ok {
		return Result{}, ErrMalformedResponse
	}
	return Result{Text: text, Raw: raw}, nil
}

func (c *geminiClient) Stream(ctx context.Context, model string, req Request) (Stream, error) {
	resp, err := c.post(ctx, model+":streamGenerateContent?alt=sse", req)
	if err != nil {
		return nil, err
	}
	return newSSEStream(resp.Body, func(data []byte) (string, bool) {
		var chunk geminiResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return "", false
		}
		text, ok := chunk.text()
		if !ok || text == "" {
			return "", false
		}
		return text, true
	}), nil
}

// body 把归一化请求映射为 Gemini 的结构：system 放入 systemInstruction，assistant 角色改为 model。
func (c *geminiClient) body(req Request) geminiRequest {
	out := geminiRequest{
		Contents: make([]geminiContent, 0, len(req.History)+1),
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}
	if req.System != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.History {
		role := "model"
		if m.Role == RoleUser {
			role = "user"
		}
		out.Contents = append(out.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	out.Contents = append(out.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Message}}})
	return out
}

func (c *geminiClient) post(ctx context.Context, path string, req Request) (*http.Response, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	reqBytes, err := json.Marshal(c.body(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gemini request: %w", err)
	}
	url := c.cfg.BaseURL + "/models/" + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call gemini api: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Provider: "gemini", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}
