package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"portfolio-go/internal/config"
	"portfolio-go/internal/model"
	"portfolio-go/pkg/llm"
	"portfolio-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider 按模型返回预设结果，并记录每次调用。
type scriptedProvider struct {
	name    string
	mu      sync.Mutex
	replies map[string]error
	text    map[string]string
	calls   []string
	reqs    []llm.Request
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(_ context.Context, model string, req llm.Request) (llm.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, model)
	p.reqs = append(p.reqs, req)
	if err := p.replies[model]; err != nil {
		return llm.Result{}, err
	}
	return llm.Result{Text: p.text[model]}, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, model string, req llm.Request) (llm.Stream, error) {
	res, err := p.Complete(ctx, model, req)
	if err != nil {
		return nil, err
	}
	words := strings.SplitAfter(res.Text, " ")
	return &wordStream{words: words}, nil
}

type wordStream struct{ words []string }

func (w *wordStream) Recv() (string, error) {
	if len(w.words) == 0 {
		return "", io.EOF
	}
	c := w.words[0]
	w.words = w.words[1:]
	return c, nil
}

func (w *wordStream) Close() error { return nil }

type memConversations struct {
	mu   sync.Mutex
	data map[string][]model.ChatMessage
}

func (m *memConversations) GetConversationHistory(_ context.Context, id string) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ChatMessage(nil), m.data[id]...), nil
}

func (m *memConversations) AppendConversationHistory(_ context.Context, id string, msgs ...model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]model.ChatMessage{}
	}
	m.data[id] = append(m.data[id], msgs...)
	return nil
}

type memPublisher struct{ published []tasks.ChatExchangeTask }

func (m *memPublisher) Publish(_ context.Context, t tasks.ChatExchangeTask) error {
	m.published = append(m.published, t)
	return nil
}

type chatFixture struct {
	svc       ChatService
	gemini    *scriptedProvider
	groq      *scriptedProvider
	convs     *memConversations
	publisher *memPublisher
	github    *fakeGitHub
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	f := &chatFixture{
		gemini:    &scriptedProvider{name: "gemini", replies: map[string]error{}, text: map[string]string{}},
		groq:      &scriptedProvider{name: "groq", replies: map[string]error{}, text: map[string]string{}},
		convs:     &memConversations{},
		publisher: &memPublisher{},
		github:    newFakeGitHub(),
	}
	llmCfg := config.LLMConfig{
		Chains: map[string][]config.AttemptConfig{
			"gemini": {
				{Provider: "gemini", Model: "gemini-1.5-flash", MaxTokens: 500, Temperature: 0.7},
				{Provider: "gemini", Model: "gemini-1.5-pro", MaxTokens: 500, Temperature: 0.7},
				{Provider: "groq", Model: "llama-3.1-70b-versatile", MaxTokens: 500, Temperature: 0.7},
			},
			"groq": {
				{Provider: "groq", Model: "llama-3.1-70b-versatile", MaxTokens: 500, Temperature: 0.7},
				{Provider: "groq", Model: "llama-3.1-8b-instant", MaxTokens: 500, Temperature: 0.7},
			},
		},
		Aliases:         map[string]string{"gemini": "gemini", "groq": "groq", "groq-llama": "groq"},
		DefaultSelector: "gemini",
	}
	chatCfg := config.ChatConfig{HistoryWindow: 3, InspectorHistoryWindow: 2, InspectorMaxTokens: 400}
	promptCfg := config.PromptConfig{Profile: "You are Mohamed Datt.", InspectorIntro: "You are explaining your portfolio."}
	gh := NewGitHubService(f.github, testGitHubConfig())
	f.svc = NewChatService(llmCfg, chatCfg, promptCfg,
		llm.Providers{"gemini": f.gemini, "groq": f.groq}, gh, f.convs, f.publisher)
	return f
}

func TestReplyFallsBackToSecondProvider(t *testing.T) {
	f := newChatFixture(t)
	f.gemini.replies["gemini-1.5-flash"] = context.DeadlineExceeded
	f.gemini.text["gemini-1.5-pro"] = "EduSphere AI is an AI-powered dashboard for students."

	reply, err := f.svc.Reply(context.Background(), model.ChatRequest{
		Message: "Tell me about EduSphere AI",
		Model:   "gemini",
	}, false)
	require.NoError(t, err)
	assert.Contains(t, reply.Response, "EduSphere AI is")
	assert.Equal(t, "gemini", reply.Model)
	assert.Equal(t, "gemini-1.5-pro", reply.ModelUsed)
	assert.Equal(t, 2, reply.Attempts)
	assert.Equal(t, []string{"gemini-1.5-flash", "gemini-1.5-pro"}, f.gemini.calls)
	assert.Empty(t, f.groq.calls)

	sys := f.gemini.reqs[1].System
	assert.True(t, strings.HasPrefix(sys, "You are Mohamed Datt."))
	assert.Contains(t, sys, "EDUSPHERE-AI")
	assert.Equal(t, 500, f.gemini.reqs[1].MaxTokens)
}

func TestReplyWhitespaceMessageMakesNoCalls(t *testing.T) {
	f := newChatFixture(t)
	_, err := f.svc.Reply(context.Background(), model.ChatRequest{Message: "   ", Model: "gemini"}, false)
	assert.ErrorIs(t, err, ErrMessageRequired)
	assert.Empty(t, f.gemini.calls)
	assert.Empty(t, f.groq.calls)
	assert.Zero(t, f.github.callCount())
}

func TestReplyExhaustedCallsEveryEntry(t *testing.T) {
	f := newChatFixture(t)
	boom := errors.New("boom")
	f.groq.replies["llama-3.1-70b-versatile"] = boom
	f.groq.replies["llama-3.1-8b-instant"] = &llm.StatusError{Provider: "groq", StatusCode: 500}

	_, err := f.svc.Reply(context.Background(), model.ChatRequest{Message: "hi", Model: "groq-llama"}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrAllProvidersExhausted)
	assert.Len(t, f.groq.calls, 2)
	assert.Empty(t, f.publisher.published)
}

func TestReplyUnknownSelectorUsesDefaultChain(t *testing.T) {
	f := newChatFixture(t)
	f.gemini.text["gemini-1.5-flash"] = "hello"

	reply, err := f.svc.Reply(context.Background(), model.ChatRequest{Message: "hi", Model: "claude"}, false)
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-flash", reply.ModelUsed)
	assert.Equal(t, "claude", reply.Model)
}

func TestReplyTrimsHistoryWindow(t *testing.T) {
	f := newChatFixture(t)
	f.gemini.text["gemini-1.5-flash"] = "ok"
	history := []model.ChatMessage{
		{Role: "user", Content: "1"}, {Role: "assistant", Content: "2"},
		{Role: "user", Content: "3"}, {Role: "assistant", Content: "4"},
	}

	_, err := f.svc.Reply(context.Background(), model.ChatRequest{Message: "5", History: history}, false)
	require.NoError(t, err)
	got := f.gemini.reqs[0].History
	require.Len(t, got, 3)
	assert.Equal(t, "2", got[0].Content)
}

func TestReplyUsesLastUserMessageFromMessages(t *testing.T) {
	f := newChatFixture(t)
	f.gemini.text["gemini-1.5-flash"] = "ok"

	_, err := f.svc.Reply(context.Background(), model.ChatRequest{Messages: []model.ChatMessage{
		{Role: "user", Content: "first"}, {Role: "assistant", Content: "answer"}, {Role: "user", Content: "second"},
	}}, false)
	require.NoError(t, err)
	req := f.gemini.reqs[0]
	assert.Equal(t, "second", req.Message)
	assert.Len(t, req.History, 2)
}

func TestReplyStoresAndReloadsSessionHistory(t *testing.T) {
	f := newChatFixture(t)
	f.gemini.text["gemini-1.5-flash"] = "Nice to meet you"

	first, err := f.svc.Reply(context.Background(), model.ChatRequest{Message: "hello"}, false)
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionID)
	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, "gemini-1.5-flash", f.publisher.published[0].Model)

	_, err = f.svc.Reply(context.Background(), model.ChatRequest{Message: "again", SessionID: first.SessionID}, false)
	require.NoError(t, err)
	hist := f.gemini.reqs[1].History
	require.Len(t, hist, 2)
	assert.Equal(t, "hello", hist[0].Content)
	assert.Equal(t, "Nice to meet you", hist[1].Content)
}

func TestInspectorRequiresElementInfo(t *testing.T) {
	f := newChatFixture(t)
	_, err := f.svc.Reply(context.Background(), model.ChatRequest{Message: "what is this?"}, true)
	assert.ErrorIs(t, err, ErrElementInfoRequired)
	assert.Empty(t, f.gemini.calls)
}

func TestInspectorPromptAndLimits(t *testing.T) {
	f := newChatFixture(t)
	f.gemini.text["gemini-1.5-flash"] = "I built this with Framer Motion."
	el := &model.ElementInfo{Title: "Hero", Description: "Landing", Details: "SVG", Tech: []string{"React", "Framer Motion"}, Inspiration: "terminals"}
	history := []model.ChatMessage{
		{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}, {Role: "user", Content: "c"},
	}

	reply, err := f.svc.Reply(context.Background(), model.ChatRequest{Message: "how?", ElementInfo: el, History: history}, true)
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Response)

	req := f.gemini.reqs[0]
	assert.Contains(t, req.System, "- Title: Hero")
	assert.Contains(t, req.System, "- Technologies: React, Framer Motion")
	assert.NotContains(t, req.System, "GITHUB")
	assert.Equal(t, 400, req.MaxTokens)
	assert.Len(t, req.History, 2)
	assert.Zero(t, f.github.callCount())
	assert.Equal(t, "chat-inspector", f.publisher.published[0].Endpoint)
}

func TestStreamDeliversChunksAndRecords(t *testing.T) {
	f := newChatFixture(t)
	f.gemini.replies["gemini-1.5-flash"] = errors.New("quota")
	f.gemini.text["gemini-1.5-pro"] = "Hello from Norfolk"

	stream, err := f.svc.Stream(context.Background(), model.ChatRequest{Message: "hi"}, false)
	require.NoError(t, err)
	defer stream.Close()
	assert.Equal(t, "gemini-1.5-pro", stream.Model())

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		sb.WriteString(chunk)
	}
	assert.Equal(t, "Hello from Norfolk", sb.String())
	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, "Hello from Norfolk", f.publisher.published[0].Answer)
}
