// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"portfolio-go/internal/config"
	"portfolio-go/internal/model"
	"portfolio-go/internal/repository"
	"portfolio-go/pkg/llm"
	"portfolio-go/pkg/log"
	"portfolio-go/pkg/tasks"

	"github.com/google/uuid"
)

var (
	// ErrMessageRequired 表示消息为空或只有空白。
	ErrMessageRequired = errors.New("message is required")
	// ErrElementInfoRequired 表示 inspector 请求缺少元素信息。
	ErrElementInfoRequired = errors.New("element info is required")
)

// ExchangePublisher 发布成功的问答事件，由 *kafka.Producer 或 *pipeline.Processor 实现。
type ExchangePublisher interface {
	Publish(ctx context.Context, task tasks.ChatExchangeTask) error
}

// ChatService 定义了聊天操作的接口。inspector 为 true 时回答限定在 ElementInfo 描述的页面元素上。
type ChatService interface {
	Reply(ctx context.Context, in model.ChatRequest, inspector bool) (*model.ChatReply, error)
	Stream(ctx context.Context, in model.ChatRequest, inspector bool) (*ChatStream, error)
}

type chatService struct {
	llmCfg           config.LLMConfig
	chatCfg          config.ChatConfig
	promptCfg        config.PromptConfig
	providers        llm.Providers
	chains           map[string]llm.Chain
	githubService    GitHubService
	conversationRepo repository.ConversationRepository
	publisher        ExchangePublisher
}

// NewChatService 创建一个新的 ChatService 实例。githubService、conversationRepo 和 publisher 可以为 nil。
func NewChatService(
	llmCfg config.LLMConfig,
	chatCfg config.ChatConfig,
	promptCfg config.PromptConfig,
	providers llm.Providers,
	githubService GitHubService,
	conversationRepo repository.ConversationRepository,
	publisher ExchangePublisher,
) ChatService {
	return &chatService{
		llmCfg:           llmCfg,
		chatCfg:          chatCfg,
		promptCfg:        promptCfg,
		providers:        providers,
		chains:           llm.ChainsFromConfig(llmCfg.Chains),
		githubService:    githubService,
		conversationRepo: conversationRepo,
		publisher:        publisher,
	}
}

// turn 是一次已校验、已组装好提示词的请求。
type turn struct {
	endpoint  string
	selector  string
	sessionID string
	question  string
	chain     llm.Chain
	req       llm.Request
}

func (s *chatService) Reply(ctx context.Context, in model.ChatRequest, inspector bool) (*model.ChatReply, error) {
	t, err := s.prepare(ctx, in, inspector)
	if err != nil {
		return nil, err
	}
	res, err := llm.Complete(ctx, s.providers, t.chain, t.req)
	if err != nil {
		return nil, err
	}
	s.record(ctx, t, res.Provider, res.Model, res.Attempts, res.Text)
	return &model.ChatReply{
		Response:  res.Text,
		Model:     t.selector,
		ModelUsed: res.Model,
		Provider:  res.Provider,
		Attempts:  res.Attempts,
		SessionID: t.sessionID,
	}, nil
}

func (s *chatService) Stream(ctx context.Context, in model.ChatRequest, inspector bool) (*ChatStream, error) {
	t, err := s.prepare(ctx, in, inspector)
	if err != nil {
		return nil, err
	}
	cs, err := llm.OpenStream(ctx, s.providers, t.chain, t.req)
	if err != nil {
		return nil, err
	}
	return &ChatStream{
		Selector:  t.selector,
		SessionID: t.sessionID,
		inner:     cs,
		onDone: func(text string) {
			s.record(ctx, t, cs.Provider, cs.Model, cs.Attempts, text)
		},
	}, nil
}

// prepare 校验请求、解析回退链、裁剪历史并构建系统提示词。校验失败时不会调用任何供应商。
func (s *chatService) prepare(ctx context.Context, in model.ChatRequest, inspector bool) (*turn, error) {
	message, history := splitMessages(in)
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrMessageRequired
	}
	if inspector && in.ElementInfo.IsZero() {
		return nil, ErrElementInfoRequired
	}

	t := &turn{
		endpoint:  "chat",
		sessionID: strings.TrimSpace(in.SessionID),
		question:  message,
	}
	t.selector, t.chain = s.resolveChain(in.Model)

	window := s.chatCfg.HistoryWindow
	if inspector {
		t.endpoint = "chat-inspector"
		window = s.chatCfg.InspectorHistoryWindow
	}
	if len(history) == 0 && t.sessionID != "" && s.conversationRepo != nil {
		stored, err := s.conversationRepo.GetConversationHistory(ctx, t.sessionID)
		if err != nil {
			log.Warnf("加载会话历史失败: session=%s, err=%v", t.sessionID, err)
		}
		history = stored
	}
	if t.sessionID == "" {
		t.sessionID = uuid.NewString()
	}

	t.req = llm.Request{
		Message: message,
		History: toLLMHistory(lastN(history, window)),
	}
	if inspector {
		t.req.System = BuildInspectorPrompt(s.promptCfg.InspectorIntro, in.ElementInfo)
		t.req.MaxTokens = s.chatCfg.InspectorMaxTokens
	} else {
		t.req.System = BuildSystemPrompt(s.promptCfg.Profile, s.snapshot(ctx))
	}
	return t, nil
}

func (s *chatService) snapshot(ctx context.Context) *model.GitHubSnapshot {
	if s.githubService == nil {
		return nil
	}
	return s.githubService.Snapshot(ctx)
}

// resolveChain 把客户端传入的选择器映射到回退链，未知选择器使用默认链。
func (s *chatService) resolveChain(selector string) (string, llm.Chain) {
	selector = strings.ToLower(strings.TrimSpace(selector))
	if selector == "" {
		selector = s.llmCfg.DefaultSelector
	}
	name := selector
	if alias, ok := s.llmCfg.Aliases[selector]; ok {
		name = alias
	}
	if chain, ok := s.chains[name]; ok {
		return selector, chain
	}
	log.Warnf("未知的模型选择器 %q，使用默认回退链 %q", selector, s.llmCfg.DefaultSelector)
	def := s.llmCfg.DefaultSelector
	if alias, ok := s.llmCfg.Aliases[def]; ok {
		def = alias
	}
	return selector, s.chains[def]
}

// record 把问答写入会话历史并发布审计事件，失败只记录日志。
func (s *chatService) record(ctx context.Context, t *turn, provider, modelName string, attempts int, answer string) {
	now := time.Now()
	if s.conversationRepo != nil {
		err := s.conversationRepo.AppendConversationHistory(ctx, t.sessionID,
			model.ChatMessage{Role: llm.RoleUser, Content: t.question, Timestamp: now},
			model.ChatMessage{Role: llm.RoleAssistant, Content: answer, Timestamp: now},
		)
		if err != nil {
			log.Warnf("保存会话历史失败: session=%s, err=%v", t.sessionID, err)
		}
	}
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, tasks.ChatExchangeTask{
			ID:        uuid.NewString(),
			SessionID: t.sessionID,
			Endpoint:  t.endpoint,
			Selector:  t.selector,
			Provider:  provider,
			Model:     modelName,
			Attempts:  attempts,
			Question:  t.question,
			Answer:    answer,
			CreatedAt: now,
		})
		if err != nil {
			log.Warnf("发布问答事件失败: session=%s, err=%v", t.sessionID, err)
		}
	}
}

// splitMessages 取出当前问题和之前的历史。Messages 形式下最后一条 user 消息是当前问题。
func splitMessages(in model.ChatRequest) (string, []model.ChatMessage) {
	if strings.TrimSpace(in.Message) != "" || len(in.Messages) == 0 {
		return in.Message, in.History
	}
	for i := len(in.Messages) - 1; i >= 0; i-- {
		if in.Messages[i].Role == llm.RoleUser {
			return in.Messages[i].Content, in.Messages[:i]
		}
	}
	return "", nil
}

func lastN(history []model.ChatMessage, n int) []model.ChatMessage {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

func toLLMHistory(history []model.ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// ChatStream 是已经开始的回答流。读到 io.EOF 时完整回答会被记录。
type ChatStream struct {
	Selector  string
	SessionID string

	inner  *llm.ChainStream
	buf    strings.Builder
	onDone func(text string)
	once   sync.Once
}

// Provider 返回实际提供回答的供应商。
func (c *ChatStream) Provider() string { return c.inner.Provider }

// Model 返回实际使用的模型。
func (c *ChatStream) Model() string { return c.inner.Model }

// Recv 返回下一个分块，流结束时返回 io.EOF。
func (c *ChatStream) Recv() (string, error) {
	chunk, err := c.inner.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			c.once.Do(func() {
				if text := strings.TrimSpace(c.buf.String()); text != "" {
					c.onDone(text)
				}
			})
		}
		return "", err
	}
	c.buf.WriteString(chunk)
	return chunk, nil
}

// Close 关闭底层流。
func (c *ChatStream) Close() error {
	return c.inner.Close()
}
