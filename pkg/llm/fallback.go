package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"portfolio-go/internal/config"
	"portfolio-go/pkg/log"
)

// Attempt 是回退链中的一项：供应商、模型以及单次调用的生成参数。
type Attempt struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Chain 是按优先级排列、运行期不可变的尝试列表。
type Chain []Attempt

// ChainsFromConfig 将配置中的回退链转换为 Chain。
func ChainsFromConfig(cfg map[string][]config.AttemptConfig) map[string]Chain {
	chains := make(map[string]Chain, len(cfg))
	for name, items := range cfg {
		chain := make(Chain, 0, len(items))
		for _, it := range items {
			chain = append(chain, Attempt{
				Provider:    it.Provider,
				Model:       it.Model,
				MaxTokens:   it.MaxTokens,
				Temperature: it.Temperature,
			})
		}
		chains[name] = chain
	}
	return chains
}

// request 按尝试项覆盖生成参数。req.MaxTokens 非零时作为上限。
func (a Attempt) request(req Request) Request {
	call := req
	call.Temperature = a.Temperature
	call.MaxTokens = a.MaxTokens
	if req.MaxTokens > 0 && (a.MaxTokens == 0 || req.MaxTokens < a.MaxTokens) {
		call.MaxTokens = req.MaxTokens
	}
	return call
}

// Complete 依次尝试回退链中的每一项，返回第一个非空白的结果。
// 每一项最多调用一次；全部失败时返回 *ExhaustedError。
func Complete(ctx context.Context, providers Providers, chain Chain, req Request) (Result, error) {
	failures := make([]*ProviderError, 0, len(chain))
	for i, attempt := range chain {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("chat request abandoned after %d attempts: %w", i, err)
		}

		p, ok := providers[attempt.Provider]
		if !ok {
			failures = append(failures, logFailure(attempt, i, len(chain), 0, ErrUnknownProvider))
			continue
		}

		start := time.Now()
		res, err := p.Complete(ctx, attempt.Model, attempt.request(req))
		if err == nil && strings.TrimSpace(res.Text) == "" {
			err = ErrEmptyCompletion
		}
		if err != nil {
			failures = append(failures, logFailure(attempt, i, len(chain), time.Since(start), err))
			continue
		}

		res.Text = strings.TrimSpace(res.Text)
		res.Provider = attempt.Provider
		res.Model = attempt.Model
		res.Attempts = i + 1
		log.Infow("llm attempt succeeded",
			"provider", attempt.Provider,
			"model", attempt.Model,
			"attempt", i+1,
			"of", len(chain),
			"latency", time.Since(start).String(),
		)
		return res, nil
	}
	log.Warnw("llm chain exhausted", "attempts", len(failures))
	return Result{}, &ExhaustedError{Attempts: failures}
}

// ChainStream 是已经成功开始的流。第一个非空白分块已经被读取，Recv 会先把它交还给调用方。
type ChainStream struct {
	Provider string
	Model    string
	Attempts int

	pending []string
	inner   Stream
}

// Recv 先返回预读的分块，然后委托给底层流。
func (s *ChainStream) Recv() (string, error) {
	if len(s.pending) > 0 {
		chunk := s.pending[0]
		s.pending = s.pending[1:]
		return chunk, nil
	}
	return s.inner.Recv()
}

// Close 关闭底层流。
func (s *ChainStream) Close() error {
	return s.inner.Close()
}

// OpenStream 与 Complete 使用相同的回退语义，但只在“开始流”这一步回退：
// 一旦读到第一个非空白分块，流即视为已开始，之后的错误直接交给调用方，不再切换供应商。
func OpenStream(ctx context.Context, providers Providers, chain Chain, req Request) (*ChainStream, error) {
	failures := make([]*ProviderError, 0, len(chain))
	for i, attempt := range chain {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("chat stream abandoned after %d attempts: %w", i, err)
		}

		p, ok := providers[attempt.Provider]
		if !ok {
			failures = append(failures, logFailure(attempt, i, len(chain), 0, ErrUnknownProvider))
			continue
		}

		start := time.Now()
		stream, err := p.Stream(ctx, attempt.Model, attempt.request(req))
		if err != nil {
			failures = append(failures, logFailure(attempt, i, len(chain), time.Since(start), err))
			continue
		}
		pending, err := peek(stream)
		if err != nil {
			_ = stream.Close()
			failures = append(failures, logFailure(attempt, i, len(chain), time.Since(start), err))
			continue
		}

		log.Infow("llm stream started",
			"provider", attempt.Provider,
			"model", attempt.Model,
			"attempt", i+1,
			"of", len(chain),
			"latency", time.Since(start).String(),
		)
		return &ChainStream{
			Provider: attempt.Provider,
			Model:    attempt.Model,
			Attempts: i + 1,
			pending:  pending,
			inner:    stream,
		}, nil
	}
	log.Warnw("llm stream chain exhausted", "attempts", len(failures))
	return nil, &ExhaustedError{Attempts: failures}
}

// peek 读取分块直到出现第一个非空白分块，返回包括它在内的全部已读分块。
func peek(stream Stream) ([]string, error) {
	var pending []string
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrEmptyCompletion
			}
			return nil, err
		}
		pending = append(pending, chunk)
		if strings.TrimSpace(chunk) != "" {
			return pending, nil
		}
	}
}

func logFailure(a Attempt, i, total int, latency time.Duration, err error) *ProviderError {
	log.Warnw("llm attempt failed",
		"provider", a.Provider,
		"model", a.Model,
		"attempt", i+1,
		"of", total,
		"latency", latency.String(),
		"error", err.Error(),
	)
	return &ProviderError{Provider: a.Provider, Model: a.Model, Err: err}
}
