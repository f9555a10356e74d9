// Package pipeline 定义了问答事件的落库流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"portfolio-go/internal/model"
	"portfolio-go/internal/repository"
	"portfolio-go/pkg/log"
	"portfolio-go/pkg/tasks"
)

// ErrInvalidTask 表示事件缺少必要字段，重试没有意义。
var ErrInvalidTask = errors.New("pipeline: invalid chat exchange task")

// Processor 把问答事件写入 MySQL。Kafka 消费者和同步写入路径共用它。
type Processor struct {
	exchangeRepo repository.ExchangeRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(exchangeRepo repository.ExchangeRepository) *Processor {
	return &Processor{exchangeRepo: exchangeRepo}
}

// Process 校验并保存一条问答事件。
func (p *Processor) Process(ctx context.Context, task tasks.ChatExchangeTask) error {
	if strings.TrimSpace(task.Question) == "" || strings.TrimSpace(task.Answer) == "" {
		log.Warnf("[Processor] 丢弃无效事件: ID=%s", task.ID)
		return ErrInvalidTask
	}

	row := &model.ChatExchange{
		SessionID: task.SessionID,
		Endpoint:  task.Endpoint,
		Selector:  task.Selector,
		Provider:  task.Provider,
		Model:     task.Model,
		Attempts:  task.Attempts,
		Question:  task.Question,
		Answer:    task.Answer,
	}
	if !task.CreatedAt.IsZero() {
		row.CreatedAt = model.LocalTime(task.CreatedAt)
	}
	if err := p.exchangeRepo.Create(ctx, row); err != nil {
		return fmt.Errorf("保存问答记录失败: %w", err)
	}
	log.Infof("[Processor] 问答记录已保存: ID=%s, Model=%s", task.ID, task.Model)
	return nil
}

// Publish 在没有 Kafka 时同步处理事件，签名与 kafka.Producer 一致。
func (p *Processor) Publish(ctx context.Context, task tasks.ChatExchangeTask) error {
	return p.Process(ctx, task)
}
