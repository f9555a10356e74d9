// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"portfolio-go/internal/config"
	"portfolio-go/internal/pipeline"
	"portfolio-go/pkg/log"
	"portfolio-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// maxAttempts 是单条消息的最多处理次数，达到后提交 offset 放弃重试。
const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ChatExchangeTask) error
}

// Producer 发送问答事件。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 发送一个问答事件到 Kafka，以会话 ID 作为 key 保证同一会话有序。
func (p *Producer) Publish(ctx context.Context, task tasks.ChatExchangeTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.SessionID),
		Value: taskBytes,
	})
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader 是 kafka.Reader 中消费者用到的部分。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// consumer 逐条处理消息。失败的消息在循环内重试，处理完毕（成功或放弃）后才提交 offset。
type consumer struct {
	reader       messageReader
	processor    TaskProcessor
	retryBackoff time.Duration
	fetchBackoff time.Duration
}

// StartConsumer 启动一个 Kafka 消费者来处理问答事件，直到 ctx 被取消。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	c := &consumer{
		reader:       r,
		processor:    processor,
		retryBackoff: time.Second,
		fetchBackoff: 5 * time.Second,
	}
	c.run(ctx)
	log.Info("Kafka 消费者已停止")
}

func (c *consumer) run(ctx context.Context) {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("从 Kafka 读取消息失败，%s 后重试: %v", c.fetchBackoff, err)
			if !sleep(ctx, c.fetchBackoff) {
				return
			}
			continue
		}

		if !c.handle(ctx, m) {
			// 重试期间被取消，不提交，重启后由 Kafka 重新投递
			return
		}
		c.commit(ctx, m)
	}
}

// handle 处理一条消息，返回 false 表示处理被 ctx 中断、不应提交 offset。
func (c *consumer) handle(ctx context.Context, m kafka.Message) bool {
	var task tasks.ChatExchangeTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		return true
	}

	for attempt := 1; ; attempt++ {
		err := c.processor.Process(ctx, task)
		if err == nil {
			return true
		}
		if errors.Is(err, pipeline.ErrInvalidTask) {
			log.Warnf("问答事件无效，直接提交: ID=%s", task.ID)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		if attempt >= maxAttempts {
			log.Errorf("问答事件多次失败(>=%d)，提交 offset 终止重试: ID=%s, Error: %v", maxAttempts, task.ID, err)
			return true
		}
		log.Warnf("处理问答事件失败，第 %d 次重试: ID=%s, Error: %v", attempt, task.ID, err)
		if !sleep(ctx, c.retryBackoff*time.Duration(attempt)) {
			return false
		}
	}
}

// commit 提交 offset。ctx 已取消时仍要提交已处理完的消息，所以不继承取消信号。
func (c *consumer) commit(ctx context.Context, m kafka.Message) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.reader.CommitMessages(commitCtx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

// sleep 等待 d，ctx 先结束时返回 false。
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
