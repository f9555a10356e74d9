package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"portfolio-go/internal/pipeline"
	"portfolio-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchResult struct {
	msg kafka.Message
	err error
}

// fakeReader 依次返回预置的结果，取完后取消 ctx 让消费循环退出。
type fakeReader struct {
	mu      sync.Mutex
	results []fetchResult
	commits []kafka.Message
	cancel  context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.msg, r.err
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, msgs...)
	return nil
}

// scriptedProcessor 按顺序返回 errs 中的错误，用完后返回成功。
type scriptedProcessor struct {
	errs  []error
	calls int
	hook  func()
}

func (p *scriptedProcessor) Process(_ context.Context, _ tasks.ChatExchangeTask) error {
	p.calls++
	if p.hook != nil {
		p.hook()
	}
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return err
}

func taskMessage(t *testing.T, id string, offset int64) kafka.Message {
	t.Helper()
	value, err := json.Marshal(tasks.ChatExchangeTask{ID: id, Question: "q", Answer: "a"})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: value}
}

func runConsumer(t *testing.T, results []fetchResult, p *scriptedProcessor) *fakeReader {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{results: results, cancel: cancel}
	c := &consumer{reader: reader, processor: p, retryBackoff: time.Millisecond, fetchBackoff: time.Millisecond}

	done := make(chan struct{})
	go func() {
		c.run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
	return reader
}

func TestConsumerCommitsInvalidTaskWithoutRetry(t *testing.T) {
	p := &scriptedProcessor{errs: []error{pipeline.ErrInvalidTask}}
	reader := runConsumer(t, []fetchResult{{msg: taskMessage(t, "1", 7)}}, p)

	assert.Equal(t, 1, p.calls)
	require.Len(t, reader.commits, 1)
	assert.Equal(t, int64(7), reader.commits[0].Offset)
}

func TestConsumerRetriesTransientFailureBeforeCommit(t *testing.T) {
	p := &scriptedProcessor{errs: []error{errors.New("mysql down")}}
	reader := runConsumer(t, []fetchResult{
		{msg: taskMessage(t, "1", 1)},
		{msg: taskMessage(t, "2", 2)},
	}, p)

	assert.Equal(t, 3, p.calls)
	require.Len(t, reader.commits, 2)
	assert.Equal(t, int64(1), reader.commits[0].Offset)
	assert.Equal(t, int64(2), reader.commits[1].Offset)
}

func TestConsumerGivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("mysql down")
	p := &scriptedProcessor{errs: []error{boom, boom, boom, boom}}
	reader := runConsumer(t, []fetchResult{{msg: taskMessage(t, "1", 3)}}, p)

	assert.Equal(t, maxAttempts, p.calls)
	assert.Len(t, reader.commits, 1)
}

func TestConsumerCommitsMalformedMessage(t *testing.T) {
	p := &scriptedProcessor{}
	reader := runConsumer(t, []fetchResult{{msg: kafka.Message{Offset: 5, Value: []byte("{")}}}, p)

	assert.Zero(t, p.calls)
	assert.Len(t, reader.commits, 1)
}

func TestConsumerKeepsRunningAfterFetchError(t *testing.T) {
	p := &scriptedProcessor{}
	reader := runConsumer(t, []fetchResult{
		{err: errors.New("broker unavailable")},
		{msg: taskMessage(t, "1", 9)},
	}, p)

	assert.Equal(t, 1, p.calls)
	require.Len(t, reader.commits, 1)
	assert.Equal(t, int64(9), reader.commits[0].Offset)
}

func TestConsumerLeavesMessageUncommittedOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{results: []fetchResult{{msg: taskMessage(t, "1", 4)}}, cancel: cancel}
	p := &scriptedProcessor{errs: []error{errors.New("mysql down")}, hook: cancel}
	c := &consumer{reader: reader, processor: p, retryBackoff: time.Hour, fetchBackoff: time.Millisecond}

	c.run(ctx)

	assert.Equal(t, 1, p.calls)
	assert.Empty(t, reader.commits)
}
