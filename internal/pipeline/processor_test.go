package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"portfolio-go/internal/model"
	"portfolio-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memExchangeRepo struct {
	rows []model.ChatExchange
	err  error
}

func (m *memExchangeRepo) Create(_ context.Context, e *model.ChatExchange) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, *e)
	return nil
}

func (m *memExchangeRepo) List(_ context.Context, offset, limit int) ([]model.ChatExchange, int64, error) {
	return m.rows, int64(len(m.rows)), nil
}

func TestProcessStoresExchange(t *testing.T) {
	repo := &memExchangeRepo{}
	p := NewProcessor(repo)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	err := p.Process(context.Background(), tasks.ChatExchangeTask{
		ID: "1", SessionID: "s", Endpoint: "chat-simple", Selector: "gemini",
		Provider: "groq", Model: "llama-3.1-8b-instant", Attempts: 4,
		Question: "hi", Answer: "hello", CreatedAt: created,
	})
	require.NoError(t, err)
	require.Len(t, repo.rows, 1)
	assert.Equal(t, "groq", repo.rows[0].Provider)
	assert.Equal(t, 4, repo.rows[0].Attempts)
	assert.Equal(t, created, time.Time(repo.rows[0].CreatedAt))
}

func TestProcessRejectsEmptyTask(t *testing.T) {
	repo := &memExchangeRepo{}
	err := NewProcessor(repo).Process(context.Background(), tasks.ChatExchangeTask{ID: "x", Question: " "})
	assert.ErrorIs(t, err, ErrInvalidTask)
	assert.Empty(t, repo.rows)
}

func TestPublishWrapsRepositoryError(t *testing.T) {
	repo := &memExchangeRepo{err: errors.New("db down")}
	err := NewProcessor(repo).Publish(context.Background(), tasks.ChatExchangeTask{Question: "q", Answer: "a"})
	assert.ErrorContains(t, err, "db down")
}
