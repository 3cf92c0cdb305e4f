package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func TestCachedCompleterReusesSuccessfulAnswers(t *testing.T) {
	next := new(mockCompleter)
	req := CompletionRequest{Prompt: "p", Temperature: 0.2, JSON: true}
	next.On("Complete", mock.Anything, req).Return("answer", nil).Once()

	cached := NewCachedCompleter(next, 4, time.Minute)
	for i := 0; i < 3; i++ {
		text, err := cached.Complete(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "answer", text)
	}

	next.AssertExpectations(t)
	assert.Equal(t, 1, cached.Len())
}

func TestCachedCompleterDoesNotCacheErrors(t *testing.T) {
	next := new(mockCompleter)
	req := CompletionRequest{Prompt: "p"}
	next.On("Complete", mock.Anything, req).Return("", errors.New("boom")).Twice()

	cached := NewCachedCompleter(next, 4, time.Minute)
	_, err := cached.Complete(context.Background(), req)
	assert.Error(t, err)
	_, err = cached.Complete(context.Background(), req)
	assert.Error(t, err)

	next.AssertExpectations(t)
	assert.Zero(t, cached.Len())
}

func TestCacheKeyDistinguishesTemperature(t *testing.T) {
	a := cacheKey(CompletionRequest{Prompt: "p", Temperature: 0.2})
	b := cacheKey(CompletionRequest{Prompt: "p", Temperature: 0.7})
	assert.NotEqual(t, a, b)
}
