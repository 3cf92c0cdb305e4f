package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiCompleteReadsFirstPart(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "k1", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"topics\":[]}"}]}}]}`))
	}))
	defer srv.Close()

	client := NewGeminiClient("k1", WithGeminiBaseURL(srv.URL), WithGeminiModel("gemini-test"))
	text, err := client.Complete(context.Background(), CompletionRequest{Prompt: "cluster", Temperature: 0.2, JSON: true})
	require.NoError(t, err)

	assert.Equal(t, `{"topics":[]}`, text)
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
	assert.InDelta(t, 0.2, got.GenerationConfig.Temperature, 1e-9)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "cluster", got.Contents[0].Parts[0].Text)
}

func TestGeminiEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	_, err := NewGeminiClient("k1", WithGeminiBaseURL(srv.URL)).Complete(context.Background(), CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewGeminiClient("k1", WithGeminiBaseURL(srv.URL)).Complete(context.Background(), CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
