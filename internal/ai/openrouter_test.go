package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newOpenRouterTestProvider(t *testing.T, status int, body string) *openrouterProvider {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return &openrouterProvider{
		apiKey:  "test-key",
		baseURL: server.URL,
		client:  server.Client(),
	}
}

func TestOpenRouterGenerateParsesReply(t *testing.T) {
	p := newOpenRouterTestProvider(t, http.StatusOK,
		`{"choices":[{"message":{"content":" hello "}}]}`)
	out, err := p.Generate(context.Background(), "some-model", "prompt")
	require.NoError(t, err)
	require.Equal(t, "hello", out)
}

func TestOpenRouterGenerateClassifiesClientRejections(t *testing.T) {
	p := newOpenRouterTestProvider(t, http.StatusBadRequest, "content policy violation")
	_, err := p.Generate(context.Background(), "some-model", "prompt")
	require.True(t, IsGenerationError(err))

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	require.Contains(t, genErr.Raw, "content policy violation")
}

func TestOpenRouterGenerateKeepsServerErrorsRetryable(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusBadGateway} {
		p := newOpenRouterTestProvider(t, status, "upstream trouble")
		_, err := p.Generate(context.Background(), "some-model", "prompt")
		require.Error(t, err)
		require.False(t, IsGenerationError(err), "status %d", status)
	}
}

func TestOpenRouterGenerateEmptyChoicesFailsClosed(t *testing.T) {
	p := newOpenRouterTestProvider(t, http.StatusOK, `{"choices":[]}`)
	_, err := p.Generate(context.Background(), "some-model", "prompt")
	require.True(t, IsGenerationError(err))
}
