package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackClientPrefersPrimary(t *testing.T) {
	primary := &stubLLM{reply: "primary"}
	fallback := &stubLLM{reply: "fallback"}
	client := NewFallbackLLMClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Text)
	assert.Zero(t, fallback.calls)
}

func TestFallbackClientFallsBack(t *testing.T) {
	primary := &stubLLM{err: errors.New("throttled")}
	fallback := &stubLLM{reply: "fallback"}
	client := NewFallbackLLMClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestFallbackClientSurfacesLastError(t *testing.T) {
	primary := &stubLLM{err: errors.New("primary down")}
	fallback := &stubLLM{err: errors.New("fallback down")}
	client := NewFallbackLLMClient(primary, fallback, nil)

	_, err := client.Complete(context.Background(), LLMRequest{})
	assert.ErrorContains(t, err, "fallback down")
}

func TestFallbackClientWithoutFallback(t *testing.T) {
	primary := &stubLLM{err: errors.New("primary down")}
	client := NewFallbackLLMClient(primary, nil, nil)

	_, err := client.Complete(context.Background(), LLMRequest{})
	assert.ErrorContains(t, err, "primary down")
}
