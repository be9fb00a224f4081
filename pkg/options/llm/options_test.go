package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/compliance-x/pkg/llm"
)

type countingProvider struct {
	calls atomic.Int64
	err   error
}

func (p *countingProvider) Chat(context.Context, []llm.Message) (string, error) {
	p.calls.Add(1)
	return "", p.err
}

func (p *countingProvider) Generate(context.Context, string, string) (string, error) {
	p.calls.Add(1)
	return "", p.err
}

func (p *countingProvider) Name() string { return "counting" }

func TestNewProviderSingleAttempt(t *testing.T) {
	backend := &countingProvider{err: errors.New("rate limit exceeded")}
	llm.RegisterChatProvider("counting", func(map[string]any) (llm.ChatProvider, error) {
		return backend, nil
	})

	opts := NewOptions()
	opts.Provider = "counting"

	provider, err := opts.NewProvider()
	require.NoError(t, err)

	// The pipeline owns the retry policy; the wrapper must not add a
	// second retry layer, even for a retryable failure.
	_, err = provider.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, int64(1), backend.calls.Load())
}

func TestValidate(t *testing.T) {
	t.Run("defaults are valid with an api key", func(t *testing.T) {
		opts := NewOptions()
		opts.APIKey = "sk-test"
		assert.Empty(t, opts.Validate())
	})

	t.Run("openai requires an api key", func(t *testing.T) {
		t.Setenv("LLM_API_KEY", "")
		opts := NewOptions()
		errs := opts.Validate()
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), "api-key")
	})

	t.Run("missing model", func(t *testing.T) {
		opts := NewOptions()
		opts.APIKey = "sk-test"
		opts.Model = ""
		require.Len(t, opts.Validate(), 1)
	})
}
