package biz

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityRegistry(t *testing.T) {
	ctx := context.Background()
	registry := NewCapabilityRegistry(&CapabilityContext{})

	require.NoError(t, registry.Register("word_count", func(_ context.Context, input map[string]any, _ *CapabilityContext) (any, error) {
		text, _ := input["text"].(string)
		return len(strings.Fields(text)), nil
	}))

	t.Run("built-ins are installed", func(t *testing.T) {
		assert.Contains(t, registry.List(), "session_summary")
	})

	t.Run("list is sorted", func(t *testing.T) {
		assert.Equal(t, []string{"session_summary", "word_count"}, registry.List())
	})

	t.Run("duplicate registration is rejected", func(t *testing.T) {
		err := registry.Register("word_count", func(context.Context, map[string]any, *CapabilityContext) (any, error) {
			return nil, nil
		})
		assert.ErrorIs(t, err, ErrCapabilityExists)
	})

	t.Run("unknown capability", func(t *testing.T) {
		_, err := registry.Invoke(ctx, "no_such_capability", nil)
		assert.ErrorIs(t, err, ErrCapabilityNotFound)
	})

	t.Run("invoke", func(t *testing.T) {
		got, err := registry.Invoke(ctx, "word_count", map[string]any{"text": "records shall be retained"})
		require.NoError(t, err)
		assert.Equal(t, 4, got)
	})
}

func TestCapabilityDelegation(t *testing.T) {
	ctx := context.Background()
	registry := NewCapabilityRegistry(&CapabilityContext{})

	require.NoError(t, registry.Register("word_count", func(_ context.Context, input map[string]any, _ *CapabilityContext) (any, error) {
		text, _ := input["text"].(string)
		return len(strings.Fields(text)), nil
	}))

	// document_stats builds on word_count through the context instead of
	// reimplementing it.
	require.NoError(t, registry.Register("document_stats", func(ctx context.Context, input map[string]any, cc *CapabilityContext) (any, error) {
		words, err := cc.Invoke(ctx, "word_count", input)
		if err != nil {
			return nil, err
		}
		text, _ := input["text"].(string)
		return map[string]any{"words": words, "bytes": len(text)}, nil
	}))

	got, err := registry.Invoke(ctx, "document_stats", map[string]any{"text": "records shall be retained"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"words": 4, "bytes": 25}, got)

	t.Run("delegating to an unknown sibling fails", func(t *testing.T) {
		require.NoError(t, registry.Register("broken", func(ctx context.Context, input map[string]any, cc *CapabilityContext) (any, error) {
			return cc.Invoke(ctx, "missing", input)
		}))
		_, err := registry.Invoke(ctx, "broken", nil)
		assert.ErrorIs(t, err, ErrCapabilityNotFound)
	})
}
