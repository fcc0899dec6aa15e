package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	t.Parallel()
	counter := NewCounter()

	tests := []struct {
		name     string
		text     string
		model    string
		minCount int
		maxCount int
	}{
		{name: "short", text: "Hello, world!", model: "gpt-4", minCount: 3, maxCount: 5},
		{name: "ollama tag", text: "Hello, world!", model: "llama3:8b-instruct", minCount: 3, maxCount: 5},
		{name: "namespaced", text: "The quick brown fox jumps over the lazy dog.", model: "library/mistral:latest", minCount: 8, maxCount: 12},
		{name: "empty", text: "", model: "qwen2", minCount: 0, maxCount: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n, err := counter.CountTokens(tt.text, tt.model)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, n, tt.minCount)
			assert.LessOrEqual(t, n, tt.maxCount)
		})
	}
}

func TestNormalizeModelName(t *testing.T) {
	assert.Equal(t, "gpt-4", normalizeModelName("llama3"))
	assert.Equal(t, "gpt-4", normalizeModelName("Library/Mistral:7B"))
	assert.Equal(t, "gpt-3.5-turbo", normalizeModelName("openai/gpt-3.5-turbo"))
	assert.Equal(t, "gpt-4o", normalizeModelName("gpt-4o-mini"))
}

func TestTruncate(t *testing.T) {
	counter := NewCounter()
	text := strings.Repeat("candidate answer ", 200)

	out, cut, err := counter.Truncate(text, "llama3", 50)
	require.NoError(t, err)
	assert.True(t, cut)
	n, err := counter.CountTokens(out, "llama3")
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 50)
	assert.True(t, strings.HasPrefix(text, out))

	out, cut, err = counter.Truncate("short", "llama3", 50)
	require.NoError(t, err)
	assert.False(t, cut)
	assert.Equal(t, "short", out)

	out, cut, _ = counter.Truncate(text, "llama3", 0)
	assert.False(t, cut)
	assert.Equal(t, text, out)
}

func TestDefaultCounterCachesEncoding(t *testing.T) {
	_, err := DefaultCounter.CountTokens("a", "llama3")
	require.NoError(t, err)
	_, err = DefaultCounter.CountTokens("a", "llama3:70b")
	require.NoError(t, err)
	DefaultCounter.mu.RLock()
	defer DefaultCounter.mu.RUnlock()
	assert.Contains(t, DefaultCounter.encodingCache, "gpt-4")
}
