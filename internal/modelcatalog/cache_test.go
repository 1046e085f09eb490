package modelcatalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestCache_BasicLifecycle(t *testing.T) {
	cache := NewCache(time.Hour)
	assert.True(t, cache.IsEmpty())
	assert.True(t, cache.IsStale())

	models := []byte(`[
		{"modelId":"claude-sonnet-4","modelName":"Claude Sonnet 4","tokenLimits":{"maxInputTokens":200000}},
		{"modelId":"claude-haiku-4","modelName":"Claude Haiku 4","tokenLimits":{"maxInputTokens":200000}}
	]`)
	cache.Update(models)

	assert.False(t, cache.IsEmpty())
	assert.False(t, cache.IsStale())
	assert.True(t, cache.IsValidModel("claude-sonnet-4"))
	assert.True(t, cache.IsValidModel("claude-haiku-4"))
	assert.False(t, cache.IsValidModel("gpt-4"))

	model, ok := cache.Get("claude-sonnet-4")
	require.True(t, ok)
	assert.Equal(t, "Claude Sonnet 4", gjson.GetBytes(model, "modelName").String())

	assert.Equal(t, 200000, cache.GetMaxInputTokens("claude-sonnet-4"))
	assert.Equal(t, DefaultMaxInputTokens, cache.GetMaxInputTokens("unknown"))
}

func TestCache_HiddenModels(t *testing.T) {
	cache := NewCache(time.Hour)
	cache.AddHiddenModel("claude-3.7-sonnet", "CLAUDE_3_7_SONNET_20250219_V1_0")

	assert.True(t, cache.IsValidModel("claude-3.7-sonnet"))
	model, ok := cache.Get("claude-3.7-sonnet")
	require.True(t, ok)
	assert.True(t, gjson.GetBytes(model, "_is_hidden").Bool())
	assert.Equal(t, "CLAUDE_3_7_SONNET_20250219_V1_0", gjson.GetBytes(model, "_internal_id").String())
}

func TestCache_AddHiddenModelIsNoopIfAlreadyPresent(t *testing.T) {
	cache := NewCache(time.Hour)
	cache.Update([]byte(`[{"modelId":"claude-3.7-sonnet","modelName":"real"}]`))
	cache.AddHiddenModel("claude-3.7-sonnet", "SHOULD_NOT_OVERWRITE")

	model, ok := cache.Get("claude-3.7-sonnet")
	require.True(t, ok)
	assert.Equal(t, "real", gjson.GetBytes(model, "modelName").String())
}

func TestCache_IsStaleRespectsTTL(t *testing.T) {
	cache := NewCache(-time.Second)
	cache.Update([]byte(`[{"modelId":"m"}]`))
	assert.True(t, cache.IsStale())
}

func TestCache_AllModelIDs(t *testing.T) {
	cache := NewCache(time.Hour)
	cache.Update([]byte(`[{"modelId":"a"},{"modelId":"b"}]`))
	assert.ElementsMatch(t, []string{"a", "b"}, cache.AllModelIDs())
}
