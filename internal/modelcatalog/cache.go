// Package modelcatalog caches the Kiro model catalog and resolves
// client-supplied model names against it.
package modelcatalog

import (
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultMaxInputTokens is used when a model's token limit is unknown.
const DefaultMaxInputTokens = 200_000

// Cache holds the raw JSON model catalog returned by Kiro's
// ListAvailableModels call, keyed by modelId.
type Cache struct {
	mu         sync.RWMutex
	models     map[string][]byte
	lastUpdate time.Time
	ttl        time.Duration
}

// NewCache builds an empty cache with the given staleness TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{models: make(map[string][]byte), ttl: ttl}
}

// Update replaces the cache's discovered models wholesale from a raw JSON
// array of model objects, each expected to carry a "modelId" string field.
// Entries added by AddHiddenModel are kept unless the new list has the same ID.
func (c *Cache) Update(modelsJSON []byte) {
	models := make(map[string][]byte)
	gjson.ParseBytes(modelsJSON).ForEach(func(_, model gjson.Result) bool {
		id := model.Get("modelId").String()
		if id != "" {
			raw := make([]byte, len(model.Raw))
			copy(raw, model.Raw)
			models[id] = raw
		}
		return true
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, raw := range c.models {
		if _, replaced := models[id]; !replaced && gjson.GetBytes(raw, "_is_hidden").Bool() {
			models[id] = raw
		}
	}
	c.models = models
	c.lastUpdate = time.Now()
}

// Get returns the raw JSON object for modelID, if cached.
func (c *Cache) Get(modelID string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.models[modelID]
	return v, ok
}

// IsValidModel reports whether modelID is present in the cache.
func (c *Cache) IsValidModel(modelID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.models[modelID]
	return ok
}

// AddHiddenModel inserts a synthetic catalog entry for a display name that
// maps to an internal Kiro model ID never returned by ListAvailableModels.
// A no-op if the display name is already cached.
func (c *Cache) AddHiddenModel(displayName, internalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.models[displayName]; exists {
		return
	}

	data := []byte(`{}`)
	data, _ = sjson.SetBytes(data, "modelId", displayName)
	data, _ = sjson.SetBytes(data, "modelName", displayName)
	data, _ = sjson.SetBytes(data, "description", "Hidden model (internal: "+internalID+")")
	data, _ = sjson.SetBytes(data, "tokenLimits.maxInputTokens", DefaultMaxInputTokens)
	data, _ = sjson.SetBytes(data, "_internal_id", internalID)
	data, _ = sjson.SetBytes(data, "_is_hidden", true)
	c.models[displayName] = data
}

// GetMaxInputTokens returns the cached model's max input tokens, or
// DefaultMaxInputTokens if unknown.
func (c *Cache) GetMaxInputTokens(modelID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.models[modelID]
	if !ok {
		return DefaultMaxInputTokens
	}
	v := gjson.GetBytes(data, "tokenLimits.maxInputTokens")
	if !v.Exists() {
		return DefaultMaxInputTokens
	}
	return int(v.Int())
}

// IsEmpty reports whether the cache holds no models.
func (c *Cache) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models) == 0
}

// IsStale reports whether the cache has never been updated, or was last
// updated longer than its TTL ago.
func (c *Cache) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastUpdate.IsZero() {
		return true
	}
	return time.Since(c.lastUpdate) > c.ttl
}

// AllModelIDs returns every cached model ID, in no particular order.
func (c *Cache) AllModelIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.models))
	for id := range c.models {
		ids = append(ids, id)
	}
	return ids
}

// AllModels returns the raw JSON object for every cached model.
func (c *Cache) AllModels() [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]byte, 0, len(c.models))
	for _, v := range c.models {
		out = append(out, v)
	}
	return out
}
