package modelcatalog

import (
	"regexp"
	"strings"
)

var (
	standardPattern    = regexp.MustCompile(`^(claude-(?:haiku|sonnet|opus)-\d+)-(\d{1,2})(?:-(?:\d{8}|latest|\d+))?$`)
	noMinorPattern     = regexp.MustCompile(`^(claude-(?:haiku|sonnet|opus)-\d+)(?:-\d{8})?$`)
	legacyPattern      = regexp.MustCompile(`^(claude)-(\d+)-(\d+)-(haiku|sonnet|opus)(?:-(?:\d{8}|latest|\d+))?$`)
	dotWithDatePattern = regexp.MustCompile(`^(claude-(?:\d+\.\d+-)?(?:haiku|sonnet|opus)(?:-\d+\.\d+)?)-\d{8}$`)
	familyPattern      = regexp.MustCompile(`(haiku|sonnet|opus)`)
)

// NormalizeModelName rewrites a client-supplied Claude model name into
// Kiro's dotted-minor-version form, stripping date and "latest" suffixes.
// Names it doesn't recognize are returned unchanged (original casing
// preserved).
func NormalizeModelName(name string) string {
	if name == "" {
		return name
	}
	lower := strings.ToLower(name)

	if m := standardPattern.FindStringSubmatch(lower); m != nil {
		return m[1] + "." + m[2]
	}
	if m := noMinorPattern.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	if m := legacyPattern.FindStringSubmatch(lower); m != nil {
		return m[1] + "-" + m[2] + "." + m[3] + "-" + m[4]
	}
	if m := dotWithDatePattern.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	return name
}

// ExtractModelFamily returns the Claude model family ("haiku", "sonnet", or
// "opus") contained in name, if any.
func ExtractModelFamily(name string) (string, bool) {
	m := familyPattern.FindString(strings.ToLower(name))
	return m, m != ""
}

// Resolution is the outcome of resolving a client-supplied model name.
type Resolution struct {
	InternalID      string
	Source          string // "hidden", "cache", or "passthrough"
	OriginalRequest string
	Normalized      string
	IsVerified      bool
}

// Resolver resolves client model names to the ID sent to Kiro: first
// against a static hidden-model alias table, then the dynamic cache, and
// finally passes the normalized name through unverified.
type Resolver struct {
	cache        *Cache
	hiddenModels map[string]string
}

// NewResolver builds a Resolver over cache and a hidden-model alias table
// (display name -> internal Kiro model ID).
func NewResolver(cache *Cache, hiddenModels map[string]string) *Resolver {
	hm := make(map[string]string, len(hiddenModels))
	for k, v := range hiddenModels {
		hm[k] = v
	}
	return &Resolver{cache: cache, hiddenModels: hm}
}

// Resolve runs the resolution pipeline for modelName.
func (r *Resolver) Resolve(modelName string) Resolution {
	normalized := NormalizeModelName(modelName)

	if internalID, ok := r.hiddenModels[normalized]; ok {
		return Resolution{
			InternalID:      internalID,
			Source:          "hidden",
			OriginalRequest: modelName,
			Normalized:      normalized,
			IsVerified:      true,
		}
	}

	if r.cache.IsValidModel(normalized) {
		return Resolution{
			InternalID:      normalized,
			Source:          "cache",
			OriginalRequest: modelName,
			Normalized:      normalized,
			IsVerified:      true,
		}
	}

	return Resolution{
		InternalID:      normalized,
		Source:          "passthrough",
		OriginalRequest: modelName,
		Normalized:      normalized,
		IsVerified:      false,
	}
}

// ModelIDForKiro resolves modelName and returns just the Kiro-bound ID.
func (r *Resolver) ModelIDForKiro(modelName string) string {
	return r.Resolve(modelName).InternalID
}
