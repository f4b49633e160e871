// Package registry is the in-process, read-only table of known model
// identifiers used to resolve tags metadata for models the upstream
// backend doesn't describe in detail (spec.md §4.5).
package registry

import "strings"

// Category classifies a model for size-heuristic and tags-filtering
// purposes.
type Category string

const (
	CategoryChat      Category = "chat"
	CategoryEmbedding Category = "embedding"
	CategoryUnknown   Category = "unknown"
)

// Default size heuristics (bytes), keyed by category, used when a
// model identifier isn't present in the compiled-in table (spec.md §4.2.1).
const (
	DefaultEmbeddingSize = 500_000_000
	DefaultGPT4Size      = 20_000_000_000
	DefaultGPT35Size     = 1_500_000_000
	DefaultOtherSize     = 1_000_000_000
)

// entry is one compiled-in model description.
type entry struct {
	category      Category
	size          uint64
	contextLength int
	vision        bool
}

// knownModels is the compiled-in table of well-known OpenAI-compatible
// model identifiers. It is never mutated after package init. The
// vision column drives the /api/chat image-support gate of spec.md
// §4.2.3: only the multimodal chat models accept image content parts.
var knownModels = map[string]entry{
	"gpt-4":                  {CategoryChat, DefaultGPT4Size, 8192, false},
	"gpt-4-turbo":            {CategoryChat, DefaultGPT4Size, 128000, true},
	"gpt-4o":                 {CategoryChat, DefaultGPT4Size, 128000, true},
	"gpt-4o-mini":            {CategoryChat, 8_000_000_000, 128000, true},
	"gpt-3.5-turbo":          {CategoryChat, DefaultGPT35Size, 16385, false},
	"o1-preview":             {CategoryChat, DefaultGPT4Size, 128000, false},
	"o1-mini":                {CategoryChat, 8_000_000_000, 128000, false},
	"o3-mini":                {CategoryChat, 8_000_000_000, 200000, false},
	"text-embedding-3-small": {CategoryEmbedding, 100_000_000, 8191, false},
	"text-embedding-3-large": {CategoryEmbedding, 1_300_000_000, 8191, false},
	"text-embedding-ada-002": {CategoryEmbedding, 300_000_000, 8191, false},
}

// excludedSubstrings are case-insensitive substrings that, if present
// in a model id, exclude it from the tags listing unless the id is
// explicitly known (spec.md §4.2.1 step 5).
var excludedSubstrings = []string{
	"davinci", "curie", "babbage", "ada", "instruct", "deprecated", "preview",
}

// includedPrefixes are case-insensitive prefixes that qualify a model
// id for inclusion in the tags listing (spec.md §4.2.1 step 6).
var includedPrefixes = []string{
	"gpt-", "chatgpt-", "text-embedding-", "o1-", "o3-",
}

// CategoryOf returns the category of id from the compiled-in table.
// An id not in the table is classified by name prefix
// ("text-embedding-" is embedding, "gpt-4"/"gpt-3.5" are chat), and
// CategoryUnknown is returned when no prefix matches.
func CategoryOf(id string) Category {
	if e, ok := knownModels[id]; ok {
		return e.category
	}
	return classifyByName(id)
}

func classifyByName(id string) Category {
	lower := strings.ToLower(id)
	switch {
	case strings.HasPrefix(lower, "text-embedding-"):
		return CategoryEmbedding
	case strings.HasPrefix(lower, "gpt-4"):
		return CategoryChat
	case strings.HasPrefix(lower, "gpt-3.5"):
		return CategoryChat
	default:
		return CategoryUnknown
	}
}

// Size resolves the nominal byte size for id, preferring the
// compiled-in table and falling back to the category defaults of
// spec.md §4.2.1 step 3.
func Size(id string) uint64 {
	if e, ok := knownModels[id]; ok {
		return e.size
	}

	lower := strings.ToLower(id)
	switch {
	case strings.HasPrefix(lower, "text-embedding-"):
		return DefaultEmbeddingSize
	case strings.Contains(lower, "gpt-4"):
		return DefaultGPT4Size
	case strings.Contains(lower, "gpt-3.5"):
		return DefaultGPT35Size
	default:
		return DefaultOtherSize
	}
}

// ContextLength resolves the known context window for id, returning 0
// when unknown.
func ContextLength(id string) int {
	if e, ok := knownModels[id]; ok {
		return e.contextLength
	}
	return 0
}

// VisionCapable reports whether id accepts image content parts
// (spec.md §4.2.3). Unknown identifiers are classified by name: the
// "-o" and "-turbo" GPT-4 variants are multimodal, everything else
// (including GPT-3.5 and the o1/o3 reasoning models) is text-only.
func VisionCapable(id string) bool {
	if e, ok := knownModels[id]; ok {
		return e.vision
	}

	lower := strings.ToLower(id)
	switch {
	case strings.HasPrefix(lower, "gpt-4o"), strings.HasPrefix(lower, "gpt-4-turbo"):
		return true
	default:
		return false
	}
}

// Known reports whether id is explicitly present in the compiled-in
// table, overriding the exclusion filter of Included.
func Known(id string) bool {
	_, ok := knownModels[id]
	return ok
}

// Included reports whether id should appear in the tags listing
// (spec.md §4.2.1 steps 5-6): it must match one of the included
// prefixes and must not match an excluded substring, unless it is
// explicitly known.
func Included(id string) bool {
	if Known(id) {
		return true
	}

	lower := strings.ToLower(id)
	for _, bad := range excludedSubstrings {
		if strings.Contains(lower, bad) {
			return false
		}
	}

	for _, prefix := range includedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}

	return false
}
