package translate

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/modelplex/ollamagw/internal/ollamaapi"
	"github.com/modelplex/ollamagw/internal/openaiapi"
	"github.com/modelplex/ollamagw/internal/registry"
)

// digestHexLen is the number of hex characters kept from the SHA-256
// sum when synthesizing a model digest (spec.md §4.2.1 step 4).
const digestHexLen = 12

// Tags converts an upstream model listing into the Ollama
// TagsResponse, applying the filtering, sizing, digest synthesis, and
// ordering rules of spec.md §4.2.1. The result is deterministic for a
// given input (L2): two calls with the same upstream models produce
// byte-identical output except timestamps are derived from each
// model's own Created field, which is itself part of the input.
func Tags(models *openaiapi.ListModelsResponse) ollamaapi.TagsResponse {
	entries := make([]ollamaapi.ModelEntry, 0, len(models.Data))

	for _, m := range models.Data {
		if !registry.Included(m.ID) {
			continue
		}

		entries = append(entries, ollamaapi.ModelEntry{
			Name:       m.ID,
			Model:      m.ID,
			ModifiedAt: formatModifiedAt(m.Created),
			Size:       registry.Size(m.ID),
			Digest:     digest(m.ID),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return ollamaapi.TagsResponse{Models: entries}
}

// formatModifiedAt converts an upstream creation epoch-seconds value
// into RFC 3339 with an explicit numeric timezone offset (I2); a bare
// "Z" suffix is never emitted here even though Go's RFC3339 constant
// would use one for UTC, because spec.md's own analysis of real Ollama
// output requires a numeric offset (see DESIGN.md Open Question log).
func formatModifiedAt(createdEpochSeconds int64) string {
	t := time.Unix(createdEpochSeconds, 0)
	return t.Format("2006-01-02T15:04:05-07:00")
}

// digest synthesizes the stable "sha256:<12hex>" identifier spec.md
// §4.2.1 step 4 and the GLOSSARY require clients to see.
func digest(modelID string) string {
	sum := sha256.Sum256([]byte("openai:" + modelID))
	return "sha256:" + hex.EncodeToString(sum[:])[:digestHexLen]
}
