package rag

import (
	"sort"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/soma-edu/soma/internal/domain"
)

// DefaultMaxCitations caps the citations attached to one message.
const DefaultMaxCitations = 5

// snippetLen bounds the stored snippet of each cited chunk.
const snippetLen = 200

// Assembler converts ranked chunks into an ordered, deduplicated citation
// list bound to a message.
type Assembler struct {
	maxCitations int
}

// NewAssembler creates an Assembler; max <= 0 uses the default cap.
func NewAssembler(max int) *Assembler {
	if max <= 0 {
		max = DefaultMaxCitations
	}
	return &Assembler{maxCitations: max}
}

// Assemble ranks the chunks by relevance descending, deduplicates by chunk
// ID keeping the highest-ranked occurrence, truncates to the cap, and
// assigns zero-based display order. The result is stable and reproducible.
func (a *Assembler) Assemble(messageID string, chunks []domain.Chunk) []domain.MessageCitation {
	ranked := make([]domain.Chunk, len(chunks))
	copy(ranked, chunks)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Relevance > ranked[j].Relevance
	})

	seen := make(map[string]bool, len(ranked))
	citations := make([]domain.MessageCitation, 0, a.maxCitations)

	for _, chunk := range ranked {
		if seen[chunk.ID] {
			continue
		}
		seen[chunk.ID] = true

		citations = append(citations, domain.MessageCitation{
			ID:        uuid.NewString(),
			MessageID: messageID,
			ChunkID:   chunk.ID,
			Relevance: chunk.Relevance,
			Order:     len(citations),
			Snippet:   snippet(chunk.Content),
		})

		if len(citations) >= a.maxCitations {
			break
		}
	}

	return citations
}

// snippet truncates content to snippetLen bytes, backing off to a rune
// boundary so the stored text stays valid UTF-8.
func snippet(content string) string {
	if len(content) <= snippetLen {
		return content
	}
	n := snippetLen
	for n > 0 && !utf8.RuneStart(content[n]) {
		n--
	}
	return content[:n]
}
