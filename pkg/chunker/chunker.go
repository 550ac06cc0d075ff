// Package chunker splits per-page book text into embedding-sized
// chunks under a selectable strategy.
package chunker

import (
	"fmt"
	"sort"
)

// Strategy names recognized by New.
const (
	StrategySentenceSplitter = "sentence_splitter"
	StrategyWordOverlap      = "word_overlap"
)

// Chunk is one emitted span of text tagged with its source page
// number. Text is always a plain, non-empty string.
type Chunk struct {
	Page int
	Text string
}

// Strategy is a deterministic function from pages+title to a sequence
// of chunks.
type Strategy interface {
	// Name returns the strategy's configuration name.
	Name() string

	// Chunk splits the page map. maxTokens bounds the word count per
	// chunk for strategies that honor it; title is prefixed by
	// strategies that do title prefixing.
	Chunk(pages map[int]string, maxTokens int, title string) ([]Chunk, error)
}

// New constructs the strategy with the given configuration name.
func New(name string) (Strategy, error) {
	switch name {
	case StrategySentenceSplitter:
		return &SentenceSplitter{}, nil
	case StrategyWordOverlap:
		return &WordOverlap{}, nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q (supported: %s, %s)",
			name, StrategySentenceSplitter, StrategyWordOverlap)
	}
}

// DropFirstPage removes page 1 from multi-page documents; single-page
// documents are unaffected. Remaining pages keep their original
// numbers.
func DropFirstPage(pages map[int]string) map[int]string {
	if len(pages) <= 1 {
		return pages
	}
	out := make(map[int]string, len(pages)-1)
	for page, text := range pages {
		if page == 1 {
			continue
		}
		out[page] = text
	}
	return out
}

func sortedPageNumbers(pages map[int]string) []int {
	numbers := make([]int, 0, len(pages))
	for page := range pages {
		numbers = append(numbers, page)
	}
	sort.Ints(numbers)
	return numbers
}

// validateChunks fails fast at the source when a strategy would emit
// an empty chunk, instead of leaving the fix to storage.
func validateChunks(strategy string, chunks []Chunk) error {
	for i, chunk := range chunks {
		if chunk.Text == "" {
			return fmt.Errorf("%s emitted empty chunk at index %d (page %d)", strategy, i, chunk.Page)
		}
	}
	return nil
}
