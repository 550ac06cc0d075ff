package chunker

import (
	"strings"
)

// Word-overlap window geometry is fixed: 400-word windows advancing by
// 350 words, so consecutive windows share exactly 50 words.
const (
	windowSize    = 400
	windowOverlap = 50
	windowStride  = windowSize - windowOverlap
)

// WordOverlap chunks the full concatenated document text into
// fixed-size overlapping word windows. It ignores maxTokens and adds
// no title prefix; each window's page is that of its first word.
type WordOverlap struct{}

// Name returns the strategy's configuration name.
func (s *WordOverlap) Name() string {
	return StrategyWordOverlap
}

// Chunk emits 400-word windows with a 50-word overlap over the pages
// joined in page order. The last window may be shorter.
func (s *WordOverlap) Chunk(pages map[int]string, maxTokens int, title string) ([]Chunk, error) {
	var words []string
	var wordPage []int
	for _, page := range sortedPageNumbers(pages) {
		for _, word := range strings.Fields(pages[page]) {
			words = append(words, word)
			wordPage = append(wordPage, page)
		}
	}

	if len(words) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	for start := 0; start < len(words); start += windowStride {
		end := start + windowSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			Page: wordPage[start],
			Text: strings.Join(words[start:end], " "),
		})
		if end == len(words) {
			break
		}
	}

	if err := validateChunks(StrategyWordOverlap, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}
