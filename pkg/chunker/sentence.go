package chunker

import (
	"fmt"
	"strings"
	"unicode"
)

// SentenceSplitter is the default strategy. It works per page: text is
// split into sentences, sentences are greedily packed into chunks up
// to maxTokens words, and every chunk is prefixed with ##title##.
type SentenceSplitter struct{}

// Name returns the strategy's configuration name.
func (s *SentenceSplitter) Name() string {
	return StrategySentenceSplitter
}

// Chunk splits each page independently at sentence boundaries.
// A sentence that alone exceeds maxTokens is hard-split at word
// boundaries.
func (s *SentenceSplitter) Chunk(pages map[int]string, maxTokens int, title string) ([]Chunk, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("sentence_splitter requires a positive max token count, got %d", maxTokens)
	}

	prefix := "##" + title + "## "

	var chunks []Chunk
	for _, page := range sortedPageNumbers(pages) {
		text := strings.TrimSpace(pages[page])
		if text == "" {
			continue
		}

		var current []string
		currentWords := 0
		flush := func() {
			if currentWords == 0 {
				return
			}
			chunks = append(chunks, Chunk{
				Page: page,
				Text: prefix + strings.Join(current, " "),
			})
			current = nil
			currentWords = 0
		}

		for _, sentence := range splitSentences(text) {
			words := strings.Fields(sentence)
			if len(words) == 0 {
				continue
			}

			if len(words) > maxTokens {
				// Oversized sentence: hard-split at word boundaries,
				// no overlap.
				flush()
				for start := 0; start < len(words); start += maxTokens {
					end := start + maxTokens
					if end > len(words) {
						end = len(words)
					}
					chunks = append(chunks, Chunk{
						Page: page,
						Text: prefix + strings.Join(words[start:end], " "),
					})
				}
				continue
			}

			if currentWords+len(words) > maxTokens {
				flush()
			}
			current = append(current, sentence)
			currentWords += len(words)
		}
		flush()
	}

	if err := validateChunks(StrategySentenceSplitter, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// splitSentences splits text at '.', '!' or '?' followed by
// whitespace (or end of text). Terminators stay with their sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
				continue
			}
			if sentence := strings.TrimSpace(string(runes[start : i+1])); sentence != "" {
				sentences = append(sentences, sentence)
			}
			start = i + 1
		}
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
