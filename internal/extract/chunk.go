package extract

import (
	"strings"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
	DefaultBudgetChars  = 1000
)

// Chunk splits text into overlapping token windows. Tokens are
// whitespace-separated words; each window holds up to size tokens and
// the window start advances by size-overlap each step, stopping once it
// reaches the token count. The function is pure: identical input always
// yields the identical ordered list.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	// A window that cannot advance would loop forever; clamp so the
	// step is always at least one token.
	if overlap >= size {
		overlap = size - 1
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	step := size - overlap
	var chunks []string
	for i := 0; i < len(tokens); i += step {
		end := i + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, strings.Join(tokens[i:end], " "))
	}

	return chunks
}

// SplitBudget splits text into chunks of at most budget characters,
// preferring to break at a sentence terminator. When the hard cut would
// land mid-sentence, the split backs up to the nearest preceding
// terminator as long as that terminator is past the midpoint of the
// window; otherwise the hard cut stands. Used for short document
// summaries where token windows are overkill.
func SplitBudget(text string, budget int) []string {
	if budget <= 0 {
		budget = DefaultBudgetChars
	}

	runes := []rune(text)
	var chunks []string

	i := 0
	for i < len(runes) {
		end := i + budget
		if end >= len(runes) {
			end = len(runes)
		} else {
			// Back up to a sentence boundary, but only within the
			// second half of the window.
			for j := end - 1; j > i+budget/2; j-- {
				if isSentenceEnd(runes[j]) {
					end = j + 1
					break
				}
			}
		}

		chunk := strings.TrimSpace(string(runes[i:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		i = end
	}

	return chunks
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}
