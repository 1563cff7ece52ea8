package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkBasicWindow(t *testing.T) {
	chunks := Chunk("a b c d e f g h", 3, 1)
	assert.Equal(t, []string{"a b c", "c d e", "e f g", "g h"}, chunks)
}

func TestChunkEmptyText(t *testing.T) {
	assert.Nil(t, Chunk("", 512, 50))
	assert.Nil(t, Chunk("   \n\t  ", 512, 50))
}

func TestChunkSingleWindow(t *testing.T) {
	chunks := Chunk("one two three", 10, 2)
	assert.Equal(t, []string{"one two three"}, chunks)
}

func TestChunkDegenerateOverlapTerminates(t *testing.T) {
	// overlap >= size would never advance; it must be clamped, not
	// spin forever.
	chunks := Chunk("a b c d e", 2, 5)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "a b", chunks[0])
}

func TestChunkDeOverlappedConcatReconstructsTokens(t *testing.T) {
	tokens := make([]string, 137)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok%d", i)
	}
	text := strings.Join(tokens, " ")

	size, overlap := 16, 4
	chunks := Chunk(text, size, overlap)
	require.NotEmpty(t, chunks)

	// Drop each chunk's leading overlap tokens (except the first) and
	// re-join; the original token sequence must come back.
	var rebuilt []string
	for i, c := range chunks {
		parts := strings.Fields(c)
		if i > 0 && len(parts) > overlap {
			parts = parts[overlap:]
		} else if i > 0 {
			continue // fully contained in the previous window
		}
		rebuilt = append(rebuilt, parts...)
	}
	assert.Equal(t, tokens, rebuilt[:len(tokens)])
}

func TestChunkIsPure(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog again and again"
	first := Chunk(text, 4, 1)
	second := Chunk(text, 4, 1)
	assert.Equal(t, first, second)
}

func TestSplitBudgetPrefersSentenceBoundary(t *testing.T) {
	text := "First sentence here. Second sentence is a bit longer than the first one. Third."
	chunks := SplitBudget(text, 40)
	require.NotEmpty(t, chunks)

	// The first chunk should end at a terminator rather than mid-word,
	// because a terminator exists past the window midpoint.
	assert.True(t, strings.HasSuffix(chunks[0], "."), "chunk %q should end at a sentence boundary", chunks[0])
}

func TestSplitBudgetHardCutWhenNoLateBoundary(t *testing.T) {
	// One long run with no terminators at all: every chunk is a hard
	// cut at the budget.
	text := strings.Repeat("abcde ", 100)
	chunks := SplitBudget(text, 50)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 50)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestSplitBudgetNeverExceedsBudget(t *testing.T) {
	text := "Sentence one. Sentence two! Sentence three? Sentence four.\nSentence five is the longest of the whole set by a margin."
	for _, budget := range []int{20, 35, 60, 1000} {
		for _, c := range SplitBudget(text, budget) {
			assert.LessOrEqual(t, len([]rune(c)), budget, "budget %d", budget)
			assert.NotEmpty(t, c)
		}
	}
}

func TestSplitBudgetIsPure(t *testing.T) {
	text := "Alpha beta. Gamma delta! Epsilon zeta?"
	assert.Equal(t, SplitBudget(text, 25), SplitBudget(text, 25))
}

func TestSplitBudgetShortText(t *testing.T) {
	chunks := SplitBudget("tiny", 1000)
	assert.Equal(t, []string{"tiny"}, chunks)
}
