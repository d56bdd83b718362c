package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	t.Run("Split at punctuation and blank lines", func(t *testing.T) {
		sentences := SplitSentences("One is here. Two? Three!\n\nFour without end")
		assert.Equal(t, []string{"One is here.", "Two?", "Three!", "Four without end"}, sentences)
	})

	t.Run("Decimal numbers are kept", func(t *testing.T) {
		sentences := SplitSentences("Accuracy was 0.93 overall. Done.")
		assert.Equal(t, []string{"Accuracy was 0.93 overall.", "Done."}, sentences)
	})

	t.Run("Leading sentences", func(t *testing.T) {
		assert.Equal(t, "A. B.", LeadingSentences("A. B. C.", 2))
		assert.Equal(t, "A.", LeadingSentences("A.", 2))
		assert.Equal(t, "", LeadingSentences("", 2))
	})
}

func TestExtractiveSummarizer(t *testing.T) {
	summarize := ExtractiveSummarizer()
	ctx := context.Background()
	text := "Transformers improve translation quality. " +
		"The weather was pleasant. " +
		"Transformers use attention for translation. " +
		"Attention helps transformers scale."

	t.Run("Summary respects max length", func(t *testing.T) {
		summary, err := summarize(ctx, text, 80)
		require.NoError(t, err)
		assert.LessOrEqual(t, len([]rune(summary)), 80)
		assert.NotEmpty(t, summary)
	})

	t.Run("Summary keeps high frequency sentences", func(t *testing.T) {
		summary, err := summarize(ctx, text, 90)
		require.NoError(t, err)
		assert.Contains(t, summary, "Transformers")
		assert.NotContains(t, summary, "weather")
	})

	t.Run("Summary is deterministic", func(t *testing.T) {
		a, _ := summarize(ctx, text, 100)
		b, _ := summarize(ctx, text, 100)
		assert.Equal(t, a, b)
	})

	t.Run("Empty text yields empty summary", func(t *testing.T) {
		summary, err := summarize(ctx, "", 100)
		require.NoError(t, err)
		assert.Empty(t, summary)
	})
}

func TestOverlapAnswerer(t *testing.T) {
	answer := OverlapAnswerer()
	ctx := context.Background()

	t.Run("Best overlapping sentence is returned", func(t *testing.T) {
		result, err := answer(ctx, "Which dataset was used for evaluation?", "We trained for ten epochs. The evaluation dataset was SQuAD. Results follow.")
		require.NoError(t, err)
		assert.Equal(t, "The evaluation dataset was SQuAD.", result.Text)
		require.NotNil(t, result.Confidence)
		assert.InDelta(t, 2.0/3.0, *result.Confidence, 0.001, "Expected two of three question keywords")
	})

	t.Run("No overlap yields zero confidence", func(t *testing.T) {
		result, err := answer(ctx, "Who funded it?", "Completely unrelated text.")
		require.NoError(t, err)
		require.NotNil(t, result.Confidence)
		assert.Equal(t, 0.0, *result.Confidence)
		assert.NotEmpty(t, result.Text)
	})
}

func TestHashingEmbedder(t *testing.T) {
	embed := HashingEmbedder(256)
	ctx := context.Background()

	t.Run("Fixed dimension and deterministic", func(t *testing.T) {
		a, err := embed(ctx, "graph neural networks")
		require.NoError(t, err)
		b, _ := embed(ctx, "graph neural networks")
		assert.Len(t, a, 256)
		assert.Equal(t, a, b)
	})

	t.Run("Shared words increase similarity", func(t *testing.T) {
		q, _ := embed(ctx, "graph neural networks")
		near, _ := embed(ctx, "neural networks on graph data")
		far, _ := embed(ctx, strings.Repeat("weather forecast ", 3))
		assert.Greater(t, cosineSimilarity(q, near), cosineSimilarity(q, far))
	})

	t.Run("Cancelled context is an error", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := embed(cancelled, "text")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTruncateRunes(t *testing.T) {
	t.Run("Short text unchanged", func(t *testing.T) {
		assert.Equal(t, "abc", TruncateRunes("abc", 5))
	})

	t.Run("Cut at word boundary", func(t *testing.T) {
		assert.Equal(t, "hello big", TruncateRunes("hello big world", 12))
	})

	t.Run("Zero max is empty", func(t *testing.T) {
		assert.Equal(t, "", TruncateRunes("abc", 0))
	})
}
