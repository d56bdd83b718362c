package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	t.Run("Collapses horizontal whitespace", func(t *testing.T) {
		assert.Equal(t, "a b c", CleanText("a  \t b c"))
	})

	t.Run("Drops page number lines", func(t *testing.T) {
		text := "First line.\n12\nSecond line.\nPage 3 of 9\nThird line."
		cleaned := CleanText(text)
		assert.NotContains(t, cleaned, "12")
		assert.NotContains(t, cleaned, "Page 3")
		assert.Contains(t, cleaned, "Second line.")
		assert.Contains(t, cleaned, "Third line.")
	})

	t.Run("Joins hyphenated line breaks", func(t *testing.T) {
		assert.Equal(t, "an example sentence", CleanText("an exam-\nple sentence"))
	})

	t.Run("Limits blank lines", func(t *testing.T) {
		assert.Equal(t, "a\n\nb", CleanText("a\n\n\n\n\nb"))
	})

	t.Run("Empty stays empty", func(t *testing.T) {
		assert.Equal(t, "", CleanText(""))
		assert.Equal(t, "", CleanText(" \n\t "))
	})
}

func TestTextPreview(t *testing.T) {
	t.Run("Short text is returned unchanged", func(t *testing.T) {
		assert.Equal(t, "Short.", TextPreview("Short.", 100))
	})

	t.Run("Cut at sentence boundary in second half", func(t *testing.T) {
		text := "The first sentence is here. The second one is longer and gets cut."
		preview := TextPreview(text, 40)
		assert.Equal(t, "The first sentence is here.", preview)
	})

	t.Run("Ellipsis without usable boundary", func(t *testing.T) {
		text := strings.Repeat("word ", 40)
		preview := TextPreview(text, 20)
		assert.True(t, strings.HasSuffix(preview, "..."))
		assert.LessOrEqual(t, len([]rune(preview)), 23)
	})

	t.Run("Non positive max is empty", func(t *testing.T) {
		assert.Equal(t, "", TextPreview("text", 0))
	})
}
