package pipeline

import (
	"strings"
	"unicode"
)

// SplitSentences splits text at sentence ending punctuation followed by
// whitespace and at blank lines. Sentences are trimmed, empty ones dropped.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		end := -1
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || isASCIISpace(text[i+1]) {
				end = i + 1
			}
		case '\n':
			if i+1 < len(text) && text[i+1] == '\n' {
				end = i
			}
		}
		if end < 0 {
			continue
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// LeadingSentences returns the first n sentences of text joined by a space
func LeadingSentences(text string, n int) string {
	sentences := SplitSentences(text)
	if len(sentences) > n {
		sentences = sentences[:n]
	}
	return strings.Join(sentences, " ")
}

// Tokenize returns the lower cased words of text without stop words
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := words[:0]
	for _, w := range words {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true, "by": true,
	"for": true, "from": true, "has": true, "have": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "that": true, "the": true, "this": true, "to": true, "was": true,
	"were": true, "which": true, "with": true, "we": true, "our": true, "these": true, "those": true,
	"what": true, "how": true, "why": true, "who": true, "does": true, "do": true, "did": true, "can": true,
	"not": true, "but": true, "than": true, "then": true, "there": true, "their": true, "they": true,
	"been": true, "into": true, "also": true, "such": true, "paper": true,
}
