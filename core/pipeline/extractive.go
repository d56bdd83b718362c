package pipeline

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
)

// ExtractiveSummarizer creates a summarizer that needs no model.
// Sentences are scored by the document frequency of their words and the best
// ones are returned in their original order.
func ExtractiveSummarizer() SummarizeFunc {
	return func(ctx context.Context, text string, maxLength int) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		sentences := SplitSentences(text)
		if len(sentences) == 0 {
			return "", nil
		}

		frequency := map[string]int{}
		for _, token := range Tokenize(text) {
			frequency[token]++
		}

		type scored struct {
			index int
			score float64
		}
		scores := make([]scored, len(sentences))
		for i, s := range sentences {
			tokens := Tokenize(s)
			total := 0
			for _, token := range tokens {
				total += frequency[token]
			}
			score := 0.0
			if len(tokens) > 0 {
				score = float64(total) / float64(len(tokens))
			}
			scores[i] = scored{index: i, score: score}
		}
		sort.SliceStable(scores, func(a, b int) bool {
			return scores[a].score > scores[b].score
		})

		selected := make([]bool, len(sentences))
		length := 0
		for _, s := range scores {
			l := len([]rune(sentences[s.index]))
			if length > 0 && length+1+l > maxLength {
				continue
			}
			selected[s.index] = true
			length += l + 1
		}

		var parts []string
		for i, ok := range selected {
			if ok {
				parts = append(parts, sentences[i])
			}
		}
		return TruncateRunes(strings.Join(parts, " "), maxLength), nil
	}
}

// OverlapAnswerer creates an answerer that needs no model.
// It returns the context sentence sharing the most words with the question,
// the confidence is the share of question words found in it.
func OverlapAnswerer() AnswerFunc {
	return func(ctx context.Context, question string, contextText string) (Answer, error) {
		if err := ctx.Err(); err != nil {
			return Answer{}, err
		}

		keywords := map[string]bool{}
		for _, token := range Tokenize(question) {
			keywords[token] = true
		}

		best, bestOverlap := "", 0
		for _, sentence := range SplitSentences(contextText) {
			seen := map[string]bool{}
			for _, token := range Tokenize(sentence) {
				if keywords[token] {
					seen[token] = true
				}
			}
			if len(seen) > bestOverlap {
				best, bestOverlap = sentence, len(seen)
			}
		}

		confidence := 0.0
		if len(keywords) > 0 {
			confidence = float64(bestOverlap) / float64(len(keywords))
		}
		if best == "" {
			best = "The document does not contain an answer to this question."
		}
		return Answer{Text: best, Confidence: &confidence}, nil
	}
}

// HashingEmbedder creates an embedder that needs no model.
// Tokens are hashed into dimension signed buckets.
func HashingEmbedder(dimension int) EmbedFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vector := make([]float32, dimension)
		if dimension <= 0 {
			return vector, nil
		}
		for _, token := range Tokenize(text) {
			h := fnv.New64a()
			h.Write([]byte(token))
			sum := h.Sum64()
			bucket := int(sum % uint64(dimension))
			if sum&(1<<63) != 0 {
				vector[bucket]--
			} else {
				vector[bucket]++
			}
		}
		return vector, nil
	}
}

// OfflineCapabilities returns the model free capabilities
func OfflineCapabilities(dimension int) Capabilities {
	return Capabilities{
		Summarize: ExtractiveSummarizer(),
		Embed:     HashingEmbedder(dimension),
		Answer:    OverlapAnswerer(),
	}
}
