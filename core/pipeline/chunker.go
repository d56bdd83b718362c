package pipeline

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
)

// WindowChunker creates a chunker that splits the page segments of a document
// into overlapping windows of config.TargetSize units.
//
// The cut of every window but the last is placed at the last sentence boundary
// within config.Tolerance units before the target size, or at the target size
// when there is none. The next window starts config.Overlap units before the cut.
// Consecutive chunks always cover the text without gaps and the chunk count
// never exceeds ceil(units / (TargetSize - Overlap)).
func WindowChunker(config model.ChunkConfig) ChunkFunc {
	return func(segments []model.Segment) ([]model.Chunk, error) {
		if err := config.Validate(); err != nil {
			return nil, helper.NewError("chunk config validation", err)
		}

		text, pageStarts := joinSegments(segments)
		if strings.TrimSpace(text) == "" {
			return []model.Chunk{}, nil
		}

		bounds := unitBounds(text, config.Unit)
		windows := splitWindows(text, bounds, config)

		chunks := make([]model.Chunk, len(windows))
		for i, w := range windows {
			start, end := bounds[w[0]], bounds[w[1]]
			chunks[i] = model.Chunk{
				Index:       i,
				Content:     text[start:end],
				StartOffset: start,
				EndOffset:   end,
				PageStart:   pageAt(pageStarts, segments, start),
				PageEnd:     pageAt(pageStarts, segments, end-1),
				Units:       w[1] - w[0],
			}
		}
		return chunks, nil
	}
}

// ChunkText chunks a single text as if it was a one page document
func ChunkText(text string, config model.ChunkConfig) ([]model.Chunk, error) {
	return WindowChunker(config)([]model.Segment{{PageIndex: 0, Text: text}})
}

// JoinSegments returns the document text the chunk offsets refer to
func JoinSegments(segments []model.Segment) string {
	text, _ := joinSegments(segments)
	return text
}

// joinSegments concatenates the page texts separated by a newline and
// returns the byte offset at which every page starts.
func joinSegments(segments []model.Segment) (string, []int) {
	var sb strings.Builder
	starts := make([]int, len(segments))
	for i, s := range segments {
		if i > 0 {
			sb.WriteByte('\n')
		}
		starts[i] = sb.Len()
		sb.WriteString(s.Text)
	}
	return sb.String(), starts
}

func pageAt(pageStarts []int, segments []model.Segment, offset int) int {
	i := sort.Search(len(pageStarts), func(i int) bool { return pageStarts[i] > offset }) - 1
	if i < 0 {
		i = 0
	}
	return segments[i].PageIndex
}

// unitBounds returns the byte offset of every unit start plus len(text).
// Whitespace belongs to the preceding word in word mode.
func unitBounds(text string, unit model.ChunkUnit) []int {
	bounds := []int{}
	switch unit {
	case model.ChunkUnitWords:
		inWord := false
		for i, r := range text {
			space := unicode.IsSpace(r)
			if !space && !inWord {
				bounds = append(bounds, i)
			}
			inWord = !space
		}
		if len(bounds) > 0 {
			bounds[0] = 0
		}
	default:
		bounds = make([]int, 0, utf8.RuneCountInString(text)+1)
		for i := range text {
			bounds = append(bounds, i)
		}
	}
	return append(bounds, len(text))
}

// splitWindows returns the [start, end) unit ranges of all chunks
func splitWindows(text string, bounds []int, config model.ChunkConfig) [][2]int {
	n := len(bounds) - 1
	target, overlap := config.TargetSize, config.Overlap
	advance := target - overlap

	// Starts may lag the advance grid by at most slack units, which the
	// last chunk absorbs. This keeps the count within ceil(n/advance).
	maxChunks := (n + advance - 1) / advance
	slack := (maxChunks-1)*advance - n + target

	windows := [][2]int{}
	start := 0
	for i := 0; ; i++ {
		if n-start <= target {
			windows = append(windows, [2]int{start, n})
			return windows
		}

		hi := start + target
		lo := max(
			hi-config.Tolerance,
			start+config.MinSize,
			start+overlap+1,
			(i+1)*advance-slack+overlap,
		)

		cut := hi
		for p := hi; p >= lo; p-- {
			if isSentenceBoundary(text, bounds[p]) {
				cut = p
				break
			}
		}

		windows = append(windows, [2]int{start, cut})
		start = cut - overlap
	}
}

// isSentenceBoundary reports whether a sentence starts at byte offset b,
// that is b follows whitespace which follows sentence ending punctuation
// or a blank line.
func isSentenceBoundary(text string, b int) bool {
	if b <= 0 || b >= len(text) {
		return false
	}
	next, _ := utf8.DecodeRuneInString(text[b:])
	prev, _ := utf8.DecodeLastRuneInString(text[:b])
	if unicode.IsSpace(next) || !unicode.IsSpace(prev) {
		return false
	}

	before := strings.TrimRightFunc(text[:b], unicode.IsSpace)
	if strings.Contains(text[len(before):b], "\n\n") {
		return true
	}
	before = strings.TrimRight(before, `"')]`)
	if before == "" {
		return false
	}
	switch before[len(before)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
