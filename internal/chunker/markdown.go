package chunker

import (
	"regexp"
	"strings"
)

var headingPattern = regexp.MustCompile(`^#{1,6}\s`)

// MarkdownChunker behaves like PlainChunker but avoids splitting across a
// heading boundary unless the resulting chunk would exceed 2x the target
// size, per the heading-boundary policy.
type MarkdownChunker struct{}

func (m *MarkdownChunker) Chunk(content string, opts Options) ([]Chunk, error) {
	return slidingWindowChunk(content, opts, func(sentences []string, i int) bool {
		return isHeadingStart(sentences[i])
	})
}

// isHeadingStart reports whether a sentence's first non-blank line looks
// like a markdown ATX heading, used to prefer splitting at section starts.
func isHeadingStart(sentence string) bool {
	for _, line := range strings.Split(sentence, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		return headingPattern.MatchString(trimmed)
	}
	return false
}

var _ Chunker = (*MarkdownChunker)(nil)
