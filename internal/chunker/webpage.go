package chunker

import "regexp"

var (
	scriptStylePattern = regexp.MustCompile(`(?is)<(script|style|nav|footer|header)[^>]*>.*?</(script|style|nav|footer|header)>`)
	tagPattern         = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespacePattern  = regexp.MustCompile(`[ \t]+`)
	blankLinesPattern  = regexp.MustCompile(`\n{3,}`)
)

// WebpageChunker strips obvious boilerplate tags and HTML markup, then
// hands the remaining text to the plain chunker's sliding window. Full
// readability-grade extraction happens upstream in the HTML Extractor;
// this is a defensive fallback for content that reaches the pipeline as
// raw HTML without having gone through that extraction step.
type WebpageChunker struct {
	fallback Chunker
}

func (w *WebpageChunker) Chunk(content string, opts Options) ([]Chunk, error) {
	stripped := scriptStylePattern.ReplaceAllString(content, "")
	stripped = tagPattern.ReplaceAllString(stripped, "\n")
	stripped = whitespacePattern.ReplaceAllString(stripped, " ")
	stripped = blankLinesPattern.ReplaceAllString(stripped, "\n\n")
	return w.fallback.Chunk(stripped, opts)
}

var _ Chunker = (*WebpageChunker)(nil)
