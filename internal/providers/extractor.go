package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
)

// HTMLExtractor pulls the main article out of a webpage fetch: readability
// strips boilerplate (nav, ads, footers), then the remaining article HTML
// is converted to markdown so the chunker sees prose rather than tags.
// Falls back to converting the whole document when readability can't find
// an article body.
type HTMLExtractor struct{}

func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

func (h *HTMLExtractor) Extract(_ context.Context, data []byte, hints ExtractHints) (string, string, error) {
	base, _ := url.Parse(hints.SourceURL)
	html := string(data)

	articleHTML := html
	title := ""
	if art, err := readability.FromReader(strings.NewReader(html), base); err == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
		title = strings.TrimSpace(art.Title)
	}

	domain := ""
	if base != nil {
		domain = base.Scheme + "://" + base.Host
	}
	md, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(domain))
	if err != nil {
		return "", "", fmt.Errorf("providers: html to markdown: %w", err)
	}
	md = strings.TrimSpace(md)
	if title != "" && !strings.HasPrefix(md, "# ") {
		md = "# " + title + "\n\n" + md
	}
	return md, "text/markdown", nil
}

var _ Extractor = (*HTMLExtractor)(nil)
