package chunker

import (
	"regexp"
	"strings"
)

// declarationPattern matches a conservative set of top-level declaration
// openers across the common scripting/systems languages this chunker
// targets (func/func/def/class/public .../fn). It is a heuristic, not a
// per-language AST: Go's own AST tooling (go/parser) only covers Go
// source, and no dependency in this module's stack ships a multi-language
// parser, so declaration boundaries are detected by regex at column zero.
var declarationPattern = regexp.MustCompile(`^(func|def|class|fn|public |private |protected |impl |struct |interface |type )\b`)

// CodeChunker emits one chunk per top-level declaration, prepending a
// context header naming the enclosing file's import lines so each chunk
// reads coherently without the rest of the file.
type CodeChunker struct{}

func (c *CodeChunker) Chunk(content string, opts Options) ([]Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	lines := strings.Split(content, "\n")
	imports := collectImportHeader(lines)

	var chunks []Chunk
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		body := strings.Join(current, "\n")
		text := body
		if imports != "" {
			text = imports + "\n\n" + body
		}
		chunks = append(chunks, Chunk{Content: text, TokenCount: estimateTokens(text)})
		current = nil
	}

	seenDecl := false
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		isTopLevel := trimmed == line && trimmed != "" // no leading indentation
		if isTopLevel && declarationPattern.MatchString(trimmed) {
			if !seenDecl {
				// Drop a preamble that holds nothing beyond the import
				// header every chunk already repeats.
				var preamble []string
				for _, l := range current {
					if t := strings.TrimSpace(l); t != "" {
						preamble = append(preamble, t)
					}
				}
				if strings.Join(preamble, "\n") == imports {
					current = nil
				}
				seenDecl = true
			}
			flush()
		}
		current = append(current, line)
	}
	flush()

	if len(chunks) == 0 {
		return slidingWindowChunk(content, opts, nil)
	}
	return chunks, nil
}

// collectImportHeader grabs leading import/use/require lines so each
// per-declaration chunk carries the file's dependency context.
func collectImportHeader(lines []string) string {
	var header []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "import"), strings.HasPrefix(trimmed, "package"),
			strings.HasPrefix(trimmed, "use "), strings.HasPrefix(trimmed, "require("),
			strings.HasPrefix(trimmed, "from "), strings.HasPrefix(trimmed, "#include"):
			header = append(header, trimmed)
		case declarationPattern.MatchString(trimmed):
			return strings.Join(header, "\n")
		}
	}
	return strings.Join(header, "\n")
}

var _ Chunker = (*CodeChunker)(nil)
