package chunker

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// rowsPerChunk is how many data rows are grouped per chunk, beyond the
// header row every chunk repeats.
const rowsPerChunk = 50

// StructuredChunker groups CSV rows into fixed-size chunks, always
// repeating the header row so each chunk is independently interpretable.
// XLSX content is expected to already have been flattened to CSV by the
// Extractor before reaching the chunker.
type StructuredChunker struct{}

func (s *StructuredChunker) Chunk(content string, _ Options) ([]Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("chunker: parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := records[1:]
	if len(rows) == 0 {
		text := formatCSVRows([][]string{header})
		return []Chunk{{Content: text, TokenCount: estimateTokens(text)}}, nil
	}

	var chunks []Chunk
	for start := 0; start < len(rows); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(rows) {
			end = len(rows)
		}
		group := append([][]string{header}, rows[start:end]...)
		text := formatCSVRows(group)
		chunks = append(chunks, Chunk{
			Content:    text,
			TokenCount: estimateTokens(text),
			Metadata:   map[string]string{"row_start": fmt.Sprintf("%d", start), "row_end": fmt.Sprintf("%d", end)},
		})
	}
	return chunks, nil
}

func formatCSVRows(rows [][]string) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.WriteAll(rows)
	return b.String()
}

var _ Chunker = (*StructuredChunker)(nil)
