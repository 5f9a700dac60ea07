package sqlite

import "strings"

// sanitiseFTSQuery converts a free-form user query into a safe FTS5 MATCH
// expression: strip FTS5-special characters, drop stop words, and use
// prefix matching (term*) for recall. An unbalanced quote or stray
// operator keyword in raw input otherwise makes SQLite return a syntax
// error instead of a result set.
func sanitiseFTSQuery(query string) string {
	replacer := strings.NewReplacer(
		`"`, ` `, `'`, ` `, `(`, ` `, `)`, ` `, `*`, ` `, `-`, ` `, `^`, ` `, `?`, ` `, `:`, ` `,
	)
	cleaned := replacer.Replace(query)
	words := strings.Fields(strings.ToLower(cleaned))

	stopWords := map[string]bool{
		"a": true, "an": true, "the": true,
		"is": true, "are": true, "was": true, "were": true, "be": true, "been": true, "being": true,
		"have": true, "has": true, "had": true,
		"do": true, "does": true, "did": true,
		"will": true, "would": true, "could": true, "should": true,
		"to": true, "of": true, "in": true, "on": true, "at": true, "by": true, "for": true,
		"with": true, "from": true, "as": true, "about": true,
		"what": true, "how": true, "when": true, "where": true, "why": true, "who": true, "which": true,
		"this": true, "that": true, "these": true, "those": true,
		"i": true, "you": true, "he": true, "she": true, "it": true, "we": true, "they": true,
		"and": true, "or": true, "but": true, "if": true, "not": true,
	}

	var terms []string
	for _, w := range words {
		if !stopWords[w] && len(w) >= 2 {
			terms = append(terms, w+"*")
		}
	}
	if len(terms) == 0 {
		return strings.ToLower(strings.TrimSpace(cleaned))
	}
	return strings.Join(terms, " OR ")
}
