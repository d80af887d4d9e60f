package search

import "strings"

// Stop words to filter out when checking for verbatim matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "about": true, "any": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}<>"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// matchedTerms returns the distinct query words found verbatim in document,
// in query order.
func matchedTerms(document, query string) []string {
	queryWords := tokenizeAndFilter(query)
	if len(queryWords) == 0 {
		return []string{}
	}

	docWords := make(map[string]bool)
	for _, word := range tokenizeAndFilter(document) {
		docWords[word] = true
	}

	matched := make([]string, 0, len(queryWords))
	seen := make(map[string]bool, len(queryWords))
	for _, word := range queryWords {
		if docWords[word] && !seen[word] {
			matched = append(matched, word)
			seen[word] = true
		}
	}
	return matched
}
