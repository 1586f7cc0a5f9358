package pipeline

import (
	"regexp"
	"sort"
	"strings"
)

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z\-]{2,}`)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "if": {},
	"then": {}, "else": {}, "for": {}, "on": {}, "in": {}, "of": {},
	"to": {}, "is": {}, "am": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "with": {}, "by": {}, "as": {}, "at": {},
	"that": {}, "this": {}, "it": {}, "its": {}, "from": {}, "we": {},
	"you": {}, "i": {}, "they": {}, "he": {}, "she": {}, "them": {},
	"our": {}, "your": {}, "their": {}, "not": {}, "no": {}, "yes": {},
	"do": {}, "did": {}, "done": {}, "can": {}, "could": {}, "should": {},
}

// ExtractKeywords returns the topK most frequent non-stopword terms in
// text, most frequent first. Ties break alphabetically so output is
// deterministic.
func ExtractKeywords(text string, topK int) []string {
	if text == "" || topK <= 0 {
		return nil
	}

	freq := make(map[string]int)
	for _, token := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}
	if len(freq) == 0 {
		return nil
	}

	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > topK {
		terms = terms[:topK]
	}
	return terms
}
