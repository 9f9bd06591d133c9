package gallery

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldLabel lowercases a label and strips diacritics (e.g., "Jiří" -> "jiri") so
// label search is forgiving. Matching never uses it: labels stay exact keys.
func foldLabel(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return strings.ToLower(result)
}

// Search returns labels, in insertion order, whose folded form contains the
// folded query. An empty query returns every label.
func (g *Gallery) Search(query string) []string {
	q := foldLabel(strings.TrimSpace(query))

	g.mu.RLock()
	defer g.mu.RUnlock()

	labels := make([]string, 0, len(g.order))
	for _, label := range g.order {
		if q == "" || strings.Contains(foldLabel(label), q) {
			labels = append(labels, label)
		}
	}
	return labels
}
