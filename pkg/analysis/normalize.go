package analysis

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords never count as a shared significant word.
var stopWords = map[string]bool{
	"de": true, "del": true, "la": true, "el": true, "los": true, "las": true,
	"y": true, "en": true, "por": true, "the": true, "of": true, "and": true,
	"no": true, "num": true, "nro": true, "n": true,
}

// FoldText lowercases, strips diacritics, turns punctuation into spaces and
// collapses whitespace. "Fecha de Nacimiento." becomes "fecha de nacimiento".
func FoldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Singularize folds each word of an already folded header to its English
// singular form, so "employee names" and "employee name" compare equal.
func Singularize(folded string) string {
	words := strings.Fields(folded)
	for i, w := range words {
		words[i] = inflection.Singular(w)
	}
	return strings.Join(words, " ")
}

// HeaderForms returns the folded header and its singular form.
func HeaderForms(header string) (folded, singular string) {
	folded = FoldText(header)
	return folded, Singularize(folded)
}

// SignificantWords returns the words of a folded string that are long enough
// and not stop words.
func SignificantWords(folded string) []string {
	var out []string
	for _, w := range strings.Fields(folded) {
		if len(w) < 3 || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// ContainsWord reports whether keyword (folded, possibly multi-word) appears
// in folded text on word boundaries.
func ContainsWord(folded, keyword string) bool {
	if keyword == "" {
		return false
	}
	padded := " " + folded + " "
	return strings.Contains(padded, " "+keyword+" ")
}
