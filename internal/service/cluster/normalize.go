package cluster

import (
	"strings"
	"unicode"
)

// Tokens normalizes a raw label into its comparable token set: case
// folded, punctuation stripped, whitespace collapsed, and lightly
// stemmed so plural and possessive variants of the same phrase compare
// equal.
func Tokens(label string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	fields := strings.Fields(b.String())
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, stem(f))
	}
	return tokens
}

// NormalKey is the canonical comparison key for a label.
func NormalKey(label string) string {
	return strings.Join(Tokens(label), " ")
}

// stem trims possessive and plural suffixes. Intentionally shallow: an
// aggressive stemmer over-merges distinct topics, and over-merging is
// harder to undo than under-merging.
func stem(w string) string {
	w = strings.TrimSuffix(w, "'s")
	if len(w) > 3 {
		if strings.HasSuffix(w, "ies") {
			return w[:len(w)-3] + "y"
		}
		if strings.HasSuffix(w, "es") && !strings.HasSuffix(w, "ss") {
			return w[:len(w)-2]
		}
		if strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			return w[:len(w)-1]
		}
	}
	return w
}

// Jaccard is the similarity of two token sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}

	inter := 0
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			inter++
		}
	}

	union := len(set) + len(seen) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
