// Package sanitize normalises free-text metadata fields (titles,
// summaries, taglines) before they are written to the Target, so curly
// quotes, control characters, and overlong values never trip the
// Target's own validation.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// quoteMap translates "smart" typographic punctuation to its plain ASCII
// equivalent, matching the translation table Source authors commonly type
// without realising it, but which many Target APIs reject outright.
var quoteMap = map[rune]string{
	'‘': "'", '’': "'", // single quotes
	'“': `"`, '”': `"`, // double quotes
	'–': "-", '—': "-", // en/em dash
	'…': "...", // ellipsis
}

// Text applies NFC normalisation, strips Unicode control/format
// characters, maps smart punctuation to ASCII, and collapses runs of
// whitespace into single spaces.
func Text(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repl, ok := quoteMap[r]; ok {
			b.WriteString(repl)
			continue
		}
		if unicode.Is(unicode.Cc, r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		b.WriteRune(r)
	}

	return collapseWhitespace(b.String())
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// Truncate shortens s to at most limit runes, preferring to break on a
// word boundary (space) when one falls within the last 20% of the limit.
// Otherwise it breaks at the exact limit, mid-word if necessary.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	cut := limit
	boundaryFloor := limit - limit/5 // last 20% of the limit
	for i := limit; i >= boundaryFloor && i > 0; i-- {
		if unicode.IsSpace(runes[i-1]) {
			cut = i - 1
			break
		}
	}
	return strings.TrimRight(string(runes[:cut]), " ")
}

// Field applies Text then Truncate, the combined pipeline used for every
// free-text field written to the Target.
func Field(s string, limit int) string {
	return Truncate(Text(s), limit)
}
