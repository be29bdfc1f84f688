package sentence

import (
	"strings"
)

// Highlight renders text as HTML paragraphs with the given sentence wrapped in
// a span. Paragraph breaks ("\n\n") become paragraph boundaries. The sentence
// is matched by exact string equality against the split sentences; callers
// that need to disambiguate repeated sentences should resolve the offset range
// first via ContainingRange and pass the resolved sentence.
func Highlight(text, spoken string) string {
	formatted := joinParagraphs(text)

	var b strings.Builder
	b.WriteString("<p>")
	for _, s := range Split(formatted) {
		if spoken != "" && s == spoken {
			b.WriteString(`<span class="active-sentence">`)
			b.WriteString(s)
			b.WriteString("</span> ")
		} else {
			b.WriteString(s)
			b.WriteString(" ")
		}
	}
	b.WriteString("</p>")
	return b.String()
}

// joinParagraphs converts "\n\n" separated paragraphs into "</p><p>" seams so
// the surrounding <p> wrapper yields well-formed markup.
func joinParagraphs(text string) string {
	parts := strings.Split(text, "\n\n")
	kept := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "</p><p>")
}
