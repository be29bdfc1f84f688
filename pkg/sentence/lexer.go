// Package sentence provides the text segmentation used to keep the narration
// display in sync with speech playback: splitting narration into sentences,
// locating sentences inside the accumulated buffers, and mapping speech-engine
// character offsets back to the sentence being spoken.
package sentence

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// A sentence ends with '.', '!' or '?', optionally followed by a closing quote.
var sentenceRegex = regexp.MustCompile(`[^.!?]*[.!?]["”]?`)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Split splits text into trimmed sentences. Empty or unterminated input yields
// no sentences.
func Split(text string) []string {
	matches := sentenceRegex.FindAllString(text, -1)
	if matches == nil {
		return nil
	}
	sentences := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// StartIndex returns the byte offset of the first literal occurrence of
// sentence within text, or -1 if absent. No fuzzy matching: callers must treat
// -1 as "not found, do nothing".
func StartIndex(text, sentence string) int {
	return strings.Index(text, sentence)
}

// Containing returns the sentence of text that the given character index falls
// within, after normalization. Sentences are concatenated in order; the first
// one whose cumulative end exceeds charIndex wins. A negative charIndex is
// treated as "before all sentences" and returns the first sentence, if any.
// An index past the end of the text returns "".
func Containing(charIndex int, text string) string {
	s, _, _ := ContainingRange(charIndex, text)
	return s
}

// ContainingRange is Containing plus the sentence's [start, end) offsets in
// the normalized text. The offsets disambiguate sentences that repeat
// verbatim, which plain string matching cannot.
func ContainingRange(charIndex int, text string) (sentence string, start, end int) {
	clean := Normalize(text)
	accumulated := 0
	for _, s := range Split(clean) {
		accumulated += len(s)
		if charIndex < accumulated {
			return s, accumulated - len(s), accumulated
		}
	}
	return "", -1, -1
}

// Normalize strips HTML-like tags, collapses paragraph breaks and whitespace
// runs to single spaces, and trims. Speech engines report offsets against this
// cleaned form, so all offset math happens in it.
func Normalize(text string) string {
	clean := stripTags(text)
	clean = strings.ReplaceAll(clean, "\n\n", " ")
	clean = whitespaceRegex.ReplaceAllString(clean, " ")
	return strings.TrimSpace(clean)
}

// stripTags removes markup using the HTML tokenizer, keeping only text nodes.
// Malformed input degrades gracefully: the tokenizer never fails, it just
// stops emitting tokens.
func stripTags(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return b.String()
		}
		if tt == html.TextToken {
			b.Write(z.Text())
		}
	}
}

// EnsureTerminated appends a '.' unless the trimmed text already ends in
// terminal punctuation, optionally followed by a closing quote. Narration
// chunks pass through this before entering the buffers so that the sentence
// splitter never silently drops a trailing fragment.
func EnsureTerminated(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return trimmed
	}

	last := trimmed[len(trimmed)-1:]
	if strings.ContainsAny(last, ".!?") {
		return text
	}

	// Closing quote after terminal punctuation also counts as terminated.
	runes := []rune(trimmed)
	if len(runes) >= 2 {
		lastRune := runes[len(runes)-1]
		if lastRune == '"' || lastRune == '”' {
			if strings.ContainsRune(".!?", runes[len(runes)-2]) {
				return text
			}
		}
	}

	return text + "."
}
