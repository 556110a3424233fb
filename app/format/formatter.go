// Package format turns raw model transcripts into readable paragraphs.
package format

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultMaxSentences = 4
	DefaultMaxChars     = 700
)

var (
	speakerLabel = regexp.MustCompile(`^(\p{Lu}[\p{L}'.\-]*(?: (?:\p{Lu}[\p{L}'.\-]*|\d+)){0,2}):\s+(.+)$`)
	markerPrefix = regexp.MustCompile(`^((?:\[(?:(?i:ad)|\d{1,2}:\d{2}(?::\d{2})?)\]\s*)+)(.*)$`)
	sentenceEnd  = regexp.MustCompile(`[.!?…]+["'’”)\]]*\s+`)
)

type Formatter struct {
	maxSentences int
	maxChars     int
	titler       cases.Caser
}

func NewFormatter() *Formatter {
	return &Formatter{
		maxSentences: DefaultMaxSentences,
		maxChars:     DefaultMaxChars,
		titler:       cases.Title(language.English),
	}
}

type turn struct {
	marker string
	label  string
	text   []string
}

func (t *turn) empty() bool {
	return t.marker == "" && t.label == "" && len(t.text) == 0
}

// Run never fails; text it cannot structure is passed through as
// grouped paragraphs.
func (f *Formatter) Run(transcript string) string {
	text := norm.NFC.String(transcript)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, ">>", "\n>>")

	var paragraphs []string
	current := &turn{}

	flush := func() {
		paragraphs = append(paragraphs, f.paragraphs(current)...)
		current = &turn{}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}

		speakerChange := strings.HasPrefix(line, ">>")
		if speakerChange {
			line = strings.TrimSpace(strings.TrimPrefix(line, ">>"))
		}

		marker, rest := splitMarker(line)
		label, rest := f.splitLabel(rest)

		if speakerChange || marker != "" || label != "" {
			flush()
			current.marker = marker
			current.label = label
		}

		if rest != "" {
			current.text = append(current.text, rest)
		}
	}
	flush()

	return strings.Join(paragraphs, "\n\n")
}

func (f *Formatter) paragraphs(t *turn) []string {
	if t.empty() {
		return nil
	}

	groups := f.group(splitSentences(strings.Join(t.text, " ")))

	var head []string
	if t.marker != "" {
		head = append(head, t.marker)
	}
	if t.label != "" {
		head = append(head, t.label+":")
	}

	if len(groups) == 0 {
		return []string{strings.Join(head, " ")}
	}

	if len(head) > 0 {
		groups[0] = strings.Join(append(head, groups[0]), " ")
	}

	return groups
}

func (f *Formatter) group(sentences []string) []string {
	var groups []string
	var current []string
	length := 0

	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		if len(current) > 0 && (len(current) >= f.maxSentences || length+1+n > f.maxChars) {
			groups = append(groups, strings.Join(current, " "))
			current = nil
			length = 0
		}
		if len(current) > 0 {
			length++
		}
		current = append(current, s)
		length += n
	}

	if len(current) > 0 {
		groups = append(groups, strings.Join(current, " "))
	}

	return groups
}

func (f *Formatter) splitLabel(line string) (string, string) {
	m := speakerLabel.FindStringSubmatch(line)
	if m == nil {
		return "", line
	}
	return f.titler.String(m[1]), strings.TrimSpace(m[2])
}

func splitMarker(line string) (string, string) {
	m := markerPrefix.FindStringSubmatch(line)
	if m == nil {
		return "", line
	}

	marker := strings.Join(strings.Fields(m[1]), " ")
	marker = strings.ReplaceAll(marker, "[ad]", "[AD]")
	marker = strings.ReplaceAll(marker, "[Ad]", "[AD]")

	return marker, strings.TrimSpace(m[2])
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0

	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:m[1]]); s != "" {
			sentences = append(sentences, s)
		}
		start = m[1]
	}

	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}

	return sentences
}
