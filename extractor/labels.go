package extractor

import (
	"regexp"
	"strings"
)

// labelMatcher holds the patterns compiled from one label set.
type labelMatcher struct {
	labels []string

	// anchored matches a whole, already cleaned text equal to any label,
	// optionally followed by a colon.
	anchored *regexp.Regexp

	// word[i] finds labels[i] as a whole word; split[i] finds labels[i]
	// together with an optional colon and the whitespace after it.
	word  []*regexp.Regexp
	split []*regexp.Regexp
}

// compileLabels escapes every label and builds the matchers. Labels are
// plain text, so characters such as "#" or "." never act as pattern syntax.
// It returns nil when no usable label is given.
func compileLabels(labels []string) *labelMatcher {
	escaped := make([]string, 0, len(labels))
	kept := make([]string, 0, len(labels))
	for _, l := range labels {
		if strings.TrimSpace(l) == "" {
			continue
		}
		kept = append(kept, l)
		escaped = append(escaped, regexp.QuoteMeta(l))
	}
	if len(kept) == 0 {
		return nil
	}

	m := &labelMatcher{
		labels:   kept,
		anchored: regexp.MustCompile(`(?i)^(?:` + strings.Join(escaped, "|") + `)\s*:?$`),
		word:     make([]*regexp.Regexp, len(kept)),
		split:    make([]*regexp.Regexp, len(kept)),
	}
	for i, e := range escaped {
		m.word[i] = regexp.MustCompile(`(?i)\b` + e + `\b`)
		m.split[i] = regexp.MustCompile(`(?i)` + e + `\s*:?\s*`)
	}
	return m
}

// matchesWhole reports whether text, once cleaned, is exactly one of the
// labels with an optional trailing colon.
func (m *labelMatcher) matchesWhole(text string) bool {
	return m.anchored.MatchString(Clean(text))
}

// remainderAfter returns the cleaned text following the first occurrence
// of a label in text, up to the next occurrence of the same label. The
// bool is false when no label appears as a whole word or nothing follows.
func (m *labelMatcher) remainderAfter(text string) (string, bool) {
	for i := range m.labels {
		if !m.word[i].MatchString(text) {
			continue
		}
		parts := m.split[i].Split(text, 3)
		if len(parts) > 1 {
			if rest := Clean(parts[1]); rest != "" {
				return rest, true
			}
		}
	}
	return "", false
}
