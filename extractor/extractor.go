// Package extractor locates the value that a human-readable label points
// at in HTML without a stable schema.
//
// FindValue tries three strategies in a fixed order and returns the first
// hit:
//
//  1. definition lists: a <dt> whose text is the label, paired with its <dd>
//  2. adjacency: a text node that is the label, paired with the next
//     sibling element of its parent, else the next element in the document
//  3. inline prefix: a div/span/li/p whose text contains "Label: value"
//
// Structural matches come first because they are the most precise. All
// matching is case-insensitive and every result is whitespace-collapsed.
package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// strategy is one way a label can be associated with a value. found is
// true when the strategy located the label's value, even if that value is
// empty.
type strategy func(doc *goquery.Document, m *labelMatcher) (value string, found bool)

// strategies is the fixed priority order used by FindValue.
var strategies = []strategy{
	definitionList,
	adjacentElement,
	inlinePrefix,
}

// blockSelector picks the elements searched by the inline strategy.
var blockSelector = cascadia.MustCompile("div, span, li, p")

// FindValue returns the value associated with any of labels in doc, or ""
// when no strategy finds one.
func FindValue(doc *goquery.Document, labels []string) string {
	if doc == nil {
		return ""
	}
	m := compileLabels(labels)
	if m == nil {
		return ""
	}
	for _, s := range strategies {
		if v, ok := s(doc, m); ok {
			return Clean(v)
		}
	}
	return ""
}

// FindValueHTML parses rawHTML and calls FindValue. Unparseable input
// yields "".
func FindValueHTML(rawHTML string, labels []string) string {
	doc, err := Parse(rawHTML)
	if err != nil {
		return ""
	}
	return FindValue(doc, labels)
}

// Parse builds a goquery document from raw HTML.
func Parse(rawHTML string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
}

// definitionList scans <dt> elements in document order. The first term
// whose text is a label wins, and only its paired <dd> is read.
func definitionList(doc *goquery.Document, m *labelMatcher) (string, bool) {
	var (
		value string
		found bool
	)
	doc.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		term := nodeText(dt.Nodes[0], "")
		if term == "" || !m.matchesWhole(term) {
			return true
		}
		dd := dt.NextAllFiltered("dd").First()
		if dd.Length() == 0 {
			return true
		}
		value, found = cleanText(dd.Nodes[0]), true
		return false
	})
	return value, found
}

// adjacentElement scans text nodes that consist of a label alone. For each
// one it tries the next sibling element of the label's parent, then the
// next element after the parent in document order, and stops at the first
// non-empty text.
func adjacentElement(doc *goquery.Document, m *labelMatcher) (string, bool) {
	for _, root := range doc.Nodes {
		for n := root; n != nil; n = following(n) {
			if n.Type != html.TextNode || !m.matchesWhole(n.Data) || insideSkipped(n) {
				continue
			}
			parent := n.Parent
			if parent == nil || parent.Type != html.ElementNode {
				continue
			}
			if v := cleanText(nextSiblingElement(parent)); v != "" {
				return v, true
			}
			if v := cleanText(nextElement(parent)); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// inlinePrefix scans block-like elements in document order and splits
// their flattened text on the first label occurrence.
func inlinePrefix(doc *goquery.Document, m *labelMatcher) (string, bool) {
	var (
		value string
		found bool
	)
	doc.FindMatcher(blockSelector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := cleanText(el.Nodes[0])
		if text == "" {
			return true
		}
		value, found = m.remainderAfter(text)
		return !found
	})
	return value, found
}
