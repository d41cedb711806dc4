package extractor

import (
	"strings"

	"golang.org/x/net/html"
)

// Clean collapses every run of whitespace (including non-ASCII spaces such
// as U+00A0) into a single space and trims both ends.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// skipTextOf lists elements whose text is never part of visible content.
var skipTextOf = map[string]struct{}{
	"script":   {},
	"style":    {},
	"template": {},
	"noscript": {},
}

// nodeText returns the text of every descendant text node of n, each one
// trimmed, empty ones dropped, joined by sep.
func nodeText(n *html.Node, sep string) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			if t := strings.TrimSpace(cur.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		if cur.Type == html.ElementNode {
			if _, skip := skipTextOf[cur.Data]; skip {
				return
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, sep)
}

// cleanText is the cleaned, space-separated text of n.
func cleanText(n *html.Node) string {
	if n == nil {
		return ""
	}
	return Clean(nodeText(n, " "))
}

// insideSkipped reports whether n sits below a script/style-like element.
func insideSkipped(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if _, skip := skipTextOf[p.Data]; skip {
			return true
		}
	}
	return false
}

// nextSiblingElement is the first element sibling after n.
func nextSiblingElement(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// nextElement is the first element after n in document order. Descendants
// of n come first, so for an element with children this is its first
// child element.
func nextElement(n *html.Node) *html.Node {
	for cur := following(n); cur != nil; cur = following(cur) {
		if cur.Type == html.ElementNode {
			return cur
		}
	}
	return nil
}

// following is the pre-order successor of n.
func following(n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.NextSibling != nil {
			return cur.NextSibling
		}
	}
	return nil
}
