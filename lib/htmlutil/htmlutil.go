package htmlutil

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

func RemoveNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// AttrOrFirst returns the first non-empty attribute value out of the
// given candidates. Lazy-loaded images keep the real source in
// data-src while src holds a placeholder, so callers usually pass
// ("data-src", "src").
func AttrOrFirst(sel *goquery.Selection, attrs ...string) string {
	for _, attr := range attrs {
		v, ok := sel.Attr(attr)
		if ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// LastPathSegment returns the final path component of a link,
// with any query string or trailing slash removed.
func LastPathSegment(link string) string {
	link, _, _ = strings.Cut(link, "?")
	link = strings.TrimRight(link, "/")
	i := strings.LastIndexByte(link, '/')
	if i < 0 {
		return link
	}
	return link[i+1:]
}
