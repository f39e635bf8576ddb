// Package extract applies declarative selector rules to parsed HTML,
// producing loosely-typed field bags. Extraction is best-effort by
// design: a selector that matches nothing yields an empty field, never
// an error, so that upstream markup drift degrades record quality
// instead of aborting the request.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"yorumi-backend/lib/htmlutil"
)

// FieldRule describes how to pull a single field out of a container.
// Selectors are tried in order, the first one producing a non-empty
// value wins. When Attr is empty the node's text content is taken,
// otherwise the named attribute. AttrFallbacks lists additional
// attributes to try on the same node (e.g. data-src before src).
type FieldRule struct {
	Selectors     []string
	Attr          string
	AttrFallbacks []string
}

// RuleSet pairs a container selector with per-field extraction rules.
type RuleSet struct {
	Container string
	Fields    map[string]FieldRule
}

// FieldBag is the loosely-typed output of extraction. Missing fields
// read as "".
type FieldBag map[string]string

func (b FieldBag) Get(field string) string {
	return b[field]
}

// Extract runs the rule set against a document, returning one bag per
// matched container in document order. Fields whose selectors match
// nothing are set to the empty string.
func Extract(doc *goquery.Document, rules RuleSet) []FieldBag {
	var bags []FieldBag
	doc.Find(rules.Container).Each(func(_ int, container *goquery.Selection) {
		bag := FieldBag{}
		for field, rule := range rules.Fields {
			bag[field] = extractField(container, rule)
		}
		bags = append(bags, bag)
	})
	return bags
}

func extractField(container *goquery.Selection, rule FieldRule) string {
	selectors := rule.Selectors
	if len(selectors) == 0 {
		// rule applies to the container node itself
		selectors = []string{""}
	}
	for _, selector := range selectors {
		target := container
		if selector != "" {
			target = container.Find(selector).First()
		}
		if target.Length() == 0 {
			continue
		}

		var value string
		if rule.Attr == "" {
			value = nodeText(target)
		} else {
			attrs := append([]string{rule.Attr}, rule.AttrFallbacks...)
			value = htmlutil.AttrOrFirst(target, attrs...)
		}
		if value != "" {
			return value
		}
	}
	return ""
}

func nodeText(sel *goquery.Selection) string {
	text := htmlutil.RemoveNonPrintable(sel.Text())
	return strings.Join(strings.Fields(text), " ")
}

// DedupeBy removes bags whose key repeats, preserving first-seen order.
// Bags with an empty key are dropped entirely, an empty key means the
// identifying selector failed and the record cannot be addressed.
func DedupeBy(bags []FieldBag, key func(FieldBag) string) []FieldBag {
	seen := make(map[string]struct{}, len(bags))
	var out []FieldBag
	for _, bag := range bags {
		k := key(bag)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, bag)
	}
	return out
}
