package harvest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// skipTypes are JSON-LD types that describe the page rather than the product.
var skipTypes = map[string]bool{
	"BreadcrumbList": true,
	"Organization":   true,
	"WebSite":        true,
	"WebPage":        true,
	"Person":         true,
}

// ExtractSchemaOrg returns the first schema.org JSON-LD object in page that
// describes a product. Blocks that fail to decode are skipped.
func ExtractSchemaOrg(page string) (map[string]any, bool) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, false
	}
	for _, block := range ldBlocks(doc) {
		for _, obj := range ldObjects(block) {
			if !isProduct(obj) {
				continue
			}
			normalizeText(obj, "description")
			normalizeText(obj, "name")
			return obj, true
		}
	}
	return nil, false
}

// ldBlocks returns the text of every application/ld+json script, in order.
func ldBlocks(n *html.Node) []string {
	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" &&
			strings.EqualFold(strings.TrimSpace(getAttr(n, "type")), "application/ld+json") {
			var sb strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					sb.WriteString(c.Data)
				}
			}
			blocks = append(blocks, sb.String())
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return blocks
}

// ldObjects decodes a block holding one object or an array of objects.
func ldObjects(block string) []map[string]any {
	dec := json.NewDecoder(bytes.NewReader([]byte(block)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		var out []map[string]any
		for _, item := range t {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	}
	return nil
}

func isProduct(obj map[string]any) bool {
	ctx := strings.ToLower(fmt.Sprint(obj["@context"]))
	if !strings.Contains(ctx, "schema.org") {
		return false
	}
	if t, ok := obj["@type"].(string); ok && skipTypes[t] {
		return false
	}
	return true
}

// normalizeText joins a list-valued field with spaces.
func normalizeText(obj map[string]any, key string) {
	list, ok := obj[key].([]any)
	if !ok {
		return
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		parts = append(parts, fmt.Sprint(item))
	}
	obj[key] = strings.Join(parts, " ")
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
