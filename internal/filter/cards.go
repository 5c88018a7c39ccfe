package filter

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// CardClass marks a product card element in rendered pages.
const CardClass = "product-card"

// ParseCards returns one card per product card element in a rendered page,
// in document order.
func ParseCards(r io.Reader) ([]Card, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	var cards []Card
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, CardClass) {
			cards = append(cards, cardFromNode(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return cards, nil
}

func cardFromNode(n *html.Node) Card {
	card := NewCard(getAttr(n, "data-nodes"), getAttr(n, "data-institutions"), getAttr(n, "data-category"), "")
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.ElementNode {
			switch c.Data {
			case "a":
				href := getAttr(c, "href")
				if strings.Contains(href, "doi.org") {
					if card.DOI == "" {
						card.DOI = href
					}
				} else if card.Href == "" && href != "" {
					card.Href = href
				}
			case "h1", "h2", "h3", "h4":
				if card.Title == "" {
					card.Title = strings.Join(strings.Fields(textOf(c)), " ")
				}
			}
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return card
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
