// Package htmltext flattens markup into whitespace separated text.
package htmltext

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Join returns the trimmed text nodes under sel joined by single spaces,
// skipping script and style content.
// goquery's Text concatenates adjacent nodes without a separator, which
// glues "정가" and "59,000원" together when they sit in sibling tags.
func Join(sel *goquery.Selection) string {
	parts := make([]string, 0, 8)
	for _, node := range sel.Nodes {
		collect(node, &parts)
	}
	return strings.Join(parts, " ")
}

// Compact trims text and collapses inner whitespace runs.
func Compact(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func collect(node *html.Node, parts *[]string) {
	if node.Type == html.TextNode {
		if text := strings.TrimSpace(node.Data); text != "" {
			*parts = append(*parts, text)
		}
		return
	}
	if node.Type == html.CommentNode {
		return
	}
	if node.Type == html.ElementNode {
		switch node.Data {
		case "script", "style", "template":
			return
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collect(child, parts)
	}
}
