// Package extract pulls the title, readable text, and outbound links out
// of rendered HTML.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is the distilled content of one HTML page.
type Document struct {
	Title string
	Text  string
	Links []string
}

// Parse extracts the document content from raw HTML. Links are returned as
// the raw href attribute values, in document order, unresolved.
func Parse(html string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Document{}, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	// Strip elements that contribute markup, not prose.
	doc.Find("script, style, noscript, meta, link").Remove()
	text := collapseWhitespace(doc.Find("body").Text())
	if text == "" {
		text = collapseWhitespace(doc.Selection.Text())
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		links = append(links, href)
	})

	return Document{Title: title, Text: text, Links: links}, nil
}

// collapseWhitespace squeezes runs of whitespace, including newlines, into
// single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
