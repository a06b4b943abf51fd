package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// goqueryDocument adapts a goquery parse tree to the Document interface.
type goqueryDocument struct {
	doc *goquery.Document
}

// Parse builds a Document from raw HTML.
func Parse(body []byte) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &goqueryDocument{doc: doc}, nil
}

// Text returns the first match's text, or ok=false when the selector matches
// nothing.
func (d *goqueryDocument) Text(selector string) (string, bool) {
	sel := d.doc.Find(selector)
	if sel.Length() == 0 {
		return "", false
	}
	return sel.First().Text(), true
}

// Texts returns up to max matched texts in document order.
func (d *goqueryDocument) Texts(selector string, max int) []string {
	var out []string
	d.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = append(out, s.Text())
		return max <= 0 || len(out) < max
	})
	return out
}
