// Package extract pulls candidate dataset fields out of fetched pages using
// per-site selectors. The page-query engine is pluggable behind the Document
// interface so the extractor never depends on a concrete HTML library.
package extract

import (
	"github.com/opendatahub/dataset-crawler/internal/dataset"
	"github.com/opendatahub/dataset-crawler/internal/sites"
)

// DefaultMaxTags bounds raw tag candidates per page to keep malformed pages
// from producing unbounded work.
const DefaultMaxTags = 5

// Document is the capability the extractor needs from a parsed page: locate
// the first text for a selector, or up to max texts.
type Document interface {
	Text(selector string) (string, bool)
	Texts(selector string, max int) []string
}

// Extractor turns a page plus field selectors into at most one candidate.
type Extractor struct {
	maxTags int
}

// New constructs an Extractor. maxTags <= 0 selects DefaultMaxTags.
func New(maxTags int) *Extractor {
	if maxTags <= 0 {
		maxTags = DefaultMaxTags
	}
	return &Extractor{maxTags: maxTags}
}

// Extract locates the configured fields on doc. A page with no title yields
// no candidate (ok=false); missing description or tags are tolerated and left
// empty. The function is pure: no fetching, no side effects.
func (e *Extractor) Extract(doc Document, pageURL string, sel sites.Selectors) (dataset.Candidate, bool) {
	title, found := doc.Text(sel.Title)
	if !found || dataset.CleanText(title) == "" {
		return dataset.Candidate{}, false
	}

	cand := dataset.Candidate{
		Title: title,
		URL:   pageURL,
	}
	if sel.Description != "" {
		if desc, ok := doc.Text(sel.Description); ok {
			cand.Description = desc
		}
	}
	if sel.Tags != "" {
		cand.Tags = doc.Texts(sel.Tags, e.maxTags)
	}
	return cand, true
}
