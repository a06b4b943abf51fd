// Package dataset defines the canonical record types and the normalization
// pipeline that turns raw extracted candidates into persistable records.
package dataset

import (
	"errors"
	"time"
)

// Rejection reasons returned by Normalize. Callers match them with errors.Is;
// a rejected candidate is skipped, never fatal to the crawl.
var (
	ErrInvalidTitle     = errors.New("title missing or shorter than 3 characters")
	ErrInvalidURL       = errors.New("url missing or not absolute")
	ErrIncompleteRecord = errors.New("record missing required fields")
)

// Candidate carries the raw fields pulled off a page before validation. It
// lives only on the extraction pipeline's stack; Normalize either promotes it
// to a Record or rejects it.
type Candidate struct {
	Title       string
	Description string
	URL         string
	Tags        []string
}

// Record is the persisted dataset shape. Identity is Hash (SHA-256 of the
// lower-cased, trimmed URL); ContentHash tracks metadata changes only and
// never participates in identity.
type Record struct {
	Hash        string    `json:"hash"`
	ContentHash string    `json:"content_hash"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Tags        []string  `json:"tags"`
	Extension   string    `json:"extension,omitempty"`
	CrawlJobID  string    `json:"crawl_job_id,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
	LastCrawled time.Time `json:"last_crawled_at,omitzero"`
}

// Outcome classifies what the dedup gateway did with a record.
type Outcome string

// Gateway outcomes. Created/Updated/Unchanged are decided against the store;
// DuplicateSkipped is decided against the in-flight batch buffer only.
const (
	OutcomeCreated          Outcome = "created"
	OutcomeUpdated          Outcome = "updated"
	OutcomeUnchanged        Outcome = "unchanged"
	OutcomeDuplicateSkipped Outcome = "duplicate_skipped"
	OutcomeError            Outcome = "error"
)
