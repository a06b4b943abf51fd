package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// maxTagLength drops tags that are clearly not keywords.
const maxTagLength = 50

// minTitleLength rejects titles too short to identify a dataset.
const minTitleLength = 3

var whitespaceRun = regexp.MustCompile(`\s+`)

var formatParam = regexp.MustCompile(`format=(\w+)`)

// knownExtensions is the allow-list of data file formats recognized in URL
// paths. Anything else falls through to the format= query parameter scan.
var knownExtensions = map[string]struct{}{
	"csv": {}, "json": {}, "xml": {}, "xlsx": {}, "xls": {}, "pdf": {},
	"zip": {}, "txt": {}, "geojson": {}, "shp": {}, "kml": {}, "tsv": {},
}

// CleanText trims the input and collapses internal whitespace runs, including
// embedded newlines and tabs, into single spaces.
func CleanText(s string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

// ValidateURL reports whether raw parses with both a scheme and a host.
func ValidateURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// ExtractExtension derives the data format from a dataset URL. The URL path's
// trailing dot-segment wins when it matches the allow-list; otherwise the full
// URL is scanned case-insensitively for a format= query token, which is used
// verbatim. Returns "" when neither yields a format.
func ExtractExtension(raw string) string {
	u, err := url.Parse(raw)
	if err == nil && strings.Contains(u.Path, ".") {
		ext := strings.ToLower(u.Path[strings.LastIndex(u.Path, ".")+1:])
		if _, ok := knownExtensions[ext]; ok {
			return ext
		}
	}
	lower := strings.ToLower(raw)
	if m := formatParam.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	return ""
}

// ProcessTags cleans each tag, drops empty or over-long results, lower-cases,
// and de-duplicates while preserving first-seen order.
func ProcessTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		cleaned := CleanText(tag)
		if cleaned == "" || len(cleaned) > maxTagLength {
			continue
		}
		cleaned = strings.ToLower(cleaned)
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

// IdentityHash returns the SHA-256 hex digest of the lower-cased, trimmed URL.
// It is the record's stable primary identifier: URL defines identity, not
// content.
func IdentityHash(rawURL string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(rawURL))))
	return hex.EncodeToString(sum[:])
}

// ContentHash digests title|description|sorted-tags for change detection. A
// missing description contributes the empty string; it is never defaulted
// from the title.
func ContentHash(title, description string, tags []string) string {
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	input := fmt.Sprintf("%s|%s|%s",
		strings.ToLower(strings.TrimSpace(title)),
		strings.ToLower(strings.TrimSpace(description)),
		strings.ToLower(strings.Join(sorted, ",")),
	)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Normalize validates and canonicalizes a candidate into a Record. All
// failures are returned as rejection errors; nothing panics across the
// extraction boundary.
func Normalize(c Candidate, source, jobID string) (Record, error) {
	title := CleanText(c.Title)
	description := CleanText(c.Description)
	rawURL := strings.TrimSpace(c.URL)

	if len(title) < minTitleLength {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidTitle, title)
	}
	if !ValidateURL(rawURL) {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	rec := Record{
		Hash:        IdentityHash(rawURL),
		Title:       title,
		Description: description,
		URL:         rawURL,
		Source:      source,
		Tags:        ProcessTags(c.Tags),
		Extension:   ExtractExtension(rawURL),
		CrawlJobID:  jobID,
	}
	rec.ContentHash = ContentHash(rec.Title, rec.Description, rec.Tags)

	if rec.Title == "" || rec.URL == "" || rec.Hash == "" || rec.Source == "" {
		return Record{}, ErrIncompleteRecord
	}
	return rec, nil
}
