// Package sites loads and validates per-site crawl configurations. A config
// file carries a list of sites, each binding a start URL and domain to an
// ordered rule list and the CSS selectors used for field extraction.
package sites

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ErrNotFound signals that no site matches the requested identifier.
var ErrNotFound = errors.New("site configuration not found")

// RuleRole distinguishes links that are only followed from links that are
// followed and extracted.
type RuleRole string

// Supported rule roles.
const (
	RoleTraversal  RuleRole = "traversal"
	RoleExtraction RuleRole = "extraction"
)

// Rule is one allow/deny pattern pair bound to a role. Patterns are regular
// expressions matched against absolute URLs. Order in the site's rule list is
// significant: traversal rules expand the frontier (pagination) before
// extraction rules claim pages.
type Rule struct {
	Allow string   `mapstructure:"allow" json:"allow"`
	Deny  string   `mapstructure:"deny" json:"deny,omitempty"`
	Role  RuleRole `mapstructure:"role" json:"role"`
}

// Selectors names the page locations of the extractable fields. Tags is
// optional; Description may be absent on a given page even when configured.
type Selectors struct {
	Title       string `mapstructure:"title" json:"title"`
	Description string `mapstructure:"description" json:"description,omitempty"`
	Tags        string `mapstructure:"tags" json:"tags,omitempty"`
}

// Site is one crawl target's configuration.
type Site struct {
	ID          string    `mapstructure:"id" json:"id"`
	SourceName  string    `mapstructure:"source_name" json:"source_name"`
	Domain      string    `mapstructure:"domain" json:"domain"`
	StartURL    string    `mapstructure:"start_url" json:"start_url"`
	CrawlerType string    `mapstructure:"crawler_type" json:"crawler_type"`
	Rules       []Rule    `mapstructure:"rules" json:"rules"`
	Selectors   Selectors `mapstructure:"selectors" json:"selectors"`
}

// Registry resolves site IDs to configurations.
type Registry struct {
	sites map[string]Site
	order []string
}

// Load reads the site config file (JSON or YAML, top-level "sites" list) and
// validates every entry.
func Load(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read sites config: %w", err)
	}
	var file struct {
		Sites []Site `mapstructure:"sites"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("unmarshal sites config: %w", err)
	}
	return NewRegistry(file.Sites)
}

// NewRegistry validates the given sites and indexes them by ID and source
// name.
func NewRegistry(list []Site) (*Registry, error) {
	r := &Registry{sites: make(map[string]Site, len(list))}
	for i := range list {
		site := list[i]
		if site.CrawlerType == "" {
			site.CrawlerType = "static"
		}
		if err := site.Validate(); err != nil {
			return nil, fmt.Errorf("site %q: %w", site.ID, err)
		}
		if _, dup := r.sites[site.ID]; dup {
			return nil, fmt.Errorf("duplicate site id %q", site.ID)
		}
		r.sites[site.ID] = site
		r.order = append(r.order, site.ID)
	}
	return r, nil
}

// Get resolves a site by ID or source name.
func (r *Registry) Get(id string) (Site, error) {
	if site, ok := r.sites[id]; ok {
		return site, nil
	}
	for _, key := range r.order {
		if strings.EqualFold(r.sites[key].SourceName, id) {
			return r.sites[key], nil
		}
	}
	return Site{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns all sites in file order.
func (r *Registry) List() []Site {
	out := make([]Site, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sites[id])
	}
	return out
}

// Validate enforces the required site fields.
func (s Site) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.SourceName == "" {
		return errors.New("source_name is required")
	}
	if s.Domain == "" {
		return errors.New("domain is required")
	}
	if s.StartURL == "" {
		return errors.New("start_url is required")
	}
	if len(s.Rules) == 0 {
		return errors.New("at least one rule is required")
	}
	for i, rule := range s.Rules {
		if rule.Allow == "" {
			return fmt.Errorf("rule %d: allow pattern is required", i)
		}
		switch rule.Role {
		case RoleTraversal, RoleExtraction:
		default:
			return fmt.Errorf("rule %d: unknown role %q", i, rule.Role)
		}
	}
	if s.Selectors.Title == "" {
		return errors.New("selectors.title is required")
	}
	return nil
}

// ExtractionRules returns the rules with the extraction role, in order.
func (s Site) ExtractionRules() []Rule {
	out := make([]Rule, 0, len(s.Rules))
	for _, rule := range s.Rules {
		if rule.Role == RoleExtraction {
			out = append(out, rule)
		}
	}
	return out
}
