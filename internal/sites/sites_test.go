package sites

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validSite() Site {
	return Site{
		ID:         "x-portal",
		SourceName: "X Portal",
		Domain:     "x.test",
		StartURL:   "http://x.test/list",
		Rules: []Rule{
			{Allow: "/list", Role: RoleTraversal},
			{Allow: "/item/", Role: RoleExtraction},
		},
		Selectors: Selectors{Title: "h1"},
	}
}

func TestNewRegistryAndGet(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry([]Site{validSite()})
	require.NoError(t, err)

	site, err := reg.Get("x-portal")
	require.NoError(t, err)
	require.Equal(t, "static", site.CrawlerType)

	bySource, err := reg.Get("x portal")
	require.NoError(t, err)
	require.Equal(t, site.ID, bySource.ID)

	_, err = reg.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNewRegistryRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry([]Site{validSite(), validSite()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate site id")
}

func TestSiteValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Site)
	}{
		{"missing id", func(s *Site) { s.ID = "" }},
		{"missing source", func(s *Site) { s.SourceName = "" }},
		{"missing domain", func(s *Site) { s.Domain = "" }},
		{"missing start url", func(s *Site) { s.StartURL = "" }},
		{"no rules", func(s *Site) { s.Rules = nil }},
		{"rule without allow", func(s *Site) { s.Rules[0].Allow = "" }},
		{"rule with bad role", func(s *Site) { s.Rules[0].Role = "parse" }},
		{"missing title selector", func(s *Site) { s.Selectors.Title = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			site := validSite()
			site.CrawlerType = "static"
			tc.mutate(&site)
			require.Error(t, site.Validate())
		})
	}
}

func TestLoadFromJSONFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sites.json")
	payload := `{
	  "sites": [{
	    "id": "x-portal",
	    "source_name": "X Portal",
	    "domain": "x.test",
	    "start_url": "http://x.test/list",
	    "rules": [
	      {"allow": "/list", "role": "traversal"},
	      {"allow": "/item/", "deny": "/item/private", "role": "extraction"}
	    ],
	    "selectors": {"title": "h1", "description": ".desc", "tags": ".tag"}
	  }]
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)

	site, err := reg.Get("x-portal")
	require.NoError(t, err)
	require.Equal(t, "/item/private", site.Rules[1].Deny)
	require.Equal(t, ".tag", site.Selectors.Tags)
	require.Len(t, site.ExtractionRules(), 1)
	require.Len(t, reg.List(), 1)
}
