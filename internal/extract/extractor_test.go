package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendatahub/dataset-crawler/internal/sites"
)

const samplePage = `<html><body>
  <h1>Pop 2024</h1>
  <div class="desc">Population counts by district</div>
  <span class="tag">census</span>
  <span class="tag">population</span>
  <span class="tag">2024</span>
</body></html>`

func TestExtractFullPage(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(samplePage))
	require.NoError(t, err)

	cand, ok := New(0).Extract(doc, "http://x.test/item/42", sites.Selectors{
		Title:       "h1",
		Description: ".desc",
		Tags:        ".tag",
	})
	require.True(t, ok)
	require.Equal(t, "Pop 2024", cand.Title)
	require.Equal(t, "Population counts by district", cand.Description)
	require.Equal(t, "http://x.test/item/42", cand.URL)
	require.Equal(t, []string{"census", "population", "2024"}, cand.Tags)
}

func TestExtractMissingTitleAbstains(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(`<html><body><p>no heading here</p></body></html>`))
	require.NoError(t, err)

	_, ok := New(0).Extract(doc, "http://x.test/item/1", sites.Selectors{Title: "h1"})
	require.False(t, ok)
}

func TestExtractBlankTitleAbstains(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(`<html><body><h1>   </h1></body></html>`))
	require.NoError(t, err)

	_, ok := New(0).Extract(doc, "http://x.test/item/1", sites.Selectors{Title: "h1"})
	require.False(t, ok)
}

func TestExtractToleratesMissingOptionalFields(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(`<html><body><h1>Pop 2024</h1></body></html>`))
	require.NoError(t, err)

	cand, ok := New(0).Extract(doc, "http://x.test/item/42", sites.Selectors{
		Title:       "h1",
		Description: ".desc",
		Tags:        ".tag",
	})
	require.True(t, ok)
	require.Empty(t, cand.Description)
	require.Empty(t, cand.Tags)
}

func TestExtractCapsTagCandidates(t *testing.T) {
	t.Parallel()

	html := `<html><body><h1>Pop</h1>`
	for range 20 {
		html += `<span class="tag">t</span>`
	}
	html += `</body></html>`

	doc, err := Parse([]byte(html))
	require.NoError(t, err)

	cand, ok := New(5).Extract(doc, "http://x.test/item/1", sites.Selectors{Title: "h1", Tags: ".tag"})
	require.True(t, ok)
	require.Len(t, cand.Tags, 5)
}
