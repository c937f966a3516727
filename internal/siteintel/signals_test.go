package siteintel

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html>
<head>
  <title>
    Salon   Schnitt
    Berlin
  </title>
  <meta name="Description" content="Ihr Friseur  in   Mitte">
  <meta name="robots" content="NOINDEX, follow">
  <meta property="og:title" content="Salon">
  <link rel="sitemap" href="/sitemap.xml">
  <script type="application/ld+json">{"@type":"HairSalon"}</script>
</head>
<body><h1>Willkommen</h1></body>
</html>`

func TestExtractSignals(t *testing.T) {
	t.Parallel()

	seo, err := ExtractSignals([]byte(samplePage), "https://salon.example/", 640*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, "https://salon.example/", seo.FinalURL)
	assert.Equal(t, int64(640), seo.ResponseTimeMs)
	assert.Equal(t, len(samplePage), seo.ContentLength)
	assert.Equal(t, "Salon Schnitt Berlin", seo.Title)
	assert.Equal(t, "Ihr Friseur in Mitte", seo.MetaDescription)
	assert.Equal(t, "noindex, follow", seo.Robots)
	assert.True(t, seo.RobotsNoindex)
	assert.True(t, seo.HasH1)
	assert.True(t, seo.HasOpenGraph)
	assert.True(t, seo.HasSchemaOrg)
	assert.True(t, seo.HasSitemapLink)
	assert.True(t, seo.HTTPS)
}

func TestExtractSignalsBarePage(t *testing.T) {
	t.Parallel()

	seo, err := ExtractSignals([]byte("<html><body><p>hi</p></body></html>"), "http://bare.example", 0)
	require.NoError(t, err)
	assert.Empty(t, seo.Title)
	assert.Empty(t, seo.MetaDescription)
	assert.False(t, seo.RobotsNoindex)
	assert.False(t, seo.HasH1)
	assert.False(t, seo.HasOpenGraph)
	assert.False(t, seo.HasSchemaOrg)
	assert.False(t, seo.HasSitemapLink)
	assert.False(t, seo.HTTPS)
}

func TestExtractSignalsRobotsNone(t *testing.T) {
	t.Parallel()

	seo, err := ExtractSignals([]byte(`<meta name="robots" content="none">`), "https://x.example", 0)
	require.NoError(t, err)
	assert.True(t, seo.RobotsNoindex)
}

func TestExtractSignalsClipsLongText(t *testing.T) {
	t.Parallel()

	title := strings.Repeat("ä", 300)
	desc := strings.Repeat("d", 500)
	page := `<title>` + title + `</title><meta name="description" content="` + desc + `">`
	seo, err := ExtractSignals([]byte(page), "https://x.example", 0)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ä", maxTitleRunes), seo.Title)
	assert.Len(t, seo.MetaDescription, maxDescriptionRunes)
}
