package siteintel

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gridrank/internal/gridrank"
)

const (
	maxTitleRunes       = 180
	maxDescriptionRunes = 240
)

// ExtractSignals parses html and derives on-page SEO signals. finalURL is the
// URL the page was served from after redirects.
func ExtractSignals(html []byte, finalURL string, elapsed time.Duration) (gridrank.SEOSignals, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return gridrank.SEOSignals{}, fmt.Errorf("parse html: %w", err)
	}
	lower := bytes.ToLower(html)

	robots := strings.ToLower(metaContent(doc, "robots"))
	seo := gridrank.SEOSignals{
		FinalURL:        finalURL,
		ResponseTimeMs:  elapsed.Milliseconds(),
		ContentLength:   len(html),
		Title:           clip(collapseSpace(doc.Find("title").First().Text()), maxTitleRunes),
		MetaDescription: clip(collapseSpace(metaContent(doc, "description")), maxDescriptionRunes),
		Robots:          robots,
		RobotsNoindex:   strings.Contains(robots, "noindex") || strings.Contains(robots, "none"),
		HasH1:           doc.Find("h1").Length() > 0,
		HasOpenGraph:    doc.Find(`meta[property^="og:"]`).Length() > 0,
		HasSchemaOrg: bytes.Contains(lower, []byte("application/ld+json")) ||
			bytes.Contains(lower, []byte("schema.org")),
		HasSitemapLink: hasSitemapLink(doc),
		HTTPS:          strings.HasPrefix(strings.ToLower(finalURL), "https://"),
	}
	return seo, nil
}

// metaContent returns the content of the first <meta name=...> matching name
// case-insensitively.
func metaContent(doc *goquery.Document, name string) string {
	var content string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if n, _ := s.Attr("name"); strings.EqualFold(strings.TrimSpace(n), name) {
			content, _ = s.Attr("content")
			return false
		}
		return true
	})
	return content
}

func hasSitemapLink(doc *goquery.Document) bool {
	found := false
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		found = strings.EqualFold(strings.TrimSpace(rel), "sitemap")
		return !found
	})
	return found
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
