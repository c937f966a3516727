package siteintel

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/gridrank/internal/gridrank"
)

// Platform names and confidence levels reported by DetectPlatform.
const (
	PlatformUnknown = "Unbekannt"

	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

type platformRule struct {
	name       string
	confidence string
	signal     string
	markers    []string
	header     string
}

// rules are evaluated in order after WordPress; the first match wins.
var rules = []platformRule{
	{name: "Shopify", confidence: ConfidenceMedium, signal: "html/shopify", markers: []string{"cdn.shopify.com", "shopify"}, header: "X-Shopify-Stage"},
	{name: "Wix", confidence: ConfidenceMedium, signal: "html:wix", markers: []string{"wix.com", "wixsite.com", "wixstatic.com"}},
	{name: "Squarespace", confidence: ConfidenceMedium, signal: "html:squarespace", markers: []string{"squarespace.com", "static.squarespace.com"}},
	{name: "Webflow", confidence: ConfidenceMedium, signal: "html:webflow", markers: []string{"webflow"}},
	{name: "Joomla", confidence: ConfidenceLow, signal: "html:joomla", markers: []string{"joomla", "/media/system/js/"}},
	{name: "TYPO3", confidence: ConfidenceLow, signal: "html:typo3", markers: []string{"typo3"}},
}

// DetectPlatform guesses the CMS or site builder behind a page. WordPress is
// reported with high confidence when at least two WordPress signals agree.
// WordPress hints that do not reach a verdict are carried into the signals of
// whatever platform matches later.
func DetectPlatform(pageURL string, headers http.Header, html []byte) gridrank.Platform {
	lowerHTML := bytes.ToLower(html)
	lowerURL := strings.ToLower(pageURL)
	contains := func(s string) bool { return bytes.Contains(lowerHTML, []byte(s)) }

	signals := make([]string, 0, 4)
	if strings.Contains(lowerURL, "wordpress.com") {
		signals = append(signals, "url:wordpress.com")
	}
	wpAssets := contains("wp-content") || contains("wp-includes") || contains("wp-json")
	if wpAssets {
		signals = append(signals, "html:wp")
	}
	if contains("generator") && contains("wordpress") {
		signals = append(signals, "meta:generator=wordpress")
	}
	if wpAssets {
		confidence := ConfidenceMedium
		if len(signals) >= 2 {
			confidence = ConfidenceHigh
		}
		return gridrank.Platform{Name: "WordPress", Confidence: confidence, Signals: signals}
	}

	for _, rule := range rules {
		matched := rule.header != "" && headers.Get(rule.header) != ""
		for _, m := range rule.markers {
			if matched {
				break
			}
			matched = contains(m)
		}
		if matched {
			return gridrank.Platform{
				Name:       rule.name,
				Confidence: rule.confidence,
				Signals:    append(signals, rule.signal),
			}
		}
	}
	return gridrank.Platform{Name: PlatformUnknown, Confidence: ConfidenceLow, Signals: signals}
}
