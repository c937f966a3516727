// Package detector decides when a probed page should be re-rendered in a
// headless browser before its SEO signals are extracted.
package detector

import (
	"bytes"
	"net/http"

	"github.com/JakeFAU/gridrank/internal/fetcher"
)

const defaultThreshold = 2048

// Heuristic promotes pages that look like client-rendered shells.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector. A zero threshold uses 2048 bytes.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("___gatsby"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version="),
}

var jsRequiredMarkers = [][]byte{
	[]byte("enable javascript"),
	[]byte("javascript aktivieren"),
}

// ShouldPromote reports whether the probe response is too thin to extract
// signals from. Only 200 responses are considered.
func (h *Heuristic) ShouldPromote(resp fetcher.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(lower) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, bytes.ToLower(marker)) {
			return true
		}
	}
	if bytes.Contains(lower, []byte("<noscript")) {
		for _, marker := range jsRequiredMarkers {
			if bytes.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

// scriptDensityHigh reports whether script elements cover at least a quarter
// of the lower-cased document.
func scriptDensityHigh(lower []byte) bool {
	total := len(lower)
	if total == 0 {
		return false
	}

	openTag := []byte("<script")
	closeTag := []byte("</script>")
	coverage := 0
	pos := 0
	for {
		rel := bytes.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel

		tagClose := bytes.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// malformed tag, count the rest
			coverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		next := total
		if end := bytes.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage*100/total >= 25
}
