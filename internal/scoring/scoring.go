// Package scoring turns raw place and page signals into bounded, explainable
// 0..100 scores.
//
// The point values and thresholds below are compared across leads and across
// historical data. Changing any of them breaks that comparability.
package scoring

import "github.com/JakeFAU/gridrank/internal/gridrank"

// Latency thresholds shared by both scores.
const (
	FastResponseMs = 900
	SlowResponseMs = 2500
)

// PageSignals are the inputs of the on-page visibility score.
type PageSignals struct {
	HTTPS              bool
	NoIndex            bool
	HasTitle           bool
	HasMetaDescription bool
	HasH1              bool
	HasSchema          bool
	// ResponseTimeMs is the measured page latency. A nil value skips the
	// latency rule entirely.
	ResponseTimeMs *int64
}

// SignalsFromSEO maps extracted SEO signals to visibility inputs.
func SignalsFromSEO(seo gridrank.SEOSignals) PageSignals {
	latency := seo.ResponseTimeMs
	return PageSignals{
		HTTPS:              seo.HTTPS,
		NoIndex:            seo.RobotsNoindex,
		HasTitle:           seo.Title != "",
		HasMetaDescription: seo.MetaDescription != "",
		HasH1:              seo.HasH1,
		HasSchema:          seo.HasSchemaOrg,
		ResponseTimeMs:     &latency,
	}
}

// Visibility scores a page's basic search visibility. Grade is A (>=80),
// B (>=65), C (>=45) or D.
func Visibility(s PageSignals) gridrank.Score {
	score := 50
	reasons := make([]string, 0, 6)

	if s.HTTPS {
		score += 10
		reasons = append(reasons, "HTTPS")
	} else {
		score -= 10
		reasons = append(reasons, "kein HTTPS")
	}
	if s.NoIndex {
		score -= 40
		reasons = append(reasons, "noindex")
	}
	if s.HasTitle {
		score += 10
		reasons = append(reasons, "Title")
	} else {
		score -= 8
		reasons = append(reasons, "kein Title")
	}
	if s.HasMetaDescription {
		score += 6
		reasons = append(reasons, "Meta")
	} else {
		score -= 4
		reasons = append(reasons, "keine Meta")
	}
	if s.HasH1 {
		score += 4
		reasons = append(reasons, "H1")
	}
	if s.HasSchema {
		score += 6
		reasons = append(reasons, "Schema")
	}
	if s.ResponseTimeMs != nil {
		score += latencyPoints(*s.ResponseTimeMs)
	}

	score = clamp(score)
	return gridrank.Score{Score: score, Grade: grade(score), Reasons: reasons}
}

// PopularityInput are the inputs of the popularity score.
type PopularityInput struct {
	Rating          float64
	Reviews         int
	HasWebsite      bool
	VisibilityScore int
	// ResponseTimeMs <= 0 means unknown and skips the latency rule.
	ResponseTimeMs int64
}

// Popularity estimates how established a place is. Tier is high (>=80),
// medium (>=55) or low.
func Popularity(in PopularityInput) gridrank.Score {
	score := 35
	reasons := make([]string, 0, 5)

	switch {
	case in.Rating >= 4.6:
		score += 18
		reasons = append(reasons, "sehr gutes Rating")
	case in.Rating >= 4.2:
		score += 12
		reasons = append(reasons, "gutes Rating")
	case in.Rating > 0:
		score += 6
		reasons = append(reasons, "Rating vorhanden")
	}

	switch {
	case in.Reviews >= 500:
		score += 22
		reasons = append(reasons, "viele Reviews")
	case in.Reviews >= 150:
		score += 16
		reasons = append(reasons, "Reviews")
	case in.Reviews >= 30:
		score += 10
		reasons = append(reasons, "einige Reviews")
	}

	if in.HasWebsite {
		score += 8
		reasons = append(reasons, "Website")
	} else {
		score -= 10
		reasons = append(reasons, "keine Website")
	}

	switch {
	case in.VisibilityScore >= 80:
		score += 12
		reasons = append(reasons, "sehr sichtbar")
	case in.VisibilityScore >= 65:
		score += 8
		reasons = append(reasons, "sichtbar")
	case in.VisibilityScore > 0:
		score += 3
		reasons = append(reasons, "basic SEO")
	}

	if in.ResponseTimeMs > 0 {
		switch pts := latencyPoints(in.ResponseTimeMs); {
		case pts > 0:
			score += pts
			reasons = append(reasons, "schnell")
		case pts < 0:
			score += pts
			reasons = append(reasons, "langsam")
		}
	}

	score = clamp(score)
	return gridrank.Score{Score: score, Tier: tier(score), Reasons: reasons}
}

// PopularityFor scores a place from its rating data and site intel.
func PopularityFor(rating float64, reviews int, site gridrank.SiteIntel) gridrank.Score {
	return Popularity(PopularityInput{
		Rating:          rating,
		Reviews:         reviews,
		HasWebsite:      site.HasWebsite,
		VisibilityScore: site.VisibilityScore(),
		ResponseTimeMs:  site.ResponseTimeMs(),
	})
}

func latencyPoints(ms int64) int {
	switch {
	case ms < FastResponseMs:
		return 4
	case ms > SlowResponseMs:
		return -6
	default:
		return 0
	}
}

func clamp(score int) int {
	return max(0, min(100, score))
}

func grade(score int) string {
	switch {
	case score >= 80:
		return "A"
	case score >= 65:
		return "B"
	case score >= 45:
		return "C"
	default:
		return "D"
	}
}

func tier(score int) string {
	switch {
	case score >= 80:
		return "high"
	case score >= 55:
		return "medium"
	default:
		return "low"
	}
}
