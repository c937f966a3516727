package gridrank

import "strings"

// NormalizeWebsiteURL trims raw and prefixes https:// when it has no http(s)
// scheme. Empty input yields "".
func NormalizeWebsiteURL(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return value
	}
	return "https://" + value
}

// NormalizeDomain reduces a website to its bare host: lower-cased, without
// scheme, path or a leading "www.".
func NormalizeDomain(website string) string {
	value := strings.ToLower(strings.TrimSpace(website))
	if value == "" {
		return ""
	}
	value = strings.TrimPrefix(value, "https://")
	value = strings.TrimPrefix(value, "http://")
	if i := strings.IndexByte(value, '/'); i >= 0 {
		value = value[:i]
	}
	return strings.TrimPrefix(value, "www.")
}
