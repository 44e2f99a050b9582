package crawler

import (
	"net/url"
	"sort"
	"strings"
)

// Path segments that never lead to importable content
var rejectedSegments = map[string]bool{
	"cart":     true,
	"checkout": true,
	"search":   true,
	"login":    true,
	"logout":   true,
	"signin":   true,
	"signup":   true,
	"register": true,
	"account":  true,
	"admin":    true,
	"wp-admin": true,
	"api":      true,
}

// Query parameters carrying tracking state rather than content identity
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"ref":    true,
	"mc_cid": true,
	"mc_eid": true,
}

// Normalize canonicalizes a discovered URL against the crawl root. It
// returns the canonical absolute URL and whether the URL is in scope for
// crawling. Normalization is idempotent: feeding a normalized URL back
// through produces the same string.
func Normalize(rawURL string, root *url.URL) (string, bool) {
	if root == nil {
		return "", false
	}

	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", false
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", false
	}

	// Resolve relative references against the root and drop fragments
	resolved := root.ResolveReference(parsed)
	resolved.Fragment = ""

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}

	resolved.Scheme = strings.ToLower(resolved.Scheme)
	resolved.Host = strings.ToLower(resolved.Host)
	resolved.Host = stripDefaultPort(resolved.Scheme, resolved.Host)

	if !strings.EqualFold(resolved.Host, strings.ToLower(stripDefaultPort(root.Scheme, root.Host))) {
		return "", false
	}

	path := collapseRedundantPath(resolved.Path)

	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if rejectedSegments[strings.ToLower(segment)] {
			return "", false
		}
	}

	resolved.RawQuery = normalizeQuery(resolved.Query())

	// Trailing slash carries no identity; the root collapses to the bare origin
	path = strings.TrimRight(path, "/")
	resolved.Path = path

	return resolved.String(), true
}

func stripDefaultPort(scheme, host string) string {
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

// collapseRedundantPath removes platform collection/category wrappers so
// the same product or page reached through different navigation paths
// normalizes to one URL
func collapseRedundantPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 3 {
		return path
	}

	wrapper := strings.ToLower(segments[0])
	if wrapper != "collections" && wrapper != "categories" {
		return path
	}

	for i := 2; i < len(segments); i++ {
		inner := strings.ToLower(segments[i])
		if inner == "products" || inner == "pages" || inner == "posts" {
			return "/" + strings.Join(segments[i:], "/")
		}
	}
	return path
}

func normalizeQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || trackingParams[lower] {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		for _, value := range values[key] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(key))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(value))
		}
	}
	return sb.String()
}
