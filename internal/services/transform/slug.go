package transform

import (
	"net/url"
	"regexp"
	"strings"
)

// HomeSlug is the reserved slug for a site's root page
const HomeSlug = "home"

var slugCleaner = regexp.MustCompile(`[^a-z0-9-]+`)
var dashRun = regexp.MustCompile(`-{2,}`)

// SlugFromURL derives a content slug from a page URL's path. The root
// page maps to the reserved "home" slug; platform prefixes like
// /products and /pages are dropped so /products/widget becomes
// "widget".
func SlugFromURL(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return slugify(pageURL)
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return HomeSlug
	}

	segments := strings.Split(path, "/")
	if len(segments) > 1 {
		switch segments[0] {
		case "products", "pages", "posts", "articles":
			segments = segments[1:]
		}
	}

	slug := slugify(strings.Join(segments, "-"))
	if slug == "" {
		return HomeSlug
	}
	return slug
}

func slugify(raw string) string {
	slug := strings.ToLower(strings.TrimSpace(raw))
	slug = slugCleaner.ReplaceAllString(slug, "-")
	slug = dashRun.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
