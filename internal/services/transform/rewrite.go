package transform

import (
	"context"
	"net/url"
	"strings"
)

// AssetStore sideloads a remote media file and returns the public path
// it will be served from. Implemented by the assets service.
type AssetStore interface {
	Sideload(ctx context.Context, sourceURL, jobID string) (string, error)
}

// rewriteMediaValue replaces a media URL in an extracted field value
// with its sideloaded asset-store copy. Failures leave the original
// URL in place; a missing image is cosmetic, a failed item is not.
func (s *Service) rewriteMediaValue(ctx context.Context, value, pageURL, jobID string) string {
	if value == "" || s.assets == nil {
		return value
	}

	absolute := resolveAgainst(value, pageURL)
	if absolute == "" {
		return value
	}

	local, err := s.assets.Sideload(ctx, absolute, jobID)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", absolute).Msg("Failed to sideload media, keeping original URL")
		return value
	}
	return local
}

// rewriteLinks converts same-origin absolute links inside a richtext
// value to site-relative form so imported content never points back at
// the source site
func rewriteLinks(value string, origin *url.URL) string {
	if origin == nil || value == "" {
		return value
	}

	prefixes := []string{
		origin.Scheme + "://" + origin.Host,
	}
	if origin.Scheme == "https" {
		prefixes = append(prefixes, "http://"+origin.Host)
	}

	out := value
	for _, prefix := range prefixes {
		var sb strings.Builder
		rest := out
		for {
			idx := strings.Index(rest, prefix)
			if idx < 0 {
				sb.WriteString(rest)
				break
			}
			end := idx + len(prefix)
			// Keep absolute URLs that are part of longer hostnames
			if end < len(rest) && rest[end] != '/' && rest[end] != '"' && rest[end] != '\'' && rest[end] != ' ' && rest[end] != ')' && rest[end] != '<' {
				sb.WriteString(rest[:end])
				rest = rest[end:]
				continue
			}
			sb.WriteString(rest[:idx])
			if end >= len(rest) || rest[end] != '/' {
				sb.WriteString("/")
			}
			rest = rest[end:]
		}
		out = sb.String()
	}
	return out
}

// resolveAgainst resolves a possibly-relative URL against its page
func resolveAgainst(raw, pageURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}

// maxExpansionDepth bounds placeholder substitution so cyclic field
// references terminate
const maxExpansionDepth = 5

// expandPlaceholders substitutes {{name}} references between extracted
// fields with bounded recursion. Unknown names are left verbatim.
func expandPlaceholders(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for name, value := range fields {
		out[name] = expandValue(value, fields, 0)
	}
	return out
}

func expandValue(value string, fields map[string]string, depth int) string {
	if depth >= maxExpansionDepth || !strings.Contains(value, "{{") {
		return value
	}

	var sb strings.Builder
	rest := value
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		end += start

		sb.WriteString(rest[:start])
		name := strings.TrimSpace(rest[start+2 : end])
		if replacement, ok := fields[name]; ok {
			sb.WriteString(expandValue(replacement, fields, depth+1))
		} else {
			sb.WriteString(rest[start : end+2])
		}
		rest = rest[end+2:]
	}
	return sb.String()
}
