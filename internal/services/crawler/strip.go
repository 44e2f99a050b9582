package crawler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Attributes kept in the analysis variant. Everything else is noise for
// structure classification.
var analysisAttrWhitelist = map[string]bool{
	"id":    true,
	"class": true,
	"href":  true,
	"src":   true,
	"alt":   true,
}

const (
	// analysisTextLimit truncates long text nodes in the analysis variant
	analysisTextLimit = 120
	// analysisSiblingSample keeps the first few of a long run of
	// identical repeated siblings and drops the rest
	analysisSiblingSample = 3
)

// StripResult carries the two reduced variants of a fetched page plus
// the stylesheet links discovered while stripping.
type StripResult struct {
	Stripped    string
	Analysis    string
	Stylesheets []string
}

// Strip produces the stripped markup variant (behavior and styling
// removed, stylesheet links recorded) and the analysis variant (further
// reduced for LLM calls).
func Strip(markup string) (*StripResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}

	var stylesheets []string
	doc.Find("link[rel='stylesheet']").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && href != "" {
			stylesheets = append(stylesheets, href)
		}
	})

	doc.Find("script, style, noscript, iframe, link, meta").Remove()
	removeComments(doc)

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				key := strings.ToLower(attr.Key)
				if strings.HasPrefix(key, "on") || strings.HasPrefix(key, "data-") {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})

	stripped, err := doc.Find("body").Html()
	if err != nil {
		return nil, fmt.Errorf("failed to render stripped markup: %w", err)
	}
	if strings.TrimSpace(stripped) == "" {
		stripped, _ = doc.Html()
	}

	analysis, err := buildAnalysisMarkup(stripped)
	if err != nil {
		return nil, err
	}

	return &StripResult{
		Stripped:    stripped,
		Analysis:    analysis,
		Stylesheets: stylesheets,
	}, nil
}

// buildAnalysisMarkup reduces stripped markup further: attribute
// whitelist, truncated text, long sibling runs sampled. The result is
// compact enough to classify without losing page structure.
func buildAnalysisMarkup(stripped string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(stripped))
	if err != nil {
		return "", fmt.Errorf("failed to parse stripped markup: %w", err)
	}

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				if analysisAttrWhitelist[strings.ToLower(attr.Key)] {
					kept = append(kept, attr)
				}
			}
			node.Attr = kept
		}
	})

	truncateTextNodes(doc)
	sampleSiblingRuns(doc)

	analysis, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("failed to render analysis markup: %w", err)
	}
	if strings.TrimSpace(analysis) == "" {
		analysis, _ = doc.Html()
	}
	return analysis, nil
}

func removeComments(doc *goquery.Document) {
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			child := node.FirstChild
			for child != nil {
				next := child.NextSibling
				if child.Type == html.CommentNode {
					node.RemoveChild(child)
				}
				child = next
			}
		}
	})
}

func truncateTextNodes(doc *goquery.Document) {
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			for child := node.FirstChild; child != nil; child = child.NextSibling {
				if child.Type == html.TextNode && len(child.Data) > analysisTextLimit {
					child.Data = truncateOnRuneBoundary(child.Data, analysisTextLimit) + "…"
				}
			}
		}
	})
}

// truncateOnRuneBoundary cuts s at no more than limit bytes without
// splitting a multi-byte rune
func truncateOnRuneBoundary(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// sampleSiblingRuns trims long runs of same-tag same-class siblings to a
// representative sample, keeping list structure visible without the bulk
func sampleSiblingRuns(doc *goquery.Document) {
	doc.Find("ul, ol, table tbody, .grid, .list").Each(func(_ int, sel *goquery.Selection) {
		children := sel.Children()
		if children.Length() <= analysisSiblingSample {
			return
		}
		children.Each(func(i int, child *goquery.Selection) {
			if i >= analysisSiblingSample {
				child.Remove()
			}
		})
	})
}
