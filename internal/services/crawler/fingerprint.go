package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// maxFingerprintDepth bounds traversal so pathological nesting cannot
// blow the token stream up
const maxFingerprintDepth = 40

// Tags whose subtrees carry content rather than structure. They are
// skipped entirely so text, media and form noise never perturb the
// fingerprint.
var contentLeafTags = map[string]bool{
	"span": true, "a": true, "b": true, "i": true, "em": true,
	"strong": true, "small": true, "sub": true, "sup": true,
	"mark": true, "abbr": true, "cite": true, "code": true,
	"time": true, "u": true, "s": true,
	"img": true, "input": true, "textarea": true, "select": true,
	"option": true, "label": true, "button": true,
	"br": true, "hr": true, "wbr": true,
	"svg": true, "canvas": true,
	"script": true, "style": true, "noscript": true, "template": true,
	"iframe": true, "picture": true, "source": true,
	"video": true, "audio": true, "track": true, "embed": true, "object": true,
}

// Fingerprint hashes the structural skeleton of a page. Two pages with
// the same layout hash identically even when their text, images and
// repeated-item counts differ. In strict mode element classes join the
// tag token, separating layouts that reuse tags but differ by styling
// hooks.
func Fingerprint(markup string, strict bool) (string, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("failed to parse markup: %w", err)
	}

	var tokens []string
	walkStructure(doc, strict, 0, &tokens)

	hash := sha256.Sum256([]byte(strings.Join(tokens, " ")))
	return hex.EncodeToString(hash[:]), nil
}

func walkStructure(node *html.Node, strict bool, depth int, tokens *[]string) {
	if depth > maxFingerprintDepth {
		return
	}

	// Collapse consecutive siblings with an identical structural
	// signature: a list rendered with 1 item fingerprints the same as
	// the list rendered with 50.
	lastSignature := ""
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(child.Data)
		if contentLeafTags[tag] {
			continue
		}

		signature := signatureOf(child, strict)
		if signature == lastSignature {
			continue
		}
		lastSignature = signature

		*tokens = append(*tokens, elementToken(child, strict))
		walkStructure(child, strict, depth+1, tokens)
		*tokens = append(*tokens, "/"+tag)
	}
}

func elementToken(node *html.Node, strict bool) string {
	tag := strings.ToLower(node.Data)
	if !strict {
		return tag
	}

	classes := classList(node)
	if len(classes) == 0 {
		return tag
	}
	return tag + "." + strings.Join(classes, ".")
}

func classList(node *html.Node) []string {
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Key, "class") {
			classes := strings.Fields(attr.Val)
			sort.Strings(classes)
			return classes
		}
	}
	return nil
}

// signatureOf summarizes a subtree for sibling comparison: the element
// token plus the token sequence of its structural children.
func signatureOf(node *html.Node, strict bool) string {
	var sb strings.Builder
	buildSignature(node, strict, 0, &sb)
	return sb.String()
}

func buildSignature(node *html.Node, strict bool, depth int, sb *strings.Builder) {
	if depth > maxFingerprintDepth {
		return
	}
	sb.WriteString(elementToken(node, strict))
	sb.WriteByte('(')
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		if contentLeafTags[strings.ToLower(child.Data)] {
			continue
		}
		buildSignature(child, strict, depth+1, sb)
	}
	sb.WriteByte(')')
}
