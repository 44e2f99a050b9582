package models

import "strings"

// Field-name driven type inference. Template region derivation and
// content extraction both consult these, so a field renders with the
// same type it was extracted as.

var richtextFieldHints = []string{
	"content", "body", "about", "details", "description", "text",
	"story", "bio", "overview", "summary", "article",
}

var imageFieldHints = []string{
	"image", "photo", "picture", "thumbnail", "thumb", "banner",
	"logo", "icon", "avatar", "hero", "cover",
}

var multiValueFieldHints = []string{
	"gallery", "images", "photos", "items", "features", "tags",
	"specs", "variants", "reviews",
}

// RegionTypeForField infers a region type from a field name: media-like
// names become image, prose-like names richtext, everything else plain
// text. Image hints win over richtext hints.
func RegionTypeForField(name string) RegionType {
	lower := strings.ToLower(name)
	for _, hint := range imageFieldHints {
		if strings.Contains(lower, hint) {
			return RegionTypeImage
		}
	}
	for _, hint := range richtextFieldHints {
		if strings.Contains(lower, hint) {
			return RegionTypeRichText
		}
	}
	return RegionTypeText
}

// IsMultiValueField reports whether a field name suggests a repeating
// value, like a gallery or a tag list
func IsMultiValueField(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range multiValueFieldHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// FieldLabel turns a field name like "product_title" into "Product Title"
func FieldLabel(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
