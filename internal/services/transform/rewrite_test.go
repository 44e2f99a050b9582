package transform

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteLinks(t *testing.T) {
	origin, err := url.Parse("https://shop.example")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{
			"absolute link becomes relative",
			`<a href="https://shop.example/products/widget">Widget</a>`,
			`<a href="/products/widget">Widget</a>`,
		},
		{
			"http variant of the origin is rewritten too",
			`<a href="http://shop.example/about">About</a>`,
			`<a href="/about">About</a>`,
		},
		{
			"bare origin becomes root",
			`<a href="https://shop.example">Home</a>`,
			`<a href="/">Home</a>`,
		},
		{
			"foreign host untouched",
			`<a href="https://other.example/page">Other</a>`,
			`<a href="https://other.example/page">Other</a>`,
		},
		{
			"longer hostname is not a match",
			`<a href="https://shop.example.evil.com/x">Evil</a>`,
			`<a href="https://shop.example.evil.com/x">Evil</a>`,
		},
		{
			"multiple links in one value",
			`<a href="https://shop.example/a">A</a> and <a href="https://shop.example/b">B</a>`,
			`<a href="/a">A</a> and <a href="/b">B</a>`,
		},
		{
			"mixed genuine and false matches",
			`<a href="https://shop.example.evil.com/x">E</a><a href="https://shop.example/y">Y</a>`,
			`<a href="https://shop.example.evil.com/x">E</a><a href="/y">Y</a>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rewriteLinks(tt.value, origin))
		})
	}
}

func TestResolveAgainst(t *testing.T) {
	assert.Equal(t, "https://cdn.example/a.jpg", resolveAgainst("https://cdn.example/a.jpg", "https://shop.example/p"))
	assert.Equal(t, "https://shop.example/img/a.jpg", resolveAgainst("/img/a.jpg", "https://shop.example/products/p"))
	assert.Equal(t, "https://shop.example/products/a.jpg", resolveAgainst("a.jpg", "https://shop.example/products/p"))
}

func TestExpandPlaceholders(t *testing.T) {
	out := expandPlaceholders(map[string]string{
		"title":   "Blue Widget",
		"heading": "Buy {{title}} today",
		"intro":   "{{heading}}!",
	})

	assert.Equal(t, "Buy Blue Widget today", out["heading"])
	assert.Equal(t, "Buy Blue Widget today!", out["intro"])
}

func TestExpandPlaceholdersUnknownNameLeftVerbatim(t *testing.T) {
	out := expandPlaceholders(map[string]string{
		"body": "See {{missing}} for details",
	})
	assert.Equal(t, "See {{missing}} for details", out["body"])
}

func TestExpandPlaceholdersCycleTerminates(t *testing.T) {
	out := expandPlaceholders(map[string]string{
		"a": "x{{b}}",
		"b": "y{{a}}",
	})

	// Bounded depth: expansion stops instead of recursing forever
	assert.NotEmpty(t, out["a"])
	assert.Contains(t, out["a"], "x")
}

func TestExpandPlaceholdersSelfReference(t *testing.T) {
	out := expandPlaceholders(map[string]string{"a": "{{a}}"})
	assert.Equal(t, "{{a}}", out["a"])
}
