package llm

import (
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      string
		expectErr bool
	}{
		{
			name: "bare object",
			raw:  `{"page_type": "product"}`,
			want: `{"page_type": "product"}`,
		},
		{
			name: "fenced with language tag",
			raw:  "```json\n{\"can_share\": true}\n```",
			want: `{"can_share": true}`,
		},
		{
			name: "fenced without language tag",
			raw:  "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "leading prose",
			raw:  `Here is the analysis you asked for: {"page_type": "article", "selectors": {"title": "h1"}}`,
			want: `{"page_type": "article", "selectors": {"title": "h1"}}`,
		},
		{
			name: "trailing prose",
			raw:  `{"a": 1} Hope that helps!`,
			want: `{"a": 1}`,
		},
		{
			name: "nested braces in strings",
			raw:  `{"summary": "uses {curly} text", "n": 1}`,
			want: `{"summary": "uses {curly} text", "n": 1}`,
		},
		{
			name: "array payload",
			raw:  `[{"a": 1}, {"b": 2}]`,
			want: `[{"a": 1}, {"b": 2}]`,
		},
		{
			name:      "no JSON at all",
			raw:       "I cannot analyze this page.",
			expectErr: true,
		},
		{
			name:      "unterminated object",
			raw:       `{"a": 1`,
			expectErr: true,
		},
		{
			name:      "empty",
			raw:       "   ",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.raw)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("extractJSON(%q) expected error, got %q", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSON(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "unfenced passes through",
			raw:  "<article>{{title}}</article>",
			want: "<article>{{title}}</article>",
		},
		{
			name: "html fence removed",
			raw:  "```html\n<article>{{title}}</article>\n```",
			want: "<article>{{title}}</article>",
		},
		{
			name: "bare fence removed",
			raw:  "```\n<div></div>\n```",
			want: "<div></div>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFences(tt.raw); got != tt.want {
				t.Errorf("stripCodeFences(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
