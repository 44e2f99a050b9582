package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
)

// offlineProvider is a deterministic stand-in used when no provider API
// key is configured and by dry runs. It answers every classification
// with a generic page analysis so the pipeline stays exercisable end to
// end without network access. Extraction and comparison degrade to
// conservative defaults.
type offlineProvider struct {
	logger arbor.ILogger
}

func newOfflineProvider(logger arbor.ILogger) *offlineProvider {
	logger.Warn().Msg("No LLM provider configured; using offline provider with generic structure analysis")
	return &offlineProvider{logger: logger}
}

func (p *offlineProvider) name() string { return "offline" }

func (p *offlineProvider) complete(ctx context.Context, system, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch {
	case strings.Contains(prompt, `"page_type"`):
		return `{"page_type": "page", "fields": [{"name": "title", "type": "text"}, {"name": "content", "type": "richtext"}], "selectors": {"title": "h1", "content": "main, article, body"}, "confidence": 0.1, "summary": "offline generic analysis"}`, nil
	case strings.Contains(prompt, `"can_share"`):
		return `{"can_share": false, "reason": "offline provider never merges templates"}`, nil
	case strings.Contains(prompt, "Extract the listed fields"):
		return `{}`, nil
	case strings.Contains(prompt, "Write a clean HTML template"):
		return `<article><h1>{{title}}</h1><div>{{content}}</div></article>`, nil
	default:
		return "", fmt.Errorf("offline provider cannot answer this prompt")
	}
}

func (p *offlineProvider) healthCheck(ctx context.Context) error {
	return nil
}

func (p *offlineProvider) close() error {
	return nil
}
