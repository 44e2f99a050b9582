package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"golang.org/x/time/rate"
)

// completer is the minimal provider contract. Claude, Gemini and the
// offline provider all reduce to one prompt-in/text-out call; the typed
// operations live here, on top.
type completer interface {
	complete(ctx context.Context, system, prompt string) (string, error)
	name() string
	healthCheck(ctx context.Context) error
	close() error
}

// Service implements the content-understanding contract over any
// completer, adding prompts, rate limiting, retry and response parsing.
type Service struct {
	provider completer
	limiter  *rate.Limiter
	retry    *RetryConfig
	logger   arbor.ILogger
}

// NewService wraps a provider with rate limiting and retry
func NewService(provider completer, rateInterval time.Duration, logger arbor.ILogger) *Service {
	if rateInterval <= 0 {
		rateInterval = time.Second
	}
	return &Service{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Every(rateInterval), 1),
		retry:    NewDefaultRetryConfig(),
		logger:   logger,
	}
}

const classifySystem = `You analyze the HTML structure of web pages for a site-import tool.
Respond with JSON only, no prose.`

const classifyPrompt = `Classify this page and propose CSS selectors for its content fields.

Rules:
- "page_type" is a short noun: product, article, page, category, contact, ...
- "selectors" maps field names to CSS selectors that match the field's content
  in this markup. Prefer stable selectors (semantic tags, ids, meaningful classes).
- "fields" lists each field with a type: "text", "richtext" (prose blocks) or "image".
- "confidence" is 0..1.

Respond with JSON:
{"page_type": "...", "fields": [{"name": "...", "label": "...", "type": "...", "multiple": false}], "selectors": {"field": "css"}, "confidence": 0.9, "summary": "..."}

Markup:
%s`

// ClassifyStructure proposes a page type and selector map for a sample page
func (s *Service) ClassifyStructure(ctx context.Context, markup string) (*interfaces.StructureAnalysis, error) {
	raw, err := s.completeWithRetry(ctx, classifySystem, fmt.Sprintf(classifyPrompt, markup))
	if err != nil {
		return nil, fmt.Errorf("structure classification failed: %w", err)
	}

	var analysis interfaces.StructureAnalysis
	if err := unmarshalResponse(raw, &analysis); err != nil {
		return nil, fmt.Errorf("structure classification returned unparseable response: %w", err)
	}
	if analysis.PageType == "" || len(analysis.Selectors) == 0 {
		return nil, fmt.Errorf("structure classification returned incomplete response")
	}
	return &analysis, nil
}

const compareSystem = `You compare the structure of web pages for template deduplication.
Respond with JSON only, no prose.`

const comparePrompt = `Could the PAGE below be rendered by the TEMPLATE below, ignoring text,
image and item-count differences? Answer strictly on structure.

Respond with JSON: {"can_share": true|false, "reason": "..."}

TEMPLATE:
%s

PAGE:
%s`

// CompareStructures reports whether a page can share an existing template
func (s *Service) CompareStructures(ctx context.Context, sample, candidate string) (*interfaces.Comparison, error) {
	raw, err := s.completeWithRetry(ctx, compareSystem, fmt.Sprintf(comparePrompt, candidate, sample))
	if err != nil {
		return nil, fmt.Errorf("structure comparison failed: %w", err)
	}

	var comparison interfaces.Comparison
	if err := unmarshalResponse(raw, &comparison); err != nil {
		return nil, fmt.Errorf("structure comparison returned unparseable response: %w", err)
	}
	return &comparison, nil
}

const extractSystem = `You extract content fields from web pages for a site-import tool.
Respond with JSON only, no prose.`

const extractPrompt = `Extract the listed fields from the page content below. Return a flat
JSON object mapping each field name to its extracted string value. Use ""
for fields that are not present. Do not invent content.

Fields:
%s

Content:
%s`

// ExtractFields pulls a flat field->value map out of cleaned markup
func (s *Service) ExtractFields(ctx context.Context, markup string, fields []interfaces.FieldSpec) (map[string]string, error) {
	if len(fields) == 0 {
		return map[string]string{}, nil
	}

	var spec strings.Builder
	for _, field := range fields {
		spec.WriteString("- ")
		spec.WriteString(field.Name)
		spec.WriteString(" (")
		spec.WriteString(field.Type)
		if field.Multiple {
			spec.WriteString(", multiple values joined with \"|\"")
		}
		spec.WriteString(")")
		if field.Label != "" {
			spec.WriteString(": ")
			spec.WriteString(field.Label)
		}
		spec.WriteString("\n")
	}

	raw, err := s.completeWithRetry(ctx, extractSystem, fmt.Sprintf(extractPrompt, spec.String(), markup))
	if err != nil {
		return nil, fmt.Errorf("field extraction failed: %w", err)
	}

	values := map[string]string{}
	if err := unmarshalResponse(raw, &values); err != nil {
		return nil, fmt.Errorf("field extraction returned unparseable response: %w", err)
	}
	return values, nil
}

const templateSystem = `You write HTML page templates for a CMS.
Respond with the template code only. No explanations, no markdown fences.`

const templatePrompt = `Write a clean HTML template for a "%s" page, derived from the sample
markup below. Replace each extracted field's content with a {{name}}
placeholder using these field selectors:

%s

Keep the structural skeleton and class names of the sample. Drop
navigation, footers and scripts. Output only the template markup.

Sample:
%s`

// GenerateTemplate synthesizes template code from a sample page
func (s *Service) GenerateTemplate(ctx context.Context, sample string, selectors map[string]string, pageType string) (string, error) {
	var sel strings.Builder
	for name, css := range selectors {
		sel.WriteString(fmt.Sprintf("- %s: %s\n", name, css))
	}

	raw, err := s.completeWithRetry(ctx, templateSystem, fmt.Sprintf(templatePrompt, pageType, sel.String(), sample))
	if err != nil {
		return "", fmt.Errorf("template generation failed: %w", err)
	}

	code := stripCodeFences(raw)
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("template generation returned empty code")
	}
	return code, nil
}

func (s *Service) HealthCheck(ctx context.Context) error {
	return s.provider.healthCheck(ctx)
}

func (s *Service) Close() error {
	return s.provider.close()
}

// completeWithRetry runs one completion through the rate limiter,
// retrying on provider rate-limit errors with backoff
func (s *Service) completeWithRetry(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}

		response, err := s.provider.complete(ctx, system, prompt)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if !IsRateLimitError(err) {
			return "", err
		}

		backoff := s.retry.CalculateBackoff(attempt, ExtractRetryDelay(err))
		s.logger.Warn().
			Err(err).
			Str("provider", s.provider.name()).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Provider rate limited, backing off")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("rate limit retries exhausted: %w", lastErr)
}

// unmarshalResponse decodes a provider response that may be wrapped in
// markdown fences or surrounded by prose
func unmarshalResponse(raw string, out interface{}) error {
	payload, err := extractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("invalid JSON in response: %w", err)
	}
	return nil
}
