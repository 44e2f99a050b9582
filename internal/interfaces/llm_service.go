package interfaces

import "context"

// FieldSpec describes one field the content-understanding service should
// extract from page markup
type FieldSpec struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Type     string `json:"type"` // text, richtext, image
	Multiple bool   `json:"multiple,omitempty"`
}

// StructureAnalysis is the service's classification of one sample page
type StructureAnalysis struct {
	PageType   string            `json:"page_type"`
	Fields     []FieldSpec       `json:"fields,omitempty"`
	Selectors  map[string]string `json:"selectors"`
	Confidence float64           `json:"confidence,omitempty"`
	Summary    string            `json:"summary,omitempty"`
}

// Comparison is the result of a pairwise structural-similarity check
// between a sample page and an existing template
type Comparison struct {
	CanShare bool   `json:"can_share"`
	Reason   string `json:"reason,omitempty"`
}

// LLMService is the content-understanding service contract. Responses
// are schema-less JSON from the provider; implementations must surface
// parse failures as errors rather than returning partial results.
type LLMService interface {
	// ClassifyStructure proposes a page type and field->selector map
	// from one sample page's analysis markup
	ClassifyStructure(ctx context.Context, markup string) (*StructureAnalysis, error)

	// CompareStructures reports whether a page could be rendered by an
	// existing template ("can share")
	CompareStructures(ctx context.Context, sample, candidate string) (*Comparison, error)

	// ExtractFields pulls a flat field->value map out of cleaned markup
	ExtractFields(ctx context.Context, markup string, fields []FieldSpec) (map[string]string, error)

	// GenerateTemplate synthesizes render-template code from a sample
	// page, its selector map and detected page type
	GenerateTemplate(ctx context.Context, sample string, selectors map[string]string, pageType string) (string, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
