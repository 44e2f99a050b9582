package models

import "time"

// ContentType classifies a final content record
type ContentType string

const (
	ContentTypePage    ContentType = "page"
	ContentTypeProduct ContentType = "product"
	ContentTypeArticle ContentType = "article"
)

// ContentRecord is the final normalized unit of imported content.
// Identity is the slug, derived deterministically from the source URL,
// so re-running a job upserts rather than duplicates.
type ContentRecord struct {
	Slug         string                 `json:"slug" badgerhold:"key"`
	Title        string                 `json:"title"`
	Type         ContentType            `json:"type" badgerholdIndex:"Type"`
	Fields       map[string]interface{} `json:"fields"`
	SourceURL    string                 `json:"source_url"`
	TemplateFile string                 `json:"template_file"`
	JobID        string                 `json:"job_id" badgerholdIndex:"JobID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageRecord links a page content record to its render template
type PageRecord struct {
	Slug         string `json:"slug" badgerhold:"key"`
	Title        string `json:"title"`
	ContentSlug  string `json:"content_slug"`
	TemplateFile string `json:"template_file"`
	JobID        string `json:"job_id" badgerholdIndex:"JobID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductRecord links a product content record to its render template
type ProductRecord struct {
	Slug         string `json:"slug" badgerhold:"key"`
	Title        string `json:"title"`
	ContentSlug  string `json:"content_slug"`
	TemplateFile string `json:"template_file"`
	Price        string `json:"price,omitempty"`
	JobID        string `json:"job_id" badgerholdIndex:"JobID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
