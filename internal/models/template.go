package models

import "time"

// RegionType classifies an editable region of a generated template
type RegionType string

const (
	RegionTypeText     RegionType = "text"
	RegionTypeRichText RegionType = "richtext"
	RegionTypeImage    RegionType = "image"
)

// EditableRegion is a named, typed, optionally-multiple editable area
// declared by a generated template
type EditableRegion struct {
	Name     string     `json:"name"`
	Label    string     `json:"label"`
	Type     RegionType `json:"type"`
	Multiple bool       `json:"multiple,omitempty"`
}

// Template is a generated render artifact. Identity is the logical
// filename, so re-running the pipeline upserts rather than duplicates.
type Template struct {
	Filename string           `json:"filename" badgerhold:"key"`
	PageType string           `json:"page_type" badgerholdIndex:"PageType"`
	Code     string           `json:"code"`
	Regions  []EditableRegion `json:"regions"`
	JobID    string           `json:"job_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
