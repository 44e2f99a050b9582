package models

import "time"

// FieldValidation is the empirical validation report for one extraction
// selector, produced by applying it to members of the same fingerprint
// group, the classified sample page included.
type FieldValidation struct {
	// SuccessRate is the fraction of samples where the selector matched
	// at least one element
	SuccessRate float64 `json:"success_rate"`
	// DensityScore rewards semantic content and penalizes navigation-like
	// link density; only meaningful for prose fields
	DensityScore float64 `json:"density_score"`
	// IsBrittle flags selectors that failed on at least one sample
	IsBrittle bool `json:"is_brittle"`
	// IsLowDensity flags prose fields whose matches carry little real text
	IsLowDensity bool `json:"is_low_density"`
	// IsInvalid flags selectors that matched nothing anywhere
	IsInvalid bool `json:"is_invalid"`
	// FailedURLs lists the sample pages where the selector did not match
	FailedURLs []string `json:"failed_urls,omitempty"`
	// SampleCount is the number of group members checked
	SampleCount int `json:"sample_count"`
}

// GroupRule holds the extraction rules for one fingerprint group
type GroupRule struct {
	Fingerprint string                      `json:"fingerprint"`
	PageType    string                      `json:"page_type"`
	Selectors   map[string]string           `json:"selectors"`
	Validation  map[string]*FieldValidation `json:"validation,omitempty"`
	// TemplateID is the logical filename of the render template for this
	// group; set by the template generator before transformation runs
	TemplateID  string `json:"template_id,omitempty"`
	SampleURL   string `json:"sample_url"`
	MemberCount int    `json:"member_count"`
	// Duplicate marks groups that reuse another group's template
	Duplicate bool   `json:"duplicate,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

// RuleSet is the persisted mapping from fingerprint group to extraction
// rules and generated template, one per import job.
type RuleSet struct {
	JobID  string                `json:"job_id" badgerhold:"key"`
	Groups map[string]*GroupRule `json:"groups"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRuleSet creates an empty ruleset for a job
func NewRuleSet(jobID string) *RuleSet {
	now := time.Now()
	return &RuleSet{
		JobID:     jobID,
		Groups:    make(map[string]*GroupRule),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
