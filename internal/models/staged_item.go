package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ItemStatus tracks a staged page through the pipeline
type ItemStatus string

const (
	// ItemStatusCrawled means the page has been captured and fingerprinted
	ItemStatusCrawled ItemStatus = "crawled"
	// ItemStatusTransformed means final content has been created from the page
	ItemStatusTransformed ItemStatus = "transformed"
)

// StagedItem is one crawled or rendered page held in the staging store
// before it becomes final CMS content. Owned exclusively by one job;
// the key construction makes (job, URL) unique.
type StagedItem struct {
	ID      string `json:"id" badgerhold:"key"`
	JobID   string `json:"job_id" badgerholdIndex:"JobID"`
	URL     string `json:"url"`
	RawHTML string `json:"raw_html"`
	// StrippedHTML is the cleaned variant: scripts, styles, comments and
	// event handlers removed
	StrippedHTML string `json:"stripped_html"`
	// AnalysisHTML is the ultra-reduced variant sent to the
	// content-understanding service to minimize tokens
	AnalysisHTML string     `json:"analysis_html"`
	Fingerprint  string     `json:"fingerprint" badgerholdIndex:"Fingerprint"`
	ItemType     string     `json:"item_type"` // product, article, page
	Status       ItemStatus `json:"status"`
	Title        string     `json:"title"`

	// Metadata holds free-form capture details such as discovered
	// stylesheet links and, after transformation, the created content slug
	Metadata map[string]interface{} `json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StagedItemID derives the storage key for a (job, URL) pair
func StagedItemID(jobID, url string) string {
	sum := sha256.Sum256([]byte(url))
	return jobID + ":" + hex.EncodeToString(sum[:8])
}
