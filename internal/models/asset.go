package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// AssetRecord tracks one sideloaded media or stylesheet asset.
// Identity is a content address of the source URL so repeated
// sideloads of the same remote resource dedupe.
type AssetRecord struct {
	ID          string `json:"id" badgerhold:"key"`
	SourceURL   string `json:"source_url"`
	LocalPath   string `json:"local_path"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	// PDFPages is set for .pdf assets after integrity validation
	PDFPages int    `json:"pdf_pages,omitempty"`
	JobID    string `json:"job_id" badgerholdIndex:"JobID"`

	CreatedAt time.Time `json:"created_at"`
}

// AssetIDFor derives the content-addressed key for a source URL
func AssetIDFor(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:16])
}
