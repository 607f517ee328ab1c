package domain

import (
	"time"

	"github.com/google/uuid"
)

// Extraction is an immutable record of one successful pipeline run. Rows
// form an append-only, time-ordered history keyed by (URL, SchemaName).
type Extraction struct {
	ID             uuid.UUID `db:"id" json:"id"`
	URL            string    `db:"url" json:"url"`
	SchemaName     string    `db:"schema_name" json:"schema_name"`
	ExtractedData  JSONBMap  `db:"extracted_data" json:"extracted_data"`
	RawContentHash string    `db:"raw_content_hash" json:"raw_content_hash"`
	DataHash       string    `db:"data_hash" json:"data_hash"`
	Model          string    `db:"model" json:"model"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NewExtraction carries the fields needed to persist a freshly-computed
// extraction; CreatedAt and ID are server-generated.
type NewExtraction struct {
	URL            string
	SchemaName     string
	ExtractedData  JSONBMap
	RawContentHash string
	DataHash       string
	Model          string
}
