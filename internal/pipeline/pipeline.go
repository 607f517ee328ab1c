// Package pipeline orchestrates a single scrape: fetch, clean, extract,
// hash, compare against history, persist. Grounded on
// ares-core/src/scrape.rs's ScrapeService, generalized from compile-time
// generics to Go interfaces in the style of
// infrastructure/pipeline/client.go.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/andreabozzo/ares/internal/domain"
	"github.com/andreabozzo/ares/internal/extraction"
	"github.com/andreabozzo/ares/internal/obslog"
)

// Fetcher retrieves raw HTML for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Cleaner converts raw HTML into clean Markdown text.
type Cleaner interface {
	Clean(html string) (string, error)
}

// Extractor sends content and a JSON schema to an LLM and returns
// extracted structured data.
type Extractor interface {
	Extract(ctx context.Context, content string, schema domain.JSONBMap) (domain.JSONBMap, error)
}

// Store is the subset of the extraction store the pipeline needs.
type Store interface {
	Save(ctx context.Context, ex domain.NewExtraction) (uuid.UUID, error)
	GetLatest(ctx context.Context, url, schemaName string) (*domain.Extraction, error)
}

// Result summarizes a completed pipeline run.
type Result struct {
	ExtractionID   uuid.UUID
	ExtractedData  domain.JSONBMap
	ContentHash    string
	DataHash       string
	Changed        bool
}

// Pipeline wires a Fetcher, Cleaner, Extractor and Store into the full
// scrape-and-extract sequence for one job.
type Pipeline struct {
	fetcher       Fetcher
	cleaner       Cleaner
	extractor     Extractor
	store         Store
	log           obslog.Logger
	skipUnchanged bool
}

// New builds a Pipeline. store may be nil, in which case Run always
// reports Changed=true and skips persistence (used for dry-run callers).
func New(fetcher Fetcher, cleaner Cleaner, extractor Extractor, store Store, log obslog.Logger) *Pipeline {
	return &Pipeline{fetcher: fetcher, cleaner: cleaner, extractor: extractor, store: store, log: log}
}

// WithSkipUnchanged enables the skip_unchanged policy: when set, Run
// elides the save step for a job whose data_hash matches the most
// recent stored extraction, and Result.ExtractionID is left as
// uuid.Nil. Default behaviour (unset) always saves, so the history
// stays a complete audit trail.
func (p *Pipeline) WithSkipUnchanged(skip bool) *Pipeline {
	p.skipUnchanged = skip
	return p
}

// Run executes fetch → clean → extract → hash → compare → persist for a
// single job's (url, schema). By default persistence happens whenever a
// Store is configured, even when the content is unchanged from the prior
// extraction, so the history stays a complete audit trail; with
// WithSkipUnchanged(true) the save is skipped for unchanged data. Changed
// only signals whether the extracted data differs from the last saved row.
func (p *Pipeline) Run(ctx context.Context, url, schemaName string, schema domain.JSONBMap, model string) (*Result, error) {
	p.log.Info("fetching", obslog.String("url", url))
	html, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	p.log.Info("fetched", obslog.String("url", url), obslog.Int("bytes", len(html)))

	markdown, err := p.cleaner.Clean(html)
	if err != nil {
		return nil, err
	}
	p.log.Info("cleaned", obslog.String("url", url), obslog.Int("markdown_bytes", len(markdown)))

	p.log.Info("extracting", obslog.String("url", url), obslog.String("model", model))
	extracted, err := p.extractor.Extract(ctx, markdown, schema)
	if err != nil {
		return nil, err
	}

	contentHash := computeHash([]byte(markdown))
	dataJSON, err := extracted.CanonicalJSON()
	if err != nil {
		return nil, err
	}
	dataHash := computeHash(dataJSON)
	p.log.Info("extraction complete",
		obslog.String("url", url),
		obslog.String("content_hash", contentHash[:8]),
		obslog.String("data_hash", dataHash[:8]))

	if p.store == nil {
		return &Result{ExtractedData: extracted, ContentHash: contentHash, DataHash: dataHash, Changed: true}, nil
	}

	previous, err := p.store.GetLatest(ctx, url, schemaName)
	if err != nil && err != extraction.ErrNotFound {
		return nil, err
	}
	changed := true
	if err == nil && previous != nil {
		changed = previous.DataHash != dataHash
	}

	if !changed && p.skipUnchanged {
		p.log.Info("skipping save, unchanged", obslog.String("url", url), obslog.String("data_hash", dataHash[:8]))
		return &Result{
			ExtractedData: extracted,
			ContentHash:   contentHash,
			DataHash:      dataHash,
			Changed:       changed,
		}, nil
	}

	id, err := p.store.Save(ctx, domain.NewExtraction{
		URL:            url,
		SchemaName:     schemaName,
		ExtractedData:  extracted,
		RawContentHash: contentHash,
		DataHash:       dataHash,
		Model:          model,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		ExtractionID:  id,
		ExtractedData: extracted,
		ContentHash:   contentHash,
		DataHash:      dataHash,
		Changed:       changed,
	}, nil
}

func computeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
