// Package facts turns stored per-document extraction results into the context
// handed to the language model when deciding form field values.
package facts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/formworks/pdf-form-filler/internal/storage"
)

// ErrNoFacts is returned when no usable facts exist across all upload entries.
var ErrNoFacts = errors.New("no structured facts available")

const (
	noDescriptionSentinel = "No supporting description."
	noFactsSentinel       = "No supporting facts provided."
)

// Record is one extracted fact sourced from an uploaded document.
type Record struct {
	Name        string
	Value       string
	Description string
	Source      string
}

// StructuredFact is the wire shape of one fact inside a stored extraction result.
type StructuredFact struct {
	Name             string `json:"name"`
	Value            string `json:"value"`
	ShortDescription string `json:"short_description,omitempty"`
}

// ExtractionResult is the wire shape of a stored info.json artifact.
type ExtractionResult struct {
	DocumentDescription   string           `json:"document_description"`
	StructuredInformation []StructuredFact `json:"structured_information"`
}

// Context is the aggregated decision context for one job run.
type Context struct {
	DocumentDescription string
	FactsText           string
	FactCount           int
}

// Aggregator collects facts from the extraction results referenced by a manifest.
type Aggregator struct {
	blobs     storage.BlobStore
	factLimit int
	logger    *slog.Logger
}

// NewAggregator creates an aggregator that renders at most factLimit facts
// into the context text.
func NewAggregator(blobs storage.BlobStore, factLimit int, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{blobs: blobs, factLimit: factLimit, logger: logger}
}

// Aggregate reads every extraction result the manifest points at. Entries that
// are missing, unreadable or structurally invalid are logged and skipped; only
// a total absence of facts is an error.
func (a *Aggregator) Aggregate(ctx context.Context, manifest *storage.Manifest) (*Context, error) {
	var records []Record
	var descriptions []string

	for _, entry := range manifest.Files {
		if entry.InfoKey == "" {
			continue
		}

		payload, err := a.blobs.Get(ctx, entry.InfoKey)
		if err != nil {
			a.logger.Warn("unable to load extraction result", "slug", entry.Slug, "error", err)
			continue
		}

		var result ExtractionResult
		if err := json.Unmarshal(payload, &result); err != nil {
			a.logger.Warn("extraction result is invalid JSON", "slug", entry.Slug, "error", err)
			continue
		}

		if result.DocumentDescription != "" {
			descriptions = append(descriptions, result.DocumentDescription)
		}

		source := entry.Slug
		if source == "" {
			source = entry.FileName
		}
		if source == "" {
			source = "upload"
		}
		for _, fact := range result.StructuredInformation {
			if fact.Name == "" || fact.Value == "" {
				continue
			}
			records = append(records, Record{
				Name:        fact.Name,
				Value:       fact.Value,
				Description: fact.ShortDescription,
				Source:      source,
			})
		}
	}

	if len(records) == 0 {
		return nil, ErrNoFacts
	}

	description := noDescriptionSentinel
	if len(descriptions) > 0 {
		description = strings.Join(descriptions, "; ")
	}

	return &Context{
		DocumentDescription: description,
		FactsText:           FormatFacts(records, a.factLimit),
		FactCount:           len(records),
	}, nil
}

// FormatFacts renders facts as a bounded, human-readable listing, one line per
// fact, with a truncation notice when more facts exist than the limit allows.
func FormatFacts(records []Record, limit int) string {
	if len(records) == 0 {
		return noFactsSentinel
	}

	lines := make([]string, 0, limit+1)
	for i, record := range records {
		if i >= limit {
			break
		}

		var details []string
		if record.Description != "" {
			details = append(details, record.Description)
		}
		if record.Source != "" {
			details = append(details, "source="+record.Source)
		}

		line := fmt.Sprintf("- %s: %s", record.Name, record.Value)
		if len(details) > 0 {
			line += fmt.Sprintf(" (%s)", strings.Join(details, "; "))
		}
		lines = append(lines, line)
	}

	if len(records) > limit {
		lines = append(lines, fmt.Sprintf("- ... %d additional facts truncated ...", len(records)-limit))
	}

	return strings.Join(lines, "\n")
}
