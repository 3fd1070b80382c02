package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formworks/pdf-form-filler/internal/storage"
)

func putExtraction(t *testing.T, blobs *storage.Memory, key string, result ExtractionResult) {
	t.Helper()
	payload, err := json.Marshal(result)
	require.NoError(t, err)
	require.NoError(t, blobs.Put(context.Background(), key, payload, "application/json"))
}

func TestAggregator_Aggregate(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemory()

	putExtraction(t, blobs, "alice/passport/info.json", ExtractionResult{
		DocumentDescription: "A passport",
		StructuredInformation: []StructuredFact{
			{Name: "FirstName", Value: "Ada", ShortDescription: "given name"},
			{Name: "LastName", Value: "Lovelace"},
		},
	})
	putExtraction(t, blobs, "alice/payslip/info.json", ExtractionResult{
		DocumentDescription: "A payslip",
		StructuredInformation: []StructuredFact{
			{Name: "Employer", Value: "Analytical Engines Ltd"},
		},
	})

	manifest := storage.NewManifest("alice")
	manifest.Files = []storage.FileEntry{
		{Slug: "passport", InfoKey: "alice/passport/info.json"},
		{Slug: "payslip", InfoKey: "alice/payslip/info.json"},
		{Slug: "no-extraction"}, // no InfoKey, silently skipped
	}

	agg := NewAggregator(blobs, 80, nil)
	result, err := agg.Aggregate(ctx, manifest)
	require.NoError(t, err)

	assert.Equal(t, "A passport; A payslip", result.DocumentDescription)
	assert.Equal(t, 3, result.FactCount)
	assert.Contains(t, result.FactsText, "- FirstName: Ada (given name; source=passport)")
	assert.Contains(t, result.FactsText, "- LastName: Lovelace (source=passport)")
	assert.Contains(t, result.FactsText, "- Employer: Analytical Engines Ltd (source=payslip)")
}

func TestAggregator_SkipsBrokenEntries(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemory()

	require.NoError(t, blobs.Put(ctx, "alice/broken/info.json", []byte("{not json"), "application/json"))
	putExtraction(t, blobs, "alice/ok/info.json", ExtractionResult{
		StructuredInformation: []StructuredFact{{Name: "City", Value: "London"}},
	})

	manifest := storage.NewManifest("alice")
	manifest.Files = []storage.FileEntry{
		{Slug: "missing", InfoKey: "alice/missing/info.json"},
		{Slug: "broken", InfoKey: "alice/broken/info.json"},
		{Slug: "ok", InfoKey: "alice/ok/info.json"},
	}

	result, err := NewAggregator(blobs, 80, nil).Aggregate(ctx, manifest)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FactCount)
	assert.Equal(t, "No supporting description.", result.DocumentDescription)
}

func TestAggregator_NoFactsIsError(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemory()

	// An extraction result that parses but carries no usable facts.
	putExtraction(t, blobs, "alice/empty/info.json", ExtractionResult{
		DocumentDescription:   "An empty doc",
		StructuredInformation: []StructuredFact{{Name: "", Value: ""}},
	})

	manifest := storage.NewManifest("alice")
	manifest.Files = []storage.FileEntry{
		{Slug: "empty", InfoKey: "alice/empty/info.json"},
	}

	_, err := NewAggregator(blobs, 80, nil).Aggregate(ctx, manifest)
	require.ErrorIs(t, err, ErrNoFacts)
}

func TestFormatFacts_Truncation(t *testing.T) {
	var records []Record
	for i := 0; i < 85; i++ {
		records = append(records, Record{Name: fmt.Sprintf("fact%d", i), Value: "v"})
	}

	text := FormatFacts(records, 80)
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 81)
	assert.Equal(t, "- ... 5 additional facts truncated ...", lines[80])
}

func TestFormatFacts_Empty(t *testing.T) {
	assert.Equal(t, "No supporting facts provided.", FormatFacts(nil, 80))
}
