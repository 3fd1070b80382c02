// Package pdf reads and writes the interactive form structure of PDF
// documents: extracting the fillable text-field schema and injecting decided
// values back into the widgets.
package pdf

import (
	"errors"
)

// ErrMalformedDocument is returned when a byte stream cannot be parsed as a PDF.
var ErrMalformedDocument = errors.New("malformed PDF document")

// Form field bit flags (table 8.70 in the PDF spec).
const (
	flagReadOnly = 1 << 0
	flagRequired = 1 << 1
)

// FormField describes one fillable text widget of a form. Name is the field's
// identity within a form; duplicates are collapsed keeping the first occurrence.
// Decision and FilledValue are outcome attributes set by the fill pipeline.
type FormField struct {
	Name        string     `json:"name"`
	Page        int        `json:"page"`
	Rect        [4]float64 `json:"rect"`
	Label       string     `json:"label,omitempty"`
	Placeholder string     `json:"placeholder,omitempty"`
	MaxLength   int        `json:"maxLength,omitempty"`
	Required    bool       `json:"required"`
	Decision    string     `json:"decision,omitempty"`
	FilledValue string     `json:"filledValue,omitempty"`
}

// FormSchema is the ordered fillable-field schema of one form.
type FormSchema struct {
	FormSlug    string      `json:"formSlug"`
	Fields      []FormField `json:"fields"`
	TotalFields int         `json:"totalFields"`
	ExtractedAt string      `json:"extractedAt"`
}
