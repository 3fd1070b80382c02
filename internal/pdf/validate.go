package pdf

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Validate performs a cheap preflight on downloaded form bytes before the
// heavier form-structure walk: size bounds plus a parse attempt with an
// independent reader.
func Validate(data []byte, maxSize int64) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty document", ErrMalformedDocument)
	}
	if int64(len(data)) > maxSize {
		return fmt.Errorf("document too large: %d bytes (max: %d bytes)", len(data), maxSize)
	}

	if _, err := pdf.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return nil
}
