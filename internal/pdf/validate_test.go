package pdf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := buildFormPDF(t, []pageSpec{
		{widgets: []widgetSpec{{name: "F"}}},
	})

	t.Run("valid_document", func(t *testing.T) {
		require.NoError(t, Validate(valid, 1<<20))
	})

	t.Run("empty_document", func(t *testing.T) {
		err := Validate(nil, 1<<20)
		require.ErrorIs(t, err, ErrMalformedDocument)
	})

	t.Run("oversized_document", func(t *testing.T) {
		err := Validate(valid, 16)
		require.Error(t, err)
		require.Contains(t, err.Error(), "too large")
	})

	t.Run("not_a_pdf", func(t *testing.T) {
		err := Validate([]byte("plain text"), 1<<20)
		require.ErrorIs(t, err, ErrMalformedDocument)
	})
}
