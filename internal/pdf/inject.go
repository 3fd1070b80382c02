package pdf

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// InjectValues sets the value of every text widget whose field name appears in
// fills and returns the rewritten document. Widgets not named in fills are
// left untouched. An empty mapping returns the input bytes unchanged.
func InjectValues(data []byte, fills map[string]string) ([]byte, error) {
	if len(fills) == 0 {
		return data, nil
	}

	ctx, err := readContext(data)
	if err != nil {
		return nil, err
	}

	pages, err := collectPages(ctx)
	if err != nil {
		return nil, err
	}

	applied := 0
	for _, pageDict := range pages {
		for _, widget := range widgetAnnots(ctx, pageDict) {
			if fieldType(ctx, widget) != "Tx" {
				continue
			}

			name := fieldName(ctx, widget)
			value, ok := fills[name]
			if !ok {
				continue
			}

			encoded, err := types.EscapedUTF16String(value)
			if err != nil {
				return nil, fmt.Errorf("failed to encode value for field %s: %w", name, err)
			}

			owner := fieldOwner(ctx, widget)
			owner["V"] = types.StringLiteral(*encoded)

			// Drop the cached appearance stream so viewers regenerate it
			// from the new value.
			delete(widget, "AP")
			applied++
		}
	}

	if applied > 0 {
		if err := setNeedAppearances(ctx); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write filled document: %w", err)
	}
	return buf.Bytes(), nil
}

// setNeedAppearances flags the AcroForm so conforming readers rebuild widget
// appearances for the injected values.
func setNeedAppearances(ctx *model.Context) error {
	rootDict, err := ctx.Catalog()
	if err != nil {
		return fmt.Errorf("%w: missing catalog: %v", ErrMalformedDocument, err)
	}

	acroObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil
	}
	acroDict, err := ctx.DereferenceDict(acroObj)
	if err != nil || acroDict == nil {
		return nil
	}

	acroDict["NeedAppearances"] = types.Boolean(true)
	return nil
}
