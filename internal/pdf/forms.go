package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// readContext parses raw PDF bytes into a pdfcpu context with relaxed
// validation, so slightly out-of-spec forms in the wild still load.
func readContext(data []byte) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return ctx, nil
}

// collectPages walks the page tree in document order and returns the page
// dictionaries. Intermediate Pages nodes are descended into; malformed kids
// are skipped rather than failing the whole document.
func collectPages(ctx *model.Context) ([]types.Dict, error) {
	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("%w: missing catalog: %v", ErrMalformedDocument, err)
	}

	pagesObj, found := rootDict.Find("Pages")
	if !found {
		return nil, fmt.Errorf("%w: catalog has no page tree", ErrMalformedDocument)
	}

	var pages []types.Dict
	var descend func(obj types.Object) error
	descend = func(obj types.Object) error {
		d, err := ctx.DereferenceDict(obj)
		if err != nil || d == nil {
			return nil
		}

		if typ := d.Type(); typ != nil && *typ == "Page" {
			pages = append(pages, d)
			return nil
		}

		kidsObj, found := d.Find("Kids")
		if !found {
			return nil
		}
		kids, err := ctx.DereferenceArray(kidsObj)
		if err != nil {
			return nil
		}
		for _, kid := range kids {
			if err := descend(kid); err != nil {
				return err
			}
		}
		return nil
	}

	if err := descend(pagesObj); err != nil {
		return nil, err
	}
	return pages, nil
}

// widgetAnnots returns the dereferenced widget annotation dictionaries of a page.
func widgetAnnots(ctx *model.Context, pageDict types.Dict) []types.Dict {
	annotsObj, found := pageDict.Find("Annots")
	if !found {
		return nil
	}
	annots, err := ctx.DereferenceArray(annotsObj)
	if err != nil {
		return nil
	}

	var widgets []types.Dict
	for _, annotRef := range annots {
		d, err := ctx.DereferenceDict(annotRef)
		if err != nil || d == nil {
			continue
		}
		if sub := d.Subtype(); sub == nil || *sub != "Widget" {
			continue
		}
		widgets = append(widgets, d)
	}
	return widgets
}

// fieldName resolves the widget's partial field name, walking the Parent chain
// for fields whose name lives on an ancestor.
func fieldName(ctx *model.Context, d types.Dict) string {
	if nameObj, found := d.Find("T"); found {
		if name, err := ctx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil); err == nil {
			return name
		}
	}
	if parentObj, found := d.Find("Parent"); found {
		if parentDict, err := ctx.DereferenceDict(parentObj); err == nil && parentDict != nil {
			return fieldName(ctx, parentDict)
		}
	}
	return ""
}

// fieldType resolves the widget's field type (FT), inherited via Parent.
func fieldType(ctx *model.Context, d types.Dict) string {
	if ftObj, found := d.Find("FT"); found {
		if ftName, err := ctx.DereferenceName(ftObj, model.V10, nil); err == nil {
			return string(ftName)
		}
	}
	if parentObj, found := d.Find("Parent"); found {
		if parentDict, err := ctx.DereferenceDict(parentObj); err == nil && parentDict != nil {
			return fieldType(ctx, parentDict)
		}
	}
	return ""
}

// fieldOwner returns the dictionary that carries the field's T entry: the
// widget itself for merged fields, otherwise the nearest named ancestor.
func fieldOwner(ctx *model.Context, d types.Dict) types.Dict {
	if _, found := d.Find("T"); found {
		return d
	}
	if parentObj, found := d.Find("Parent"); found {
		if parentDict, err := ctx.DereferenceDict(parentObj); err == nil && parentDict != nil {
			return fieldOwner(ctx, parentDict)
		}
	}
	return d
}

func fieldRect(ctx *model.Context, d types.Dict) [4]float64 {
	var rect [4]float64
	rectObj, found := d.Find("Rect")
	if !found {
		return rect
	}
	arr, err := ctx.DereferenceArray(rectObj)
	if err != nil || len(arr) != 4 {
		return rect
	}
	for i, coord := range arr {
		if f, err := ctx.DereferenceNumber(coord); err == nil {
			rect[i] = f
		}
	}
	return rect
}

func fieldString(ctx *model.Context, d types.Dict, key string) string {
	obj, found := d.Find(key)
	if !found {
		return ""
	}
	value, err := ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return value
}

func fieldInt(ctx *model.Context, d types.Dict, key string) int {
	obj, found := d.Find(key)
	if !found {
		return 0
	}
	value, err := ctx.DereferenceInteger(obj)
	if err != nil || value == nil {
		return 0
	}
	return int(*value)
}

// ExtractSchema derives the fillable-field schema of a form from raw PDF
// bytes. Only text widgets are considered; other widget kinds are ignored.
// The input is never mutated. Duplicate field names within a form are
// collapsed keeping the first occurrence, and widgets without a name get a
// synthesized non-colliding identifier.
func ExtractSchema(data []byte, formSlug string) (*FormSchema, error) {
	ctx, err := readContext(data)
	if err != nil {
		return nil, err
	}

	pages, err := collectPages(ctx)
	if err != nil {
		return nil, err
	}

	fields := []FormField{}
	seen := map[string]bool{}

	for pageIndex, pageDict := range pages {
		for _, widget := range widgetAnnots(ctx, pageDict) {
			if fieldType(ctx, widget) != "Tx" {
				continue
			}

			owner := fieldOwner(ctx, widget)

			name := fieldName(ctx, widget)
			if name == "" {
				name = fmt.Sprintf("field-%d-%d", pageIndex, len(fields))
			}
			if seen[name] {
				continue
			}
			seen[name] = true

			label := fieldString(ctx, widget, "TU")
			if label == "" {
				label = name
			}

			flags := fieldInt(ctx, owner, "Ff")

			fields = append(fields, FormField{
				Name:        name,
				Page:        pageIndex,
				Rect:        fieldRect(ctx, widget),
				Label:       label,
				Placeholder: fieldString(ctx, owner, "V"),
				MaxLength:   fieldInt(ctx, owner, "MaxLen"),
				Required:    flags&flagRequired != 0,
			})
		}
	}

	return &FormSchema{
		FormSlug:    formSlug,
		Fields:      fields,
		TotalFields: len(fields),
		ExtractedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}
