package pdf

import (
	"bytes"
	"fmt"
	"testing"
)

// widgetSpec describes one form widget in a generated test document.
type widgetSpec struct {
	name      string // empty means the widget has no /T entry
	label     string
	fieldType string // defaults to "Tx"
	value     string
	maxLen    int
	required  bool
}

type pageSpec struct {
	widgets []widgetSpec
}

// buildFormPDF assembles a minimal but well-formed PDF with an AcroForm and
// merged widget annotations, computing real xref offsets so both pdfcpu and
// plain readers can parse it.
func buildFormPDF(t *testing.T, pages []pageSpec) []byte {
	t.Helper()

	totalWidgets := 0
	for _, p := range pages {
		totalWidgets += len(p.widgets)
	}
	pageCount := len(pages)
	totalObjs := 2 + pageCount + totalWidgets

	// Object numbering: 1 catalog, 2 page tree, 3..2+P pages, widgets after.
	firstWidget := 3 + pageCount
	widgetNums := make([][]int, pageCount)
	next := firstWidget
	for i, p := range pages {
		for range p.widgets {
			widgetNums[i] = append(widgetNums[i], next)
			next++
		}
	}

	refs := func(nums []int) string {
		var b bytes.Buffer
		for _, n := range nums {
			fmt.Fprintf(&b, "%d 0 R ", n)
		}
		return b.String()
	}

	var allWidgets []int
	for _, nums := range widgetNums {
		allWidgets = append(allWidgets, nums...)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")

	offsets := make([]int, totalObjs+1)
	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	writeObj(1, fmt.Sprintf("<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [ %s] >> >>", refs(allWidgets)))

	pageNums := make([]int, pageCount)
	for i := range pages {
		pageNums[i] = 3 + i
	}
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [ %s] /Count %d >>", refs(pageNums), pageCount))

	for i := range pages {
		writeObj(pageNums[i], fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Annots [ %s] >>",
			refs(widgetNums[i])))
	}

	for i, p := range pages {
		for j, w := range p.widgets {
			ft := w.fieldType
			if ft == "" {
				ft = "Tx"
			}
			body := fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /%s /Rect [100 %d 300 %d]",
				ft, 700-20*j, 720-20*j)
			if w.name != "" {
				body += fmt.Sprintf(" /T (%s)", w.name)
			}
			if w.label != "" {
				body += fmt.Sprintf(" /TU (%s)", w.label)
			}
			if w.value != "" {
				body += fmt.Sprintf(" /V (%s)", w.value)
			}
			if w.maxLen > 0 {
				body += fmt.Sprintf(" /MaxLen %d", w.maxLen)
			}
			if w.required {
				body += " /Ff 2"
			}
			body += " >>"
			writeObj(widgetNums[i][j], body)
		}
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", totalObjs+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= totalObjs; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", totalObjs+1, xrefOffset)

	return buf.Bytes()
}
