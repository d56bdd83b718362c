package helper

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// NewTestPDF builds a minimal PDF with one page per entry of pages.
// Every page shows its text in Helvetica, an empty entry produces a page
// without content stream, the way an image only scan looks to a text extractor.
func NewTestPDF(pages ...string) []byte {
	return buildTestPDF(pages, nil, "")
}

// NewTestPDFWithInfo builds a test PDF with a document information dictionary.
// Keys are PDF info keys like Title or CreationDate.
func NewTestPDFWithInfo(info map[string]string, pages ...string) []byte {
	return buildTestPDF(pages, info, "")
}

// NewEncryptedTestPDF builds a PDF whose trailer declares standard encryption
// with parameters no password can satisfy.
func NewEncryptedTestPDF(pages ...string) []byte {
	encrypt := fmt.Sprintf(
		" /Encrypt << /Filter /Standard /V 1 /R 2 /Length 40 /P -4 /O <%s> /U <%s> >> /ID [<%s> <%s>]",
		strings.Repeat("ab", 32), strings.Repeat("cd", 32), strings.Repeat("01", 16), strings.Repeat("01", 16),
	)
	return buildTestPDF(pages, nil, encrypt)
}

func buildTestPDF(pages []string, info map[string]string, trailerExtra string) []byte {
	var buf bytes.Buffer
	offsets := []int{}

	object := func(body string) int {
		offsets = append(offsets, buf.Len())
		id := len(offsets)
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
		return id
	}

	buf.WriteString("%PDF-1.4\n")

	// Fixed ids: 1 catalog, 2 page tree, 3 font, then page and content pairs
	pageIDs := make([]int, len(pages))
	next := 4
	for i, text := range pages {
		pageIDs[i] = next
		next++
		if text != "" {
			next++
		}
	}

	object("<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, len(pageIDs))
	for i, id := range pageIDs {
		kids[i] = fmt.Sprintf("%d 0 R", id)
	}
	object(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	object("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, text := range pages {
		page := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >>"
		if text == "" {
			object(page + " >>")
			continue
		}
		object(fmt.Sprintf("%s /Contents %d 0 R >>", page, pageIDs[i]+1))

		stream := fmt.Sprintf("BT /F1 10 Tf 72 720 Td (%s) Tj ET", escapePDFString(text))
		object(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	if len(info) > 0 {
		keys := make([]string, 0, len(info))
		for key := range info {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		entries := make([]string, len(keys))
		for i, key := range keys {
			entries[i] = fmt.Sprintf("/%s (%s)", key, escapePDFString(info[key]))
		}
		id := object(fmt.Sprintf("<< %s >>", strings.Join(entries, " ")))
		trailerExtra = fmt.Sprintf(" /Info %d 0 R%s", id, trailerExtra)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, trailerExtra, xref)

	return buf.Bytes()
}

func escapePDFString(text string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, "\n", " ", "\r", " ")
	return replacer.Replace(text)
}
