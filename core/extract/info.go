package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/siherrmann/paperqa/model"
)

var infoTextKeys = map[string]string{
	"Title":    model.MetadataTitle,
	"Author":   model.MetadataAuthor,
	"Subject":  model.MetadataSubject,
	"Keywords": model.MetadataKeywords,
	"Creator":  model.MetadataCreator,
	"Producer": model.MetadataProducer,
}

var infoDateKeys = map[string]string{
	"CreationDate": model.MetadataCreated,
	"ModDate":      model.MetadataModified,
}

// documentInfo reads the document information dictionary of the trailer.
// Empty values are skipped, unparsable dates are kept as written.
func documentInfo(reader *pdf.Reader) (metadata model.Metadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			metadata = nil
			err = fmt.Errorf("malformed info dictionary: %v", r)
		}
	}()

	metadata = model.Metadata{}
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return metadata, nil
	}

	for pdfKey, key := range infoTextKeys {
		if text := strings.TrimSpace(info.Key(pdfKey).Text()); text != "" {
			metadata[key] = text
		}
	}
	for pdfKey, key := range infoDateKeys {
		raw := strings.TrimSpace(info.Key(pdfKey).Text())
		if raw == "" {
			continue
		}
		if t, ok := ParsePDFDate(raw); ok {
			metadata[key] = t.Format(time.RFC3339)
		} else {
			metadata[key] = raw
		}
	}
	return metadata, nil
}

var pdfDateLayouts = map[int]string{
	4:  "2006",
	6:  "200601",
	8:  "20060102",
	10: "2006010215",
	12: "200601021504",
	14: "20060102150405",
}

// ParsePDFDate parses a PDF date string like D:20240131120000+01'00'.
// The result is in UTC, a missing offset is read as UTC.
func ParsePDFDate(s string) (time.Time, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")

	digits := 0
	for digits < len(s) && digits < 14 && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	layout, ok := pdfDateLayouts[digits]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(layout, s[:digits], time.UTC)
	if err != nil {
		return time.Time{}, false
	}

	offset, ok := parsePDFOffset(s[digits:])
	if !ok {
		return time.Time{}, false
	}
	return t.Add(-offset).UTC(), true
}

// parsePDFOffset reads Z, +HH'mm' or -HH'mm' with optional minutes
func parsePDFOffset(s string) (time.Duration, bool) {
	if s == "" || s == "Z" || strings.HasPrefix(s, "Z00") {
		return 0, true
	}

	sign := time.Duration(1)
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, false
	}

	parts := strings.Split(strings.Trim(s[1:], "'"), "'")
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours > 23 {
		return 0, false
	}
	minutes := 0
	if len(parts) > 1 && parts[1] != "" {
		minutes, err = strconv.Atoi(parts[1])
		if err != nil || minutes > 59 {
			return 0, false
		}
	}
	return sign * (time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute), true
}
