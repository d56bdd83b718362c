package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/siherrmann/paperqa/helper"
)

// Keys filled from the document information dictionary of a PDF
const (
	MetadataTitle    = "title"
	MetadataAuthor   = "author"
	MetadataSubject  = "subject"
	MetadataKeywords = "keywords"
	MetadataCreator  = "creator"
	MetadataProducer = "producer"
	MetadataCreated  = "created"  // RFC 3339, UTC
	MetadataModified = "modified" // RFC 3339, UTC
)

// Metadata holds descriptive document attributes, stored as JSONB
type Metadata map[string]interface{}

// Value stores the metadata as JSON, nil as an empty object
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, helper.NewError("marshal metadata", err)
	}
	return b, nil
}

// Scan reads JSON metadata as returned by postgres
func (m *Metadata) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return helper.NewError("scan metadata", fmt.Errorf("unsupported type %T", value))
	}

	decoded := Metadata{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return helper.NewError("unmarshal metadata", err)
	}
	*m = decoded
	return nil
}

// String returns the value of key if it is a string
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Time returns the value of key parsed as RFC 3339
func (m Metadata) Time(key string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, m.String(key))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
