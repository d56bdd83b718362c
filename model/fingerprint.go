package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FingerprintBytes returns a stable identifier for document content
func FingerprintBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// FingerprintURL returns a stable identifier for a document URL.
// Surrounding whitespace is ignored so that copied links map to the same key.
func FingerprintURL(url string) string {
	h := sha256.Sum256([]byte("url:" + strings.TrimSpace(url)))
	return hex.EncodeToString(h[:])
}
