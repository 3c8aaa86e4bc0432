package ingest

import (
	"fmt"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/ianaindex"
)

// extractText decodes a plain-text document, auto-detecting the encoding
// when the bytes are not valid UTF-8.
func extractText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil {
		return "", fmt.Errorf("txt: detect encoding: %w", err)
	}
	enc, err := ianaindex.IANA.Encoding(result.Charset)
	if err != nil || enc == nil {
		return "", fmt.Errorf("txt: unsupported encoding %q", result.Charset)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("txt: decode %s: %w", result.Charset, err)
	}
	return string(decoded), nil
}
