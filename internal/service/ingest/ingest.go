package ingest

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Document is one uploaded context file with its declared media type.
type Document struct {
	Name      string
	MediaType string
	Data      []byte
}

const (
	mediaTypePDF   = "application/pdf"
	mediaTypeDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mediaTypeRTF   = "application/rtf"
	mediaTypeRTFX  = "text/rtf"
	mediaTypePlain = "text/plain"
)

// Reader converts uploaded context documents into plain text blobs.
type Reader struct {
	logger *zap.SugaredLogger
}

func NewReader(logger *zap.SugaredLogger) *Reader {
	return &Reader{logger: logger}
}

// Extract returns the plain text of one document. The media type wins; when
// it is missing or unrecognized the file extension is tried as a fallback.
func (r *Reader) Extract(doc Document) (string, error) {
	switch resolveMediaType(doc) {
	case mediaTypePDF:
		return extractPDF(doc.Data)
	case mediaTypeDOCX:
		return extractDOCX(doc.Data)
	case mediaTypeRTF, mediaTypeRTFX:
		return extractRTF(doc.Data)
	case mediaTypePlain:
		return extractText(doc.Data)
	default:
		return "", fmt.Errorf("ingest: unsupported media type %q for %s", doc.MediaType, doc.Name)
	}
}

// ExtractAll converts a batch of documents, one blob per document in input
// order. The batch is best-effort: an unreadable document yields an empty
// blob and a logged warning instead of failing the whole upload.
func (r *Reader) ExtractAll(docs []Document) []string {
	blobs := make([]string, len(docs))
	for i, doc := range docs {
		text, err := r.Extract(doc)
		if err != nil {
			r.logger.Warnw("Could not read context document, using empty content", "name", doc.Name, "error", err)
			continue
		}
		blobs[i] = text
	}
	return blobs
}

func resolveMediaType(doc Document) string {
	if mt, _, err := mime.ParseMediaType(doc.MediaType); err == nil && mt != "" && mt != "application/octet-stream" {
		return mt
	}
	switch strings.ToLower(filepath.Ext(doc.Name)) {
	case ".pdf":
		return mediaTypePDF
	case ".docx":
		return mediaTypeDOCX
	case ".rtf":
		return mediaTypeRTF
	case ".txt":
		return mediaTypePlain
	default:
		return ""
	}
}
