package domain

import (
	"fmt"
	"mime"
	"strings"
)

// FileType selects the extractor a job is dispatched to.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypePDF   FileType = "pdf"
)

type mediaType struct {
	fileType  FileType
	extension string
}

var allowedMediaTypes = map[string]mediaType{
	"image/jpeg":      {FileTypeImage, ".jpg"},
	"image/jpg":       {FileTypeImage, ".jpg"},
	"image/pjpeg":     {FileTypeImage, ".jpg"},
	"image/png":       {FileTypeImage, ".png"},
	"image/gif":       {FileTypeImage, ".gif"},
	"image/webp":      {FileTypeImage, ".webp"},
	"application/pdf": {FileTypePDF, ".pdf"},
}

func ParseFileType(raw string) (FileType, error) {
	switch FileType(strings.ToLower(strings.TrimSpace(raw))) {
	case FileTypeImage:
		return FileTypeImage, nil
	case FileTypePDF:
		return FileTypePDF, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse file type", fmt.Errorf("unknown file type %q", raw))
	}
}

// NormalizeContentType lowercases a content type and drops its parameters.
func NormalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		return parsed
	}
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// ResolveMediaType maps a declared content type onto the allow-list and
// returns the file type together with the blob extension.
func ResolveMediaType(contentType string) (FileType, string, error) {
	normalized := NormalizeContentType(contentType)
	mt, ok := allowedMediaTypes[normalized]
	if !ok {
		if normalized == "" {
			normalized = "unknown"
		}
		return "", "", WrapError(ErrUnsupportedMediaType, "resolve media type", fmt.Errorf("Unsupported file type: %s", normalized))
	}
	return mt.fileType, mt.extension, nil
}

// BlobName derives the storage key of a job payload.
func BlobName(id, extension string) string {
	return id + extension
}
