// Package extractor dispatches job payloads to the extractor for their file
// type.
package extractor

import (
	"context"
	"fmt"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
)

type Registry struct {
	image ports.Extractor
	pdf   ports.Extractor
}

func NewRegistry(image, pdf ports.Extractor) *Registry {
	return &Registry{image: image, pdf: pdf}
}

func (r *Registry) Extract(ctx context.Context, job domain.Job, payload []byte) (domain.Extraction, error) {
	var ext ports.Extractor
	switch job.FileType {
	case domain.FileTypeImage:
		ext = r.image
	case domain.FileTypePDF:
		ext = r.pdf
	default:
		return domain.Extraction{}, domain.WrapError(domain.ErrPermanent, "select extractor", fmt.Errorf("unknown file type %q", job.FileType))
	}
	if ext == nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrPermanent, "select extractor", fmt.Errorf("no extractor registered for %q", job.FileType))
	}
	return ext.Extract(ctx, job, payload)
}
