package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
)

// Extractor asks a vision model to describe the image.
type Extractor struct {
	describer ports.ImageDescriber
}

func NewExtractor(describer ports.ImageDescriber) *Extractor {
	return &Extractor{describer: describer}
}

func (e *Extractor) Extract(ctx context.Context, job domain.Job, payload []byte) (domain.Extraction, error) {
	if len(payload) == 0 {
		return domain.Extraction{}, domain.WrapError(domain.ErrPermanent, "describe image", errors.New("empty image payload"))
	}

	description, err := e.describer.DescribeImage(ctx, contentType(job, payload), payload)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("describe image: %w", err)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.Extraction{}, errors.New("describe image: empty model response")
	}
	return domain.Extraction{Response: description}, nil
}

// contentType prefers the type recorded at ingress and falls back to
// sniffing for envelopes published without one.
func contentType(job domain.Job, payload []byte) string {
	if ct := domain.NormalizeContentType(job.ContentType); strings.HasPrefix(ct, "image/") {
		if ct == "image/jpg" || ct == "image/pjpeg" {
			return "image/jpeg"
		}
		return ct
	}
	detected := mimetype.Detect(payload)
	if strings.HasPrefix(detected.String(), "image/") {
		return detected.String()
	}
	return "image/jpeg"
}
