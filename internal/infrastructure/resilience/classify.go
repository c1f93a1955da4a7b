package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// HTTPStatusCoder is implemented by adapter errors that carry a response code.
type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

// ClassifyCommon handles the cases every adapter treats the same way. The
// second return value reports whether err was recognized.
func ClassifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return ErrorClassification{}, true
	case errors.Is(err, context.Canceled):
		return ErrorClassification{Retryable: false, RecordFailure: false}, true
	case IsCircuitOpen(err):
		return ErrorClassification{Retryable: true, RecordFailure: false}, true
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	case domain.IsKind(err, domain.ErrPermanent),
		domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrBlobExists),
		domain.IsKind(err, domain.ErrBlobNotFound),
		domain.IsKind(err, domain.ErrResultNotFound):
		return ErrorClassification{Retryable: false, RecordFailure: false}, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	}
	return ErrorClassification{}, false
}

// ClassifyHTTP treats throttling and server side failures as retryable.
func ClassifyHTTP(err error) ErrorClassification {
	if class, ok := ClassifyCommon(err); ok {
		return class
	}
	var coder HTTPStatusCoder
	if errors.As(err, &coder) {
		code := coder.HTTPStatusCode()
		if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500 {
			return ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return ErrorClassification{Retryable: false, RecordFailure: true}
}

// IsTemporary reports whether a failed call is worth retrying later.
func IsTemporary(err error, classifier ErrorClassifier) bool {
	if err == nil {
		return false
	}
	if classifier == nil {
		classifier = ClassifyHTTP
	}
	return classifier(err).Retryable
}

// WrapTemporaryIfNeeded marks retryable failures with domain.ErrTemporary so
// callers can map them to 503 or abandon the delivery.
func WrapTemporaryIfNeeded(operation string, err error, classifier ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if IsTemporary(err, classifier) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
