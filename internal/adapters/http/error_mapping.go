package httpadapter

import (
	"net/http"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnsupportedMediaType):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrResultNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

const (
	internalErrorDetail    = "Internal server error"
	unavailableErrorDetail = "Service temporarily unavailable, please retry later"
)

// errorDetail returns the innermost message for client errors so callers see
// "Unsupported file type: text/plain" rather than the wrapping chain. Server
// errors get a fixed message; the chain is only logged.
func errorDetail(err error) string {
	switch mapErrorToHTTPStatus(err) {
	case http.StatusBadRequest:
	case http.StatusServiceUnavailable:
		return unavailableErrorDetail
	case http.StatusInternalServerError:
		return internalErrorDetail
	default:
		return err.Error()
	}
	for {
		switch e := err.(type) {
		case interface{ Unwrap() []error }:
			errs := e.Unwrap()
			if len(errs) == 0 {
				return err.Error()
			}
			err = errs[len(errs)-1]
		case interface{ Unwrap() error }:
			next := e.Unwrap()
			if next == nil {
				return err.Error()
			}
			err = next
		default:
			return err.Error()
		}
	}
}
