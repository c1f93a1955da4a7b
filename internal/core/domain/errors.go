package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrResultNotFound       = errors.New("result not found")
	ErrBlobExists           = errors.New("blob already exists")
	ErrBlobNotFound         = errors.New("blob not found")
	ErrTemporary            = errors.New("temporary failure")
	ErrPermanent            = errors.New("permanent processing failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
