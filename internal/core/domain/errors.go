package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnsupportedFormat  = errors.New("unsupported document format")
	ErrNoExtractableText  = errors.New("no text extracted")
	ErrTemporary          = errors.New("temporary failure")
	ErrStreamNotSupported = errors.New("streaming not supported")
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

// PublicMessage is the error text safe to show a client. Input problems are
// reported as-is; faults collapse to a generic message.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrNoExtractableText):
		return ErrNoExtractableText.Error()
	case IsKind(err, ErrInvalidInput), IsKind(err, ErrUnsupportedFormat):
		return err.Error()
	case IsKind(err, ErrTemporary):
		return "service temporarily unavailable, retry later"
	default:
		return "classification failed"
	}
}
