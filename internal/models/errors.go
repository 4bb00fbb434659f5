package models

import (
	"errors"
	"fmt"
)

// Error kinds. A *CatalogError wraps exactly one of these.
var (
	ErrNoConnectivity    = errors.New("no connectivity")
	ErrServer            = errors.New("server error")
	ErrTimeout           = errors.New("timed out")
	ErrNotFound          = errors.New("not found")
	ErrPartialFailure    = errors.New("partial failure")
	ErrUnexpected        = errors.New("unexpected error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// CatalogError carries an error kind, a user-facing message and the cause
type CatalogError struct {
	Kind    error
	Message string
	Cause   error
}

// NewError builds a CatalogError of the given kind
func NewError(kind error, message string, cause error) *CatalogError {
	return &CatalogError{Kind: kind, Message: message, Cause: cause}
}

func (e *CatalogError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CatalogError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// KindOf classifies err into one of the kind sentinels. The outermost
// CatalogError decides, so a wrapper may reclassify its cause.
func KindOf(err error) error {
	var ce *CatalogError
	if errors.As(err, &ce) {
		err = ce.Kind
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoConnectivity):
		return ErrNoConnectivity
	case errors.Is(err, ErrTimeout):
		return ErrTimeout
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrInvalidArgument):
		return ErrInvalidArgument
	case errors.Is(err, ErrPartialFailure):
		return ErrPartialFailure
	case errors.Is(err, ErrServer), errors.Is(err, ErrMalformedResponse):
		return ErrServer
	default:
		return ErrUnexpected
	}
}

// UserMessage maps an error to the text shown to end users
func UserMessage(err error) string {
	switch KindOf(err) {
	case nil:
		return ""
	case ErrNoConnectivity:
		return "No internet connection"
	case ErrTimeout:
		return "Request timed out"
	case ErrNotFound:
		return "Not found"
	case ErrInvalidArgument:
		return "Invalid request"
	case ErrPartialFailure:
		return "Some items could not be loaded"
	case ErrServer:
		return "Server error"
	default:
		return "Something went wrong"
	}
}
