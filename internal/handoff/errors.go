package handoff

import (
	"errors"
	"fmt"
)

const (
	CodeConfigMissing     = "CONFIG_MISSING"
	CodeConfigInvalid     = "CONFIG_INVALID"
	CodeContentNotReady   = "CONTENT_NOT_READY"
	CodeNoEligibleTarget  = "NO_ELIGIBLE_TARGET"
	CodeSignatureMismatch = "SIGNATURE_MISMATCH"
	CodeStaleEntry        = "STALE_ENTRY"
	CodeNoEntry           = "NO_ENTRY"
	CodeValidation        = "VALIDATION"
)

// CodedError is a typed error carrying a stable code for API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// IsCode reports whether err carries the given handoff code anywhere in its chain.
func IsCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}
