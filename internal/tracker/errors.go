package tracker

import (
	"errors"
	"fmt"

	"github.com/trk-project/trk/internal/policy"
	"github.com/trk-project/trk/internal/store"
)

// DeniedError reports a rejected operation with its caller-visible
// reason. No partial state change has occurred when it is returned.
type DeniedError struct {
	Action policy.Action
	Reason policy.Reason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s denied: %s", e.Action, e.Reason)
}

// ValidationError reports malformed input. The operation was not applied.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, a ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, a...)}
}

// Denied returns the deny reason if err is a permission denial.
func Denied(err error) (policy.Reason, bool) {
	var de *DeniedError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return "", false
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err means a referenced record is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
