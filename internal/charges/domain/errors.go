package charges

import (
	"errors"
	"fmt"
)

var (
	// ErrInconsistentResult is returned when restoring a partially computed charge.
	ErrInconsistentResult = errors.New("charges: inconsistent charge result")
	// ErrEmptyBinding is returned when a charge or register has no binding.
	ErrEmptyBinding = errors.New("charges: empty binding")
)

// ChargeError ties a formula failure to the charge that produced it.
type ChargeError struct {
	Binding string
	Err     error
}

func (e *ChargeError) Error() string {
	return fmt.Sprintf("charge %q: %v", e.Binding, e.Err)
}

func (e *ChargeError) Unwrap() error { return e.Err }
