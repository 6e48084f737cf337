package utilbill

import (
	"fmt"
	"time"
)

// MaxPeriod is the longest allowed billing period.
const MaxPeriod = 365 * 24 * time.Hour

// ValidatePeriod checks start < end and end-start <= 365 days. It is a no-op
// when either bound is zero.
func ValidatePeriod(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return nil
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidPeriod, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	if end.Sub(start) > MaxPeriod {
		return fmt.Errorf("%w: period from %s to %s is longer than 365 days", ErrInvalidPeriod, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return nil
}
