package config

import (
	"fmt"
	"time"
)

// ValidatePositiveDuration rejects zero and negative durations.
func ValidatePositiveDuration(d time.Duration) error {
	if d > 0 {
		return nil
	}
	return fmt.Errorf("must be positive, got %v", d)
}

// ValidateDurationRange rejects d outside [lo, hi].
//
//	// CSRF tokens live between a minute and a week.
//	err := ValidateDurationRange(ttl, time.Minute, 7*24*time.Hour)
func ValidateDurationRange(d, lo, hi time.Duration) error {
	switch {
	case lo > hi:
		return fmt.Errorf("empty range [%v, %v]", lo, hi)
	case d < lo, d > hi:
		return fmt.Errorf("%v is outside [%v, %v]", d, lo, hi)
	}
	return nil
}
