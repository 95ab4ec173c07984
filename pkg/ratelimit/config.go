package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Category is a named rate limit policy.
//
// Categories are configured statically at startup, for example
// "public-read", "auth", "posts-regular-user" or "admin-operations".
type Category struct {
	// Name identifies the category in keys, metrics and admin requests.
	Name string

	// Window is the trailing interval requests are counted over.
	Window time.Duration

	// MaxRequests is the number of requests admitted within Window.
	MaxRequests int
}

// Validate checks that the category can be enforced.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("category name must not be empty")
	}
	if c.Window <= 0 {
		return fmt.Errorf("category %q: window must be positive, got %v", c.Name, c.Window)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("category %q: max requests must be positive, got %d", c.Name, c.MaxRequests)
	}
	return nil
}

// Key partitions counters. Two requests share a counter only when both
// the client identifier and the category name are equal.
type Key struct {
	Client   string
	Category string
}

// String renders the key as "category:client".
func (k Key) String() string {
	return k.Category + ":" + k.Client
}

// UnknownClient is the identifier used when no client address can be derived.
const UnknownClient = "unknown"

// SubjectClient returns the client identifier used for subject-keyed routes.
func SubjectClient(subjectID string) string {
	return "subject:" + subjectID
}

// LongestWindow returns the largest window among categories.
func LongestWindow(categories []Category) time.Duration {
	var longest time.Duration
	for _, c := range categories {
		if c.Window > longest {
			longest = c.Window
		}
	}
	return longest
}

// ValidateIdleThreshold rejects an idle threshold shorter than the longest
// window. A shorter threshold lets the sweep evict a key whose window still
// holds live timestamps, resetting that client's quota early.
func ValidateIdleThreshold(idle time.Duration, categories []Category) error {
	if idle <= 0 {
		return fmt.Errorf("idle threshold must be positive, got %v", idle)
	}
	if longest := LongestWindow(categories); idle < longest {
		return fmt.Errorf("idle threshold %v is shorter than the longest window %v", idle, longest)
	}
	return nil
}
