// Package pathutil reduces request paths to low-cardinality labels for
// metrics and span names.
package pathutil

import (
	"regexp"
	"strings"
)

// MaxSegments caps the number of path segments kept in a label. Deeper
// paths are truncated and suffixed with "/...".
const MaxSegments = 6

// Placeholder replaces identifier-like path segments.
const Placeholder = ":id"

var (
	numericSegment = regexp.MustCompile(`^\d+$`)
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	hexSegment     = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
)

// NormalizePath converts a request path into a template by replacing
// numeric, UUID and long hex segments with ":id". The gateway proxies
// arbitrary upstream paths, so the rules are structural rather than a fixed
// route list.
//
//	NormalizePath("/api/users/42/orders")  // "/api/users/:id/orders"
//	NormalizePath("/api/items/0a1b2c3d4e5f6a7b")  // "/api/items/:id"
//	NormalizePath("/health?full=1")        // "/health"
func NormalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	if path == "" || path == "/" {
		return "/"
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	truncated := false
	if len(segments) > MaxSegments {
		segments = segments[:MaxSegments]
		truncated = true
	}
	for i, s := range segments {
		if IsIdentifier(s) {
			segments[i] = Placeholder
		}
	}

	out := "/" + strings.Join(segments, "/")
	if truncated {
		out += "/..."
	}
	return out
}

// IsIdentifier reports whether a single path segment looks like a record
// identifier.
func IsIdentifier(segment string) bool {
	if segment == "" {
		return false
	}
	return numericSegment.MatchString(segment) ||
		uuidSegment.MatchString(segment) ||
		hexSegment.MatchString(segment)
}
