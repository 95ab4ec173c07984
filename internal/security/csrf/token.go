package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"
)

// MinTokenBytes is the smallest accepted token entropy.
const MinTokenBytes = 16

// Token is an issued CSRF token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// generate returns n bytes from crypto/rand, base64url encoded without
// padding.
func generate(n int) (string, error) {
	if n < MinTokenBytes {
		return "", fmt.Errorf("token length %d is below the minimum of %d bytes", n, MinTokenBytes)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Validate reports whether presented equals issued.
//
// Lengths are compared first; token length is not secret. Content is
// compared with subtle.ConstantTimeCompare, which folds the XOR of every
// byte pair into one accumulator and so takes the same time wherever the
// first difference is. Expiry is not considered here.
func Validate(presented, issued string) bool {
	if len(presented) != len(issued) || len(issued) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(issued)) == 1
}
