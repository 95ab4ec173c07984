package csrf

import (
	"encoding/base64"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		v, err := generate(32)
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(v)
		require.NoError(t, err)
		assert.Len(t, raw, 32)

		assert.False(t, seen[v], "tokens must not repeat")
		seen[v] = true
	}

	_, err := generate(MinTokenBytes - 1)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	a, err := generate(32)
	require.NoError(t, err)
	b, err := generate(32)
	require.NoError(t, err)

	tests := []struct {
		name      string
		presented string
		issued    string
		want      bool
	}{
		{name: "identical", presented: a, issued: a, want: true},
		{name: "different token", presented: b, issued: a, want: false},
		{name: "prefix", presented: a[:len(a)-1], issued: a, want: false},
		{name: "longer", presented: a + "x", issued: a, want: false},
		{name: "last byte differs", presented: a[:len(a)-1] + flip(a[len(a)-1]), issued: a, want: false},
		{name: "both empty", presented: "", issued: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.presented, tt.issued))
		})
	}
}

func flip(c byte) string {
	if c == 'A' {
		return "B"
	}
	return "A"
}

// TestValidate_TimingIndependentOfMismatchPosition compares the median
// cost of rejecting a token that differs in its first byte against one
// that differs in its last byte. A short-circuiting comparison would make
// the first case much cheaper.
func TestValidate_TimingIndependentOfMismatchPosition(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test skipped in short mode")
	}

	issued := strings.Repeat("a", 4096)
	early := "b" + issued[1:]
	late := issued[:len(issued)-1] + "b"

	measure := func(presented string) time.Duration {
		const rounds = 31
		samples := make([]time.Duration, rounds)
		for i := range samples {
			start := time.Now()
			for j := 0; j < 200; j++ {
				Validate(presented, issued)
			}
			samples[i] = time.Since(start)
		}
		return median(samples)
	}

	// warm up
	measure(early)
	measure(late)

	e, l := measure(early), measure(late)
	ratio := float64(l) / float64(e)
	if ratio < 1 {
		ratio = 1 / ratio
	}
	assert.Less(t, ratio, 3.0, "early=%v late=%v", e, l)
}

func median(d []time.Duration) time.Duration {
	sorted := slices.Clone(d)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}
