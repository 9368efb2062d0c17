package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	out := String()
	for _, want := range []string{"boardbatch dev", "commit: unknown", "built: unknown"} {
		if !strings.Contains(out, want) {
			t.Fatalf("String() = %q, missing %q", out, want)
		}
	}
}
