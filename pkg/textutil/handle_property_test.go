//go:build property
// +build property

package textutil

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestHandleizeProperties checks the shape of generated handles
func TestHandleizeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("handles are lowercase ascii with single inner hyphens", prop.ForAll(
		func(s string) bool {
			h := Handleize(s)
			if strings.HasPrefix(h, "-") || strings.HasSuffix(h, "-") || strings.Contains(h, "--") {
				return false
			}
			for _, r := range h {
				if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
	))

	properties.Property("handleize is idempotent", prop.ForAll(
		func(s string) bool {
			h := Handleize(s)
			return Handleize(h) == h
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
