package textutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClip(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"日本語", 4, "日"},
		{"日本語", 6, "日本"},
		{"aé", 2, "a"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := Clip(tt.in, tt.n); got != tt.want {
			t.Errorf("Clip(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestClipStaysValidUTF8(t *testing.T) {
	s := strings.Repeat("日本語é", 40)
	for n := 0; n <= len(s); n++ {
		got := Clip(s, n)
		if !utf8.ValidString(got) || len(got) > n {
			t.Fatalf("Clip(_, %d) = %q", n, got)
		}
	}
}
