package textutil

import "testing"

func TestHandleize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Café y Niño!", "cafe-y-nino"},
		{"  Red   Shoes  ", "red-shoes"},
		{"--Summer--Sale--", "summer-sale"},
		{"Straße & Ærø", "strasse-aero"},
		{"100% Cotton T-Shirt", "100-cotton-t-shirt"},
		{"日本語", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Handleize(tt.in); got != tt.want {
			t.Errorf("Handleize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTransliterate(t *testing.T) {
	if got := Transliterate("Crème Brûlée"); got != "Creme Brulee" {
		t.Errorf("Transliterate = %q", got)
	}
}

func TestHumanize(t *testing.T) {
	if got := Humanize("add_to_cart"); got != "Add to cart" {
		t.Errorf("Humanize = %q", got)
	}
}
