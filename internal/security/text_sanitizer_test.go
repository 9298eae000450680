package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeDisplayName(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Alice", "Alice"},
		{"tags removed", "<b>Alice</b>", "Alice"},
		{"script removed", "<script>alert(1)</script>Bob", "Bob"},
		{"entities kept as text", "Tom & Jerry", "Tom & Jerry"},
		{"whitespace collapsed", "  Carol \n  Danvers  ", "Carol Danvers"},
		{"japanese", "山田 太郎", "山田 太郎"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeDisplayName(tt.in); got != tt.want {
				t.Errorf("SanitizeDisplayName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeDisplayName_Truncates(t *testing.T) {
	s := NewTextSanitizer()

	got := s.SanitizeDisplayName(strings.Repeat("あ", 150))
	if n := utf8.RuneCountInString(got); n != maxDisplayNameLength {
		t.Errorf("length = %d, want %d", n, maxDisplayNameLength)
	}
}

func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizerService = NewTextSanitizer()
}
