package assets

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"element-1", "element-1"},
		{"clip.v2", "clip.v2"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"a/b\\c", "a_b_c"},
		{"id with spaces", "id_with_spaces"},
		{"", "asset"},
		{"...", "asset"},
		{"tab\there", "tabhere"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFilename_Truncates(t *testing.T) {
	got := sanitizeFilename(strings.Repeat("x", 200))
	if len(got) != maxFilenameLen {
		t.Errorf("len = %d, want %d", len(got), maxFilenameLen)
	}
}

func TestDestName_DisambiguatesSanitizeCollisions(t *testing.T) {
	pairs := [][2]string{
		{"clip a", "clip_a"},
		{"a/b", "a\\b"},
		{strings.Repeat("y", 64) + "1", strings.Repeat("y", 64) + "2"},
	}
	for _, p := range pairs {
		if sanitizeFilename(p[0]) != sanitizeFilename(p[1]) {
			t.Fatalf("pair %q/%q no longer collides, pick another", p[0], p[1])
		}
		if destName(p[0]) == destName(p[1]) {
			t.Errorf("destName(%q) == destName(%q)", p[0], p[1])
		}
	}
}
