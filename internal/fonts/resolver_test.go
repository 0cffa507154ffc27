package fonts

import (
	"errors"
	"io/fs"
	"os"
	"testing"
	"time"
)

type fakeFileInfo struct{ name string }

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return 1 }
func (f fakeFileInfo) Mode() fs.FileMode  { return 0644 }
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool        { return false }
func (f fakeFileInfo) Sys() interface{}   { return nil }

// resolverWithFiles returns a Resolver that believes exactly the given
// paths exist.
func resolverWithFiles(paths ...string) *Resolver {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	r := NewResolver(nil)
	r.stat = func(path string) (os.FileInfo, error) {
		if set[path] {
			return fakeFileInfo{name: path}, nil
		}
		return nil, errors.New("not found")
	}
	return r
}

func TestResolve_KnownFamily(t *testing.T) {
	r := resolverWithFiles("/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf")
	got := r.Resolve("Arial", "400")
	if got != "/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestResolve_BoldPreferred(t *testing.T) {
	r := resolverWithFiles(
		"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
		"/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf",
	)
	got := r.Resolve("Arial", "bold")
	if got != "/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf" {
		t.Errorf("Resolve = %q, want bold variant", got)
	}
}

func TestResolve_BoldFallsBackToRegular(t *testing.T) {
	r := resolverWithFiles("/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf")
	got := r.Resolve("Arial", "700")
	if got != "/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf" {
		t.Errorf("Resolve = %q, want regular fallback", got)
	}
}

func TestResolve_SkipsGenericKeywords(t *testing.T) {
	r := resolverWithFiles("/usr/share/fonts/truetype/dejavu/DejaVuSerif.ttf")
	got := r.Resolve("sans-serif, Georgia", "400")
	if got != "/usr/share/fonts/truetype/dejavu/DejaVuSerif.ttf" {
		t.Errorf("Resolve = %q, want Georgia candidate", got)
	}
}

func TestResolve_UnknownFamilyUsesUniversalChain(t *testing.T) {
	r := resolverWithFiles("/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf")
	got := r.Resolve("Comic Papyrus", "400")
	if got != "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf" {
		t.Errorf("Resolve = %q, want universal fallback", got)
	}
}

func TestResolve_NothingAvailable(t *testing.T) {
	r := resolverWithFiles()
	if got := r.Resolve("Arial", "bold"); got != "" {
		t.Errorf("Resolve = %q, want empty", got)
	}
}

func TestResolve_Memoized(t *testing.T) {
	calls := 0
	r := NewResolver(nil)
	r.stat = func(path string) (os.FileInfo, error) {
		calls++
		return nil, errors.New("not found")
	}
	r.Resolve("Arial", "400")
	first := calls
	r.Resolve("Arial", "400")
	if calls != first {
		t.Errorf("stat called %d times after memoized lookup, want %d", calls, first)
	}
}

func TestIsBoldWeight(t *testing.T) {
	tests := []struct {
		weight string
		want   bool
	}{
		{"bold", true},
		{"Bold", true},
		{"700", true},
		{"900", true},
		{"400", false},
		{"normal", false},
		{"", false},
		{"1000", false},
	}
	for _, tt := range tests {
		if got := isBoldWeight(tt.weight); got != tt.want {
			t.Errorf("isBoldWeight(%q) = %v, want %v", tt.weight, got, tt.want)
		}
	}
}

func TestFirstConcreteFamily(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Arial, sans-serif", "arial"},
		{`"Times New Roman", serif`, "times new roman"},
		{"sans-serif", ""},
		{"", ""},
		{" 'Verdana' ", "verdana"},
	}
	for _, tt := range tests {
		if got := firstConcreteFamily(tt.in); got != tt.want {
			t.Errorf("firstConcreteFamily(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
