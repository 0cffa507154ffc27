// Package fonts maps CSS-style font family requests to font files available
// on the host. Resolution is best-effort: when nothing matches, the render
// engine falls back to its built-in font.
package fonts

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// genericFamilies are CSS keywords that never name a concrete font.
var genericFamilies = map[string]bool{
	"serif":      true,
	"sans-serif": true,
	"monospace":  true,
	"cursive":    true,
	"fantasy":    true,
	"system-ui":  true,
}

type candidate struct {
	regular []string
	bold    []string
}

// table maps lowercased logical family names to platform font files.
// Paths cover Linux, Windows and macOS; the first file that exists wins.
var table = map[string]candidate{
	"arial": {
		regular: []string{
			"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
			"/usr/share/fonts/liberation/LiberationSans-Regular.ttf",
			"C:\\Windows\\Fonts\\arial.ttf",
			"/Library/Fonts/Arial.ttf",
		},
		bold: []string{
			"/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf",
			"/usr/share/fonts/liberation/LiberationSans-Bold.ttf",
			"C:\\Windows\\Fonts\\arialbd.ttf",
			"/Library/Fonts/Arial Bold.ttf",
		},
	},
	"helvetica": {
		regular: []string{
			"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
			"C:\\Windows\\Fonts\\arial.ttf",
			"/System/Library/Fonts/Helvetica.ttc",
		},
		bold: []string{
			"/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf",
			"C:\\Windows\\Fonts\\arialbd.ttf",
			"/System/Library/Fonts/Helvetica.ttc",
		},
	},
	"times new roman": {
		regular: []string{
			"/usr/share/fonts/truetype/liberation/LiberationSerif-Regular.ttf",
			"C:\\Windows\\Fonts\\times.ttf",
			"/Library/Fonts/Times New Roman.ttf",
		},
		bold: []string{
			"/usr/share/fonts/truetype/liberation/LiberationSerif-Bold.ttf",
			"C:\\Windows\\Fonts\\timesbd.ttf",
			"/Library/Fonts/Times New Roman Bold.ttf",
		},
	},
	"courier new": {
		regular: []string{
			"/usr/share/fonts/truetype/liberation/LiberationMono-Regular.ttf",
			"C:\\Windows\\Fonts\\cour.ttf",
			"/Library/Fonts/Courier New.ttf",
		},
		bold: []string{
			"/usr/share/fonts/truetype/liberation/LiberationMono-Bold.ttf",
			"C:\\Windows\\Fonts\\courbd.ttf",
			"/Library/Fonts/Courier New Bold.ttf",
		},
	},
	"georgia": {
		regular: []string{
			"/usr/share/fonts/truetype/dejavu/DejaVuSerif.ttf",
			"C:\\Windows\\Fonts\\georgia.ttf",
			"/Library/Fonts/Georgia.ttf",
		},
		bold: []string{
			"/usr/share/fonts/truetype/dejavu/DejaVuSerif-Bold.ttf",
			"C:\\Windows\\Fonts\\georgiab.ttf",
			"/Library/Fonts/Georgia Bold.ttf",
		},
	},
	"verdana": {
		regular: []string{
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"C:\\Windows\\Fonts\\verdana.ttf",
			"/Library/Fonts/Verdana.ttf",
		},
		bold: []string{
			"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
			"C:\\Windows\\Fonts\\verdanab.ttf",
			"/Library/Fonts/Verdana Bold.ttf",
		},
	},
}

// universal is the cross-platform fallback chain tried when the requested
// family has no table entry or none of its files exist on this host.
// Linux first, then Windows, then macOS.
var universal = candidate{
	regular: []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
		"C:\\Windows\\Fonts\\arial.ttf",
		"/System/Library/Fonts/Helvetica.ttc",
	},
	bold: []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
		"/usr/share/fonts/dejavu/DejaVuSans-Bold.ttf",
		"/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf",
		"C:\\Windows\\Fonts\\arialbd.ttf",
		"/System/Library/Fonts/Helvetica.ttc",
	},
}

// Resolver resolves font family requests against the host filesystem.
// Lookups are memoized; a Resolver is safe for concurrent use.
type Resolver struct {
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]string

	// stat is swapped in tests
	stat func(string) (os.FileInfo, error)
}

func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{
		logger: logger,
		cache:  make(map[string]string),
		stat:   os.Stat,
	}
}

// Resolve returns a font file path for the requested family and weight, or
// an empty string when no usable file exists. It never returns an error:
// absence degrades to the engine default.
func (r *Resolver) Resolve(family, weight string) string {
	name := firstConcreteFamily(family)
	bold := isBoldWeight(weight)

	key := name
	if bold {
		key += "|bold"
	}

	r.mu.Lock()
	if path, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return path
	}
	r.mu.Unlock()

	path := r.lookup(name, bold)

	r.mu.Lock()
	r.cache[key] = path
	r.mu.Unlock()

	if path == "" && r.logger != nil {
		r.logger.Debug("no font file resolved, engine default will be used",
			"family", family, "weight", weight)
	}
	return path
}

func (r *Resolver) lookup(name string, bold bool) string {
	if c, ok := table[name]; ok {
		if path := r.firstExisting(c, bold); path != "" {
			return path
		}
	}
	return r.firstExisting(universal, bold)
}

func (r *Resolver) firstExisting(c candidate, bold bool) string {
	chains := [][]string{c.regular}
	if bold {
		chains = [][]string{c.bold, c.regular}
	}
	for _, chain := range chains {
		for _, path := range chain {
			if info, err := r.stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
	}
	return ""
}

// firstConcreteFamily parses a CSS comma-separated family list and returns
// the first non-generic name, lowercased and unquoted.
func firstConcreteFamily(family string) string {
	for _, part := range strings.Split(family, ",") {
		name := strings.TrimSpace(part)
		name = strings.Trim(name, `"'`)
		name = strings.ToLower(name)
		if name == "" || genericFamilies[name] {
			continue
		}
		return name
	}
	return ""
}

// isBoldWeight reports whether a CSS font-weight asks for a bold variant:
// the keyword "bold" or a numeric weight of 700 and above.
func isBoldWeight(weight string) bool {
	w := strings.ToLower(strings.TrimSpace(weight))
	if w == "bold" || w == "bolder" {
		return true
	}
	if n, err := strconv.Atoi(w); err == nil {
		return n >= 700 && n <= 900
	}
	return false
}
