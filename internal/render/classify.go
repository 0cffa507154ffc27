package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory identifies the failure class of a render, derived from the
// engine's stderr output and exit condition.
type ErrorCategory string

const (
	CorruptedInput    ErrorCategory = "corrupted_input"
	MissingFile       ErrorCategory = "missing_file"
	PermissionError   ErrorCategory = "permission_error"
	UnsupportedCodec  ErrorCategory = "unsupported_codec"
	FilterError       ErrorCategory = "filter_error"
	ConversionError   ErrorCategory = "conversion_error"
	StorageFull       ErrorCategory = "storage_full"
	OutOfMemory       ErrorCategory = "out_of_memory"
	InvalidParameters ErrorCategory = "invalid_parameters"
	StartupFailure    ErrorCategory = "startup_failure"
	Unknown           ErrorCategory = "unknown"
)

// RenderError carries the failure category plus the diagnostic tail for the
// job record. Category is stable API surface; Diagnostic is free text.
type RenderError struct {
	Category   ErrorCategory
	Diagnostic string
	ExitCode   int
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render failed (%s): %s", e.Category, e.Diagnostic)
}

// patterns maps lowercase stderr fragments to categories, matched in order.
// More specific fragments come before generic ones.
var patterns = []struct {
	fragment string
	category ErrorCategory
}{
	{"moov atom not found", CorruptedInput},
	{"invalid data found when processing input", CorruptedInput},
	{"corrupt", CorruptedInput},
	{"truncat", CorruptedInput},
	{"no such file or directory", MissingFile},
	{"does not exist", MissingFile},
	{"permission denied", PermissionError},
	{"operation not permitted", PermissionError},
	{"decoder not found", UnsupportedCodec},
	{"encoder not found", UnsupportedCodec},
	{"unknown encoder", UnsupportedCodec},
	{"unsupported codec", UnsupportedCodec},
	{"codec not currently supported", UnsupportedCodec},
	{"no filter named", FilterError},
	{"error initializing filter", FilterError},
	{"invalid filtergraph", FilterError},
	{"failed to configure", FilterError},
	{"error reinitializing filters", FilterError},
	{"no space left on device", StorageFull},
	{"disk full", StorageFull},
	{"cannot allocate memory", OutOfMemory},
	{"out of memory", OutOfMemory},
	{"error allocating", OutOfMemory},
	{"option not found", InvalidParameters},
	{"unrecognized option", InvalidParameters},
	{"invalid argument", InvalidParameters},
	{"error parsing", InvalidParameters},
	{"error while decoding", ConversionError},
	{"error while encoding", ConversionError},
	{"conversion failed", ConversionError},
}

// Classify maps an engine failure to a RenderError. A start error (binary
// missing, not executable) is a StartupFailure regardless of stderr; an
// exceeded deadline stays Unknown with a timeout diagnostic.
func Classify(err error, exitCode int, stderrTail string) *RenderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &RenderError{
			Category:   Unknown,
			Diagnostic: "render timed out",
			ExitCode:   exitCode,
		}
	}
	if exitCode == -1 && stderrTail == "" {
		return &RenderError{
			Category:   StartupFailure,
			Diagnostic: err.Error(),
			ExitCode:   exitCode,
		}
	}

	lower := strings.ToLower(stderrTail)
	for _, p := range patterns {
		if strings.Contains(lower, p.fragment) {
			return &RenderError{
				Category:   p.category,
				Diagnostic: lastLines(stderrTail, 5),
				ExitCode:   exitCode,
			}
		}
	}

	return &RenderError{
		Category:   Unknown,
		Diagnostic: lastLines(stderrTail, 5),
		ExitCode:   exitCode,
	}
}

// lastLines returns the final n non-empty lines of s.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	var kept []string
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			kept = append([]string{line}, kept...)
		}
	}
	return strings.Join(kept, "\n")
}
