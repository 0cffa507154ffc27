package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

const maxFilenameLen = 64

// destName derives the per-element download file name. Sanitizing alone can
// collapse distinct element ids onto the same string, so a short digest of
// the raw id is appended to keep destinations unique within a job.
func destName(id string) string {
	sum := sha256.Sum256([]byte(id))
	return sanitizeFilename(id) + "-" + hex.EncodeToString(sum[:4])
}

// sanitizeFilename reduces an element id to a safe file name component.
// Element ids arrive in the request body, so path separators and control
// characters must never reach the filesystem.
func sanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedFilenameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	runes := []rune(cleaned)
	if len(runes) > maxFilenameLen {
		cleaned = string(runes[:maxFilenameLen])
	}
	if cleaned == "" || strings.Trim(cleaned, ".") == "" {
		return "asset"
	}
	return cleaned
}

func isAllowedFilenameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '-', '_', '.':
		return true
	default:
		return false
	}
}
