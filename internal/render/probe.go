package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 10 * time.Second

// Probe verifies at startup that both engine binaries are installed and
// executable, returning the renderer's version banner. A service that cannot
// render should fail fast rather than accept jobs it will never complete.
func Probe(ctx context.Context, ffmpegPath, ffprobePath string) (string, error) {
	version, err := probeBinary(ctx, ffmpegPath, "ffmpeg")
	if err != nil {
		return "", err
	}
	if _, err := probeBinary(ctx, ffprobePath, "ffprobe"); err != nil {
		return "", err
	}
	return version, nil
}

func probeBinary(ctx context.Context, preferred, fallback string) (string, error) {
	binary, err := resolveBinary(preferred, fallback)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "-version")
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s probe failed: %w", fallback, err)
	}

	first, _, _ := strings.Cut(out.String(), "\n")
	return strings.TrimSpace(first), nil
}
