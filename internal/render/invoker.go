// Package render invokes the ffmpeg engine on a built filter graph plan,
// streams progress back to the caller, and classifies failures from the
// engine's stderr tail.
package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/clipforge/exportd/internal/filtergraph"
	"github.com/clipforge/exportd/internal/timeline"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

	audioCodec   = "aac"
	audioBitrate = "192k"
)

// Config holds the invoker's configuration.
type Config struct {
	FFmpegPath string        // path to ffmpeg binary; empty = look up on PATH
	Timeout    time.Duration // wall clock limit per render
	Logger     *slog.Logger
}

// Invoker runs one ffmpeg process per render job.
type Invoker struct {
	cfg    Config
	binary string // resolved ffmpeg path
}

// NewInvoker resolves the engine binary and returns a ready invoker.
func NewInvoker(cfg Config) (*Invoker, error) {
	binary, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("cannot locate render engine: %w", err)
	}
	cfg.Logger.Info("render invoker initialised", "binary", binary, "timeout", cfg.Timeout)
	return &Invoker{cfg: cfg, binary: binary}, nil
}

// Render executes the plan and writes the result to outPath. onProgress, if
// non-nil, receives monotone completion fractions in [0,1]. Failures are
// returned as *RenderError with a stable category.
func (inv *Invoker) Render(ctx context.Context, plan *filtergraph.Plan, settings timeline.ExportSettings, outPath string, onProgress func(float64)) error {
	args, err := BuildArgs(plan, settings, outPath)
	if err != nil {
		return &RenderError{Category: InvalidParameters, Diagnostic: err.Error()}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return &RenderError{Category: PermissionError, Diagnostic: err.Error()}
	}

	if inv.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, inv.binary, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &RenderError{Category: StartupFailure, Diagnostic: err.Error()}
	}

	inv.cfg.Logger.Info("executing render",
		"inputs", len(plan.InputPaths),
		"duration_ms", plan.DurationMs,
		"output", filepath.Base(outPath),
	)

	if err := cmd.Start(); err != nil {
		return &RenderError{Category: StartupFailure, Diagnostic: err.Error()}
	}

	reader := newProgressReader(plan.DurationMs, onProgress)
	reader.consume(stdout)

	runErr := cmd.Wait()
	elapsed := time.Since(start)

	if runErr == nil {
		inv.cfg.Logger.Info("render complete",
			"duration_ms", elapsed.Milliseconds(),
			"output", filepath.Base(outPath),
		)
		return nil
	}

	exitCode := -1
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		runErr = ctxErr
	}

	rerr := Classify(runErr, exitCode, stderrBuf.String())
	inv.cfg.Logger.Warn("render failed",
		"category", string(rerr.Category),
		"exit_code", exitCode,
		"duration_ms", elapsed.Milliseconds(),
		"stderr_tail", truncate(rerr.Diagnostic, 512),
	)
	return rerr
}

// BuildArgs assembles the full engine argument list for a plan. The
// synthetic background canvas is generated as a lavfi color input at the
// slot the plan reserved for it.
func BuildArgs(plan *filtergraph.Plan, settings timeline.ExportSettings, outPath string) ([]string, error) {
	preset, crf, ok := settings.Encoder()
	if !ok {
		return nil, fmt.Errorf("unsupported quality %q", settings.Quality)
	}

	args := []string{"-hide_banner", "-y"}
	for _, path := range plan.InputPaths {
		args = append(args, "-i", path)
	}

	durSec := float64(plan.DurationMs) / 1000
	canvas := fmt.Sprintf("color=c=black:s=%dx%d:r=%d:d=%s",
		plan.Width, plan.Height, plan.FPS,
		strconv.FormatFloat(durSec, 'f', 3, 64),
	)
	args = append(args, "-f", "lavfi", "-i", canvas)

	args = append(args,
		"-filter_complex", plan.Graph.String(),
		"-map", "["+plan.VideoLabel+"]",
		"-map", "["+plan.AudioLabel+"]",
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		"-r", strconv.Itoa(plan.FPS),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		outPath,
	)
	return args, nil
}

// resolveBinary finds a usable engine binary.
func resolveBinary(preferred, fallback string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured binary %q not found", preferred)
	}
	p, err := exec.LookPath(fallback)
	if err != nil {
		return "", fmt.Errorf("%s not found on PATH", fallback)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
