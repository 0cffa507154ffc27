package render

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// progressReader consumes the engine's key=value progress stream
// (-progress pipe:1) and reports render completion as a fraction of the
// expected output duration. Reported values never go backwards and are
// clamped to [0,1]; 1.0 is only emitted on the final progress=end record.
type progressReader struct {
	totalMs int64
	onTick  func(fraction float64)

	lastFraction float64
	pendingUs    int64
}

func newProgressReader(totalMs int64, onTick func(float64)) *progressReader {
	return &progressReader{totalMs: totalMs, onTick: onTick}
}

// consume reads the stream until EOF. Malformed lines are skipped; the
// stream ending is not an error here, render failure is judged by the
// process exit.
func (p *progressReader) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// both fields carry microseconds
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us > p.pendingUs {
				p.pendingUs = us
			}
		case "progress":
			p.flush(value == "end")
		}
	}
}

func (p *progressReader) flush(done bool) {
	if p.onTick == nil {
		return
	}
	if done {
		p.emit(1)
		return
	}
	if p.totalMs <= 0 {
		return
	}
	fraction := float64(p.pendingUs) / 1000 / float64(p.totalMs)
	if fraction > 0.99 {
		fraction = 0.99
	}
	p.emit(fraction)
}

func (p *progressReader) emit(fraction float64) {
	if fraction < p.lastFraction {
		return
	}
	p.lastFraction = fraction
	p.onTick(fraction)
}
