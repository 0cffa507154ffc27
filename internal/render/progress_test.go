package render

import (
	"strings"
	"testing"
)

func TestProgressReader_ReportsFractions(t *testing.T) {
	stream := strings.Join([]string{
		"frame=30",
		"out_time_us=1000000",
		"progress=continue",
		"out_time_us=5000000",
		"progress=continue",
		"out_time_us=10000000",
		"progress=end",
	}, "\n")

	var got []float64
	r := newProgressReader(10000, func(f float64) { got = append(got, f) })
	r.consume(strings.NewReader(stream))

	want := []float64{0.1, 0.5, 1}
	if len(got) != len(want) {
		t.Fatalf("ticks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tick %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestProgressReader_NeverRegresses(t *testing.T) {
	stream := strings.Join([]string{
		"out_time_us=5000000",
		"progress=continue",
		"out_time_us=2000000",
		"progress=continue",
		"progress=end",
	}, "\n")

	var got []float64
	r := newProgressReader(10000, func(f float64) { got = append(got, f) })
	r.consume(strings.NewReader(stream))

	last := -1.0
	for _, f := range got {
		if f < last {
			t.Fatalf("progress regressed: %v", got)
		}
		last = f
	}
}

func TestProgressReader_CapsBeforeEnd(t *testing.T) {
	stream := strings.Join([]string{
		"out_time_us=99999999",
		"progress=continue",
	}, "\n")

	var got []float64
	r := newProgressReader(10000, func(f float64) { got = append(got, f) })
	r.consume(strings.NewReader(stream))

	if len(got) != 1 || got[0] != 0.99 {
		t.Errorf("ticks = %v, want single 0.99", got)
	}
}

func TestProgressReader_SkipsMalformedLines(t *testing.T) {
	stream := strings.Join([]string{
		"garbage",
		"out_time_us=notanumber",
		"out_time_us=1000000",
		"progress=continue",
	}, "\n")

	var got []float64
	r := newProgressReader(10000, func(f float64) { got = append(got, f) })
	r.consume(strings.NewReader(stream))

	if len(got) != 1 || got[0] != 0.1 {
		t.Errorf("ticks = %v, want single 0.1", got)
	}
}

func TestProgressReader_ZeroDuration(t *testing.T) {
	stream := strings.Join([]string{
		"out_time_us=1000000",
		"progress=continue",
		"progress=end",
	}, "\n")

	var got []float64
	r := newProgressReader(0, func(f float64) { got = append(got, f) })
	r.consume(strings.NewReader(stream))

	// only the terminal tick fires when the expected duration is unknown
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("ticks = %v, want single 1", got)
	}
}
