// Package filtergraph builds the filter_complex program handed to the render
// engine. The graph is assembled as a typed IR and validated for
// connectivity before serialization, so construction bugs surface at build
// time instead of as opaque engine failures.
package filtergraph

import (
	"fmt"
	"strings"
)

// Step is one filter invocation inside a chain, e.g. scale=1280:720.
type Step struct {
	Name string
	Args string
}

func (s Step) String() string {
	if s.Args == "" {
		return s.Name
	}
	return s.Name + "=" + s.Args
}

// Node is one filtergraph statement: zero or more input labels, a chain of
// filters, one or more output labels. Source filters (color, anullsrc)
// have no inputs.
type Node struct {
	Inputs  []string
	Steps   []Step
	Outputs []string
}

func (n *Node) String() string {
	var b strings.Builder
	for _, in := range n.Inputs {
		b.WriteString("[" + in + "]")
	}
	parts := make([]string, len(n.Steps))
	for i, s := range n.Steps {
		parts[i] = s.String()
	}
	b.WriteString(strings.Join(parts, ","))
	for _, out := range n.Outputs {
		b.WriteString("[" + out + "]")
	}
	return b.String()
}

// Graph is an ordered list of filter statements plus the set of engine input
// stream labels (like "0:v") the statements may consume.
type Graph struct {
	nodes   []*Node
	sources map[string]bool
}

func New() *Graph {
	return &Graph{sources: make(map[string]bool)}
}

// Source registers an engine input stream label (e.g. "2:a") as a valid
// dangling input for the graph.
func (g *Graph) Source(label string) {
	g.sources[label] = true
}

// Add appends a statement node. Inputs must already be registered sources or
// outputs of earlier nodes by the time Validate runs.
func (g *Graph) Add(inputs []string, steps []Step, outputs ...string) {
	g.nodes = append(g.nodes, &Node{Inputs: inputs, Steps: steps, Outputs: outputs})
}

// Chain is shorthand for a single-input single-output statement.
func (g *Graph) Chain(input string, steps []Step, output string) {
	g.Add([]string{input}, steps, output)
}

// Validate checks graph connectivity: every consumed label must be produced
// once (or be a registered source), no label of either kind may be consumed
// more than once, every produced label must be consumed except the two
// designated sinks, and no label may be produced twice.
func (g *Graph) Validate(videoSink, audioSink string) error {
	produced := make(map[string]int)
	consumed := make(map[string]int)

	for _, n := range g.nodes {
		if len(n.Steps) == 0 {
			return fmt.Errorf("filtergraph: node with outputs %v has no filters", n.Outputs)
		}
		for _, in := range n.Inputs {
			consumed[in]++
		}
		for _, out := range n.Outputs {
			produced[out]++
			if produced[out] > 1 {
				return fmt.Errorf("filtergraph: label %q produced more than once", out)
			}
		}
	}

	for label, count := range consumed {
		// engine input streams are single-use too: feeding one into two
		// chains is rejected at run time just like a duplicated label
		if count > 1 {
			return fmt.Errorf("filtergraph: label %q consumed %d times", label, count)
		}
		if g.sources[label] {
			continue
		}
		if produced[label] == 0 {
			return fmt.Errorf("filtergraph: label %q consumed but never produced", label)
		}
	}

	for _, sink := range []string{videoSink, audioSink} {
		if produced[sink] == 0 {
			return fmt.Errorf("filtergraph: sink label %q never produced", sink)
		}
		if consumed[sink] > 0 {
			return fmt.Errorf("filtergraph: sink label %q consumed inside the graph", sink)
		}
	}

	for label := range produced {
		if label == videoSink || label == audioSink {
			continue
		}
		if consumed[label] == 0 {
			return fmt.Errorf("filtergraph: label %q dangles (produced but never consumed)", label)
		}
	}

	return nil
}

// String serializes the graph to filter_complex syntax: statements joined by
// semicolons.
func (g *Graph) String() string {
	parts := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ";")
}

// EscapeText escapes a string for use inside a quoted drawtext text value.
func EscapeText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\\\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}
