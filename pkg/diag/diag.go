// Package diag collects the observational findings of a parse. None of them stop a parse;
// callers decide what, if anything, to escalate.
package diag

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Kind classifies a diagnostic.
type Kind string

const (
	// KindUnclassified is a line that matched no pattern while no clause was open.
	KindUnclassified Kind = "classification_ambiguity"
	// KindOrphan is a node whose parent could be found neither by id nor on the context stack.
	KindOrphan Kind = "orphan_node"
	// KindClauseGap is a clause whose number is not the previous clause number plus one.
	KindClauseGap Kind = "out_of_order_clause"
	// KindFallbackParent is a node attached through the context stack instead of its id.
	KindFallbackParent Kind = "fallback_parent"
	// KindDuplicate is a second occurrence of an id that already has a node.
	KindDuplicate Kind = "duplicate_node"
)

// Diagnostic is a single finding.
type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	NodeID  string `json:"node_id,omitempty"`
	Page    int    `json:"page,omitempty"`
	Line    string `json:"line,omitempty"`
	Message string `json:"message"`
}

// Sink receives diagnostics as they are found.
type Sink interface {
	Report(d Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(d Diagnostic)

// Report calls f(d).
func (f SinkFunc) Report(d Diagnostic) { f(d) }

// Discard drops every diagnostic.
var Discard Sink = SinkFunc(func(Diagnostic) {})

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

// Collector keeps every diagnostic in arrival order. It is safe for concurrent use so one
// collector can serve a batch of documents.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Report records d.
func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, d)
}

// All returns a copy of the recorded diagnostics.
func (c *Collector) All() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of recorded diagnostics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Count returns how many diagnostics of kind k were recorded.
func (c *Collector) Count(k Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.items {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// ByKind returns the recorded diagnostics of kind k in arrival order.
func (c *Collector) ByKind(k Kind) []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Diagnostic
	for _, d := range c.items {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// Kinds returns the distinct kinds seen, sorted.
func (c *Collector) Kinds() []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[Kind]bool)
	var kinds []Kind
	for _, d := range c.items {
		if !seen[d.Kind] {
			seen[d.Kind] = true
			kinds = append(kinds, d.Kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// LogSink writes each diagnostic to logger at debug level.
func LogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(d Diagnostic) {
		logger.LogAttrs(context.Background(), slog.LevelDebug, d.Message,
			slog.String("kind", string(d.Kind)),
			slog.String("node", d.NodeID),
			slog.Int("page", d.Page),
			slog.String("line", d.Line),
		)
	})
}

// Tee forwards every diagnostic to each non-nil sink.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(d Diagnostic) {
		for _, s := range sinks {
			if s != nil {
				s.Report(d)
			}
		}
	})
}
