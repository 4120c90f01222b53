package tree

import (
	"fmt"
	"strings"

	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/grammar"
)

// rootScope is the sequencing key shared by nodes without a parent.
const rootScope = "__root__"

// NodeSpec describes a node to add.
type NodeSpec struct {
	Type    grammar.NodeType
	ID      string
	Title   string
	Content string
	Page    int
}

// Option configures a Builder.
type Option func(*Builder)

// WithReferences extracts cross-references from node content with x.
func WithReferences(x RefExtractor) Option {
	return func(b *Builder) { b.refs = x }
}

// WithDiagnostics reports orphans, fallback parents and duplicates to sink.
func WithDiagnostics(sink diag.Sink) Option {
	return func(b *Builder) { b.sink = diag.OrDiscard(sink) }
}

// Builder owns the node table of one document part, its context stack and its per-parent
// sequence counters. A Builder is not safe for concurrent use; parse independent documents
// with independent builders.
type Builder struct {
	part  int
	nodes map[string]*Node
	order []string
	stack []string
	seq   map[string]int
	refs  RefExtractor
	sink  diag.Sink
}

// New creates an empty builder for the given part number.
func New(part int, opts ...Option) *Builder {
	b := &Builder{
		part:  part,
		nodes: make(map[string]*Node),
		seq:   make(map[string]int),
		sink:  diag.Discard,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Part returns the part number the builder was created for.
func (b *Builder) Part() int {
	return b.part
}

// AddNode creates a node and links it under its parent. The parent is taken from the
// identifier decision table when that parent exists; otherwise the nearest context-stack
// entry at a shallower level is used and the node is flagged as resolved by fallback. When
// neither works the node is kept as an orphan. Adding an id that already exists creates
// nothing: the existing node is returned with created=false.
func (b *Builder) AddNode(spec NodeSpec) (node *Node, created bool) {
	if existing, ok := b.nodes[spec.ID]; ok {
		b.sink.Report(diag.Diagnostic{
			Kind:    diag.KindDuplicate,
			NodeID:  spec.ID,
			Page:    spec.Page,
			Message: fmt.Sprintf("%s %s already exists (first seen on page %d)", spec.Type, spec.ID, existing.Page),
		})
		if existing.Type.IsHeading() {
			b.Enter(existing.ID)
		}
		return existing, false
	}

	parentID, fallback := b.resolveParent(spec.Type, spec.ID)

	node = &Node{
		ID:       spec.ID,
		Type:     spec.Type,
		Part:     b.part,
		ParentID: parentID,
		Title:    strings.TrimSpace(spec.Title),
		Content:  strings.TrimSpace(spec.Content),
		Page:     spec.Page,
		Seq:      b.nextSeq(parentID),
		Children: []string{},
		Refs:     b.extract(spec.Content),
		Fallback: fallback,
	}

	switch {
	case parentID == "" && spec.Type != grammar.TypePart:
		node.Orphan = true
		b.sink.Report(diag.Diagnostic{
			Kind:    diag.KindOrphan,
			NodeID:  spec.ID,
			Page:    spec.Page,
			Message: fmt.Sprintf("no parent found for %s %s", spec.Type, spec.ID),
		})
	case fallback:
		b.sink.Report(diag.Diagnostic{
			Kind:    diag.KindFallbackParent,
			NodeID:  spec.ID,
			Page:    spec.Page,
			Message: fmt.Sprintf("%s %s attached to %s from context", spec.Type, spec.ID, parentID),
		})
	}

	b.nodes[node.ID] = node
	b.order = append(b.order, node.ID)
	if parent, ok := b.nodes[parentID]; ok {
		parent.Children = append(parent.Children, node.ID)
	}

	if node.Type.IsHeading() {
		b.push(node)
	}
	return node, true
}

func (b *Builder) resolveParent(t grammar.NodeType, id string) (parentID string, fallback bool) {
	if t == grammar.TypePart {
		return "", false
	}
	if p, ok := grammar.ParentID(t, id); ok {
		if _, exists := b.nodes[p]; exists {
			return p, false
		}
	}

	level := t.Level()
	for i := len(b.stack) - 1; i >= 0; i-- {
		candidate := b.nodes[b.stack[i]]
		if candidate.Type.Level() < level {
			return candidate.ID, true
		}
	}
	return "", false
}

func (b *Builder) nextSeq(parentID string) int {
	key := parentID
	if key == "" {
		key = rootScope
	}
	b.seq[key]++
	return b.seq[key]
}

func (b *Builder) extract(content string) References {
	if b.refs == nil || content == "" {
		return EmptyReferences()
	}
	return b.refs.Extract(content)
}

// push pops every stack entry at or below the node's level and pushes the node, leaving the
// stack as the chain of nearest enclosing ancestors.
func (b *Builder) push(n *Node) {
	level := n.Type.Level()
	for len(b.stack) > 0 {
		top := b.nodes[b.stack[len(b.stack)-1]]
		if top.Type.Level() < level {
			break
		}
		b.stack = b.stack[:len(b.stack)-1]
	}
	b.stack = append(b.stack, n.ID)
}

// Enter makes an existing heading node the innermost open scope, as if it had just been
// added. It reports false for unknown ids and non-heading nodes.
func (b *Builder) Enter(id string) bool {
	n, ok := b.nodes[id]
	if !ok || !n.Type.IsHeading() {
		return false
	}
	b.push(n)
	return true
}

// Context returns a copy of the context stack, outermost first.
func (b *Builder) Context() []string {
	out := make([]string, len(b.stack))
	copy(out, b.stack)
	return out
}

// Current returns the innermost open heading id, or "" when the stack is empty.
func (b *Builder) Current() string {
	if len(b.stack) == 0 {
		return ""
	}
	return b.stack[len(b.stack)-1]
}

// Node returns the node with the given id.
func (b *Builder) Node(id string) (*Node, bool) {
	n, ok := b.nodes[id]
	return n, ok
}

// Children returns the children of id in insertion order.
func (b *Builder) Children(id string) []*Node {
	n, ok := b.nodes[id]
	if !ok {
		return nil
	}
	children := make([]*Node, 0, len(n.Children))
	for _, childID := range n.Children {
		if child, ok := b.nodes[childID]; ok {
			children = append(children, child)
		}
	}
	return children
}

// Nodes returns every node in creation order.
func (b *Builder) Nodes() []*Node {
	out := make([]*Node, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.nodes[id])
	}
	return out
}

// Roots returns the nodes without a parent, in creation order.
func (b *Builder) Roots() []*Node {
	var roots []*Node
	for _, id := range b.order {
		if n := b.nodes[id]; n.ParentID == "" {
			roots = append(roots, n)
		}
	}
	return roots
}

// Len returns the number of nodes.
func (b *Builder) Len() int {
	return len(b.order)
}

// Records returns the export form of every node in creation order.
func (b *Builder) Records() []Record {
	records := make([]Record, 0, len(b.order))
	for _, id := range b.order {
		records = append(records, b.nodes[id].Record())
	}
	return records
}

// Stats counts nodes per type.
func (b *Builder) Stats() map[grammar.NodeType]int {
	stats := make(map[grammar.NodeType]int)
	for _, n := range b.nodes {
		stats[n.Type]++
	}
	return stats
}

// Walk visits every node depth-first, roots in creation order and children in sequence
// order. Returning false from fn skips the node's subtree.
func (b *Builder) Walk(fn func(n *Node, depth int) bool) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		if !fn(n, depth) {
			return
		}
		for _, child := range b.Children(n.ID) {
			visit(child, depth+1)
		}
	}
	for _, root := range b.Roots() {
		visit(root, 0)
	}
}

// MergeArticleContent writes the full text of every article-level node: its clause
// children in sequence order, one "(n) text" line each. Clause nodes keep their own content.
func (b *Builder) MergeArticleContent() int {
	merged := 0
	for _, id := range b.order {
		article := b.nodes[id]
		if !article.Type.IsArticleLevel() {
			continue
		}

		var lines []string
		for _, child := range b.Children(id) {
			if child.Type != grammar.TypeClause || child.Content == "" {
				continue
			}
			lines = append(lines, "("+child.Marker()+") "+child.Content)
		}
		if len(lines) == 0 {
			continue
		}

		article.Content = strings.Join(lines, "\n")
		article.Refs = b.extract(article.Content)
		merged++
	}
	return merged
}

// Load rebuilds a builder from exported records, e.g. from a JSON document store. The
// context stack starts empty.
func Load(part int, records []Record, opts ...Option) *Builder {
	b := New(part, opts...)
	for _, r := range records {
		n := r.Node()
		b.nodes[n.ID] = n
		b.order = append(b.order, n.ID)

		key := n.ParentID
		if key == "" {
			key = rootScope
		}
		if n.Seq > b.seq[key] {
			b.seq[key] = n.Seq
		}
	}
	return b
}
