// Package tree holds the provision tree: nodes keyed by identifier, the context stack used
// to resolve parents that an identifier alone cannot name, and per-parent sequencing.
package tree

import (
	"github.com/coolbeans/codetree/pkg/grammar"
)

// RefKind names a cross-reference vocabulary.
type RefKind string

const (
	RefTable      RefKind = "table"
	RefClause     RefKind = "clause"
	RefArticle    RefKind = "article"
	RefSection    RefKind = "section"
	RefSubsection RefKind = "subsection"
)

// RefKinds lists every reference kind in output order.
var RefKinds = []RefKind{RefTable, RefClause, RefArticle, RefSection, RefSubsection}

// References are the cross-references found in a node's content. Every list is ordered by
// first appearance, de-duplicated and never nil.
type References struct {
	Tables      []string `json:"tables"`
	Clauses     []string `json:"clauses"`
	Articles    []string `json:"articles"`
	Sections    []string `json:"sections"`
	Subsections []string `json:"subsections"`
}

// EmptyReferences returns References with all five lists present and empty.
func EmptyReferences() References {
	return References{
		Tables:      []string{},
		Clauses:     []string{},
		Articles:    []string{},
		Sections:    []string{},
		Subsections: []string{},
	}
}

// Get returns the targets of one kind.
func (r References) Get(kind RefKind) []string {
	switch kind {
	case RefTable:
		return r.Tables
	case RefClause:
		return r.Clauses
	case RefArticle:
		return r.Articles
	case RefSection:
		return r.Sections
	case RefSubsection:
		return r.Subsections
	}
	return nil
}

// Add appends target to the list of kind unless it is already present.
func (r *References) Add(kind RefKind, target string) {
	var list *[]string
	switch kind {
	case RefTable:
		list = &r.Tables
	case RefClause:
		list = &r.Clauses
	case RefArticle:
		list = &r.Articles
	case RefSection:
		list = &r.Sections
	case RefSubsection:
		list = &r.Subsections
	default:
		return
	}
	for _, existing := range *list {
		if existing == target {
			return
		}
	}
	*list = append(*list, target)
}

// Len returns the total number of targets.
func (r References) Len() int {
	return len(r.Tables) + len(r.Clauses) + len(r.Articles) + len(r.Sections) + len(r.Subsections)
}

// Each calls fn for every target in kind order.
func (r References) Each(fn func(kind RefKind, target string)) {
	for _, kind := range RefKinds {
		for _, target := range r.Get(kind) {
			fn(kind, target)
		}
	}
}

// RefExtractor turns free text into References.
type RefExtractor interface {
	Extract(text string) References
}

// Node is one provision.
type Node struct {
	ID       string           `json:"id"`
	Type     grammar.NodeType `json:"type"`
	Part     int              `json:"part"`
	ParentID string           `json:"parent_id,omitempty"`
	Title    string           `json:"title,omitempty"`
	Content  string           `json:"content,omitempty"`
	Page     int              `json:"page"`
	Seq      int              `json:"seq"`
	Children []string         `json:"children"`
	Refs     References       `json:"refs"`

	// Fallback is set when the parent came from the context stack rather than the id.
	Fallback bool `json:"resolved_by_fallback,omitempty"`
	// Orphan is set when no parent could be resolved; such nodes need manual review.
	Orphan bool `json:"orphan,omitempty"`
}

// Marker returns the clause number of a clause node ("2" for "9.5.3.1.(2)").
func (n *Node) Marker() string {
	m, _ := grammar.ClauseMarker(n.ID)
	return m
}

// Record is the flat export shape of a node, with null parent, title and content when unset.
type Record struct {
	ID       string           `json:"id"`
	Type     grammar.NodeType `json:"type"`
	Part     int              `json:"part"`
	ParentID *string          `json:"parent_id"`
	Title    *string          `json:"title"`
	Content  *string          `json:"content"`
	Page     int              `json:"page"`
	Seq      int              `json:"seq"`
	Children []string         `json:"children"`
	Refs     References       `json:"refs"`
	Fallback bool             `json:"resolved_by_fallback,omitempty"`
	Orphan   bool             `json:"orphan,omitempty"`
}

// Record converts n to its export shape.
func (n *Node) Record() Record {
	children := n.Children
	if children == nil {
		children = []string{}
	}
	return Record{
		ID:       n.ID,
		Type:     n.Type,
		Part:     n.Part,
		ParentID: optional(n.ParentID),
		Title:    optional(n.Title),
		Content:  optional(n.Content),
		Page:     n.Page,
		Seq:      n.Seq,
		Children: children,
		Refs:     n.Refs,
		Fallback: n.Fallback,
		Orphan:   n.Orphan,
	}
}

// Node converts a record back to a node.
func (r Record) Node() *Node {
	return &Node{
		ID:       r.ID,
		Type:     r.Type,
		Part:     r.Part,
		ParentID: deref(r.ParentID),
		Title:    deref(r.Title),
		Content:  deref(r.Content),
		Page:     r.Page,
		Seq:      r.Seq,
		Children: append([]string{}, r.Children...),
		Refs:     r.Refs,
		Fallback: r.Fallback,
		Orphan:   r.Orphan,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
