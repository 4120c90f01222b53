package extract

import (
	"github.com/coolbeans/codetree/pkg/grammar"
	"github.com/coolbeans/codetree/pkg/tree"
)

// ResolutionStatus indicates the outcome of resolving a reference against a tree.
type ResolutionStatus string

const (
	ResolutionResolved ResolutionStatus = "resolved"
	ResolutionNotFound ResolutionStatus = "not_found"
	ResolutionSelfRef  ResolutionStatus = "self_ref"
	// ResolutionExternal is used for tables, which are not nodes of the tree.
	ResolutionExternal ResolutionStatus = "external"
)

// Edge is one cross-reference from a node.
type Edge struct {
	Source string           `json:"source"`
	Kind   tree.RefKind     `json:"kind"`
	Target string           `json:"target"`
	NodeID string           `json:"node_id,omitempty"`
	Status ResolutionStatus `json:"status"`
}

// Resolve maps a reference target as written to a node id. Clause targets are relative
// ("2" in "Sentence (2)") and resolve within the article that contains source.
func Resolve(b *tree.Builder, source *tree.Node, kind tree.RefKind, target string) (string, ResolutionStatus) {
	var id string
	switch kind {
	case tree.RefTable:
		return "", ResolutionExternal
	case tree.RefClause:
		owner := source.ID
		if source.Type == grammar.TypeClause {
			owner = source.ParentID
		}
		id = grammar.ClauseID(owner, target)
	default:
		id = target
	}

	if _, ok := b.Node(id); !ok {
		return id, ResolutionNotFound
	}
	if id == source.ID {
		return id, ResolutionSelfRef
	}
	return id, ResolutionResolved
}

// ReferenceLookup provides indexed access to the cross-references of a tree.
type ReferenceLookup struct {
	all      []Edge
	bySource map[string][]Edge
	byNode   map[string][]Edge
	byKind   map[tree.RefKind][]Edge
}

// NewReferenceLookup resolves every reference in b and indexes the edges.
func NewReferenceLookup(b *tree.Builder) *ReferenceLookup {
	lookup := &ReferenceLookup{
		bySource: make(map[string][]Edge),
		byNode:   make(map[string][]Edge),
		byKind:   make(map[tree.RefKind][]Edge),
	}

	for _, n := range b.Nodes() {
		n.Refs.Each(func(kind tree.RefKind, target string) {
			id, status := Resolve(b, n, kind, target)
			edge := Edge{Source: n.ID, Kind: kind, Target: target, Status: status}
			if status == ResolutionResolved || status == ResolutionSelfRef {
				edge.NodeID = id
			}

			lookup.all = append(lookup.all, edge)
			lookup.bySource[n.ID] = append(lookup.bySource[n.ID], edge)
			lookup.byKind[kind] = append(lookup.byKind[kind], edge)
			if edge.NodeID != "" {
				lookup.byNode[edge.NodeID] = append(lookup.byNode[edge.NodeID], edge)
			}
		})
	}
	return lookup
}

// From returns the references made by a node.
func (l *ReferenceLookup) From(id string) []Edge {
	return l.bySource[id]
}

// To returns the resolved references pointing at a node.
func (l *ReferenceLookup) To(id string) []Edge {
	return l.byNode[id]
}

// ByKind returns all references of one kind.
func (l *ReferenceLookup) ByKind(kind tree.RefKind) []Edge {
	return l.byKind[kind]
}

// All returns every reference.
func (l *ReferenceLookup) All() []Edge {
	return l.all
}

// Count returns the total number of references.
func (l *ReferenceLookup) Count() int {
	return len(l.all)
}

// ReferenceStats holds statistics about the references of a tree.
type ReferenceStats struct {
	TotalReferences int            `json:"total_references"`
	ByKind          map[string]int `json:"by_kind"`
	NodesWithRefs   int            `json:"nodes_with_refs"`
	Unresolved      int            `json:"unresolved"`
}

// Stats summarizes the lookup.
func (l *ReferenceLookup) Stats() ReferenceStats {
	stats := ReferenceStats{
		TotalReferences: len(l.all),
		ByKind:          make(map[string]int),
		NodesWithRefs:   len(l.bySource),
	}
	for _, edge := range l.all {
		stats.ByKind[string(edge.Kind)]++
		if edge.Status == ResolutionNotFound {
			stats.Unresolved++
		}
	}
	return stats
}
