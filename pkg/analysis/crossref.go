// Package analysis provides cross-reference analysis over one or more parsed parts.
package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/coolbeans/codetree/pkg/extract"
	"github.com/coolbeans/codetree/pkg/grammar"
	"github.com/coolbeans/codetree/pkg/tree"
)

// CrossRefAnalyzer resolves references across several parts, so that a reference from
// Part 9 to Article 3.2.4.1 lands on the Part 3 tree when it is loaded.
type CrossRefAnalyzer struct {
	labels map[int]string
	trees  map[int]*tree.Builder
	order  []int
}

// NewCrossRefAnalyzer creates a new cross-reference analyzer.
func NewCrossRefAnalyzer() *CrossRefAnalyzer {
	return &CrossRefAnalyzer{
		labels: make(map[int]string),
		trees:  make(map[int]*tree.Builder),
	}
}

// AddTree registers a parsed part. A second tree for the same part replaces the first.
func (a *CrossRefAnalyzer) AddTree(label string, b *tree.Builder) {
	part := b.Part()
	if _, exists := a.trees[part]; !exists {
		a.order = append(a.order, part)
	}
	a.trees[part] = b
	a.labels[part] = label
}

// PartSummary describes the references made by one part.
type PartSummary struct {
	Part       int    `json:"part"`
	Label      string `json:"label"`
	Nodes      int    `json:"nodes"`
	Articles   int    `json:"articles"`
	References int    `json:"references"`
	Internal   int    `json:"internal"`
	CrossPart  int    `json:"cross_part"`
	Tables     int    `json:"tables"`
	Unresolved int    `json:"unresolved"`
}

// ReferenceLink aggregates every reference from one heading to one target.
type ReferenceLink struct {
	Source     string       `json:"source"`
	SourcePart int          `json:"source_part"`
	Target     string       `json:"target"`
	TargetPart int          `json:"target_part"`
	Kind       tree.RefKind `json:"kind"`
	Count      int          `json:"count"`
}

// CrossPart reports whether the link leaves its source part.
func (l ReferenceLink) CrossPart() bool {
	return l.SourcePart != l.TargetPart
}

// TargetCount ranks a provision by how often it is referenced.
type TargetCount struct {
	ID    string `json:"id"`
	Part  int    `json:"part"`
	Count int    `json:"count"`
}

// CrossRefStats provides aggregate statistics across all parts.
type CrossRefStats struct {
	TotalParts      int `json:"total_parts"`
	TotalReferences int `json:"total_references"`
	TotalLinks      int `json:"total_links"`
	CrossPartLinks  int `json:"cross_part_links"`
	Unresolved      int `json:"unresolved"`
}

// CrossRefResult is the outcome of Analyze.
type CrossRefResult struct {
	Parts          []PartSummary   `json:"parts"`
	Links          []ReferenceLink `json:"links"`
	MostReferenced []TargetCount   `json:"most_referenced"`
	Unresolved     []string        `json:"unresolved,omitempty"`
	Stats          CrossRefStats   `json:"stats"`
}

// Analyze resolves the references of every registered part and aggregates them by
// heading. References made by clauses are counted once, through the merged content of
// their article. topN bounds MostReferenced; zero or less keeps every target.
func (a *CrossRefAnalyzer) Analyze(topN int) *CrossRefResult {
	result := &CrossRefResult{
		Parts: make([]PartSummary, 0, len(a.order)),
		Links: []ReferenceLink{},
	}
	links := make(map[string]*ReferenceLink)
	targets := make(map[string]*TargetCount)

	for _, part := range a.order {
		b := a.trees[part]
		summary := PartSummary{Part: part, Label: a.labels[part], Nodes: b.Len()}
		for _, n := range b.Nodes() {
			if n.Type.IsArticleLevel() {
				summary.Articles++
			}
		}

		for _, edge := range extract.NewReferenceLookup(b).All() {
			src, ok := b.Node(edge.Source)
			if !ok || src.Type.IsContent() {
				continue
			}
			summary.References++

			var targetID string
			targetPart := part
			switch edge.Status {
			case extract.ResolutionExternal:
				summary.Tables++
				continue
			case extract.ResolutionSelfRef:
				summary.Internal++
				continue
			case extract.ResolutionResolved:
				summary.Internal++
				targetID = headingOf(b, edge.NodeID)
				if targetID == edge.Source {
					continue
				}
			case extract.ResolutionNotFound:
				other, found := a.resolveElsewhere(part, edge)
				if !found {
					summary.Unresolved++
					result.Unresolved = append(result.Unresolved, fmt.Sprintf("%s -> %s %s", edge.Source, edge.Kind, edge.Target))
					continue
				}
				targetID, targetPart = edge.Target, other
				summary.CrossPart++
			}

			key := edge.Source + "|" + targetID
			link, exists := links[key]
			if !exists {
				link = &ReferenceLink{
					Source:     edge.Source,
					SourcePart: part,
					Target:     targetID,
					TargetPart: targetPart,
					Kind:       edge.Kind,
				}
				links[key] = link
			}
			link.Count++

			targetKey := strconv.Itoa(targetPart) + "|" + targetID
			tc, exists := targets[targetKey]
			if !exists {
				tc = &TargetCount{ID: targetID, Part: targetPart}
				targets[targetKey] = tc
			}
			tc.Count++
		}

		result.Parts = append(result.Parts, summary)
		result.Stats.TotalReferences += summary.References
		result.Stats.Unresolved += summary.Unresolved
	}

	for _, link := range links {
		result.Links = append(result.Links, *link)
		if link.CrossPart() {
			result.Stats.CrossPartLinks++
		}
	}
	sort.Slice(result.Links, func(i, j int) bool {
		li, lj := result.Links[i], result.Links[j]
		if li.SourcePart != lj.SourcePart {
			return li.SourcePart < lj.SourcePart
		}
		if li.Source != lj.Source {
			return li.Source < lj.Source
		}
		return li.Target < lj.Target
	})

	result.MostReferenced = make([]TargetCount, 0, len(targets))
	for _, tc := range targets {
		result.MostReferenced = append(result.MostReferenced, *tc)
	}
	sort.Slice(result.MostReferenced, func(i, j int) bool {
		ti, tj := result.MostReferenced[i], result.MostReferenced[j]
		if ti.Count != tj.Count {
			return ti.Count > tj.Count
		}
		if ti.Part != tj.Part {
			return ti.Part < tj.Part
		}
		return ti.ID < tj.ID
	})
	if topN > 0 && len(result.MostReferenced) > topN {
		result.MostReferenced = result.MostReferenced[:topN]
	}

	result.Stats.TotalParts = len(result.Parts)
	result.Stats.TotalLinks = len(result.Links)
	return result
}

// resolveElsewhere looks an unresolved heading reference up in the part its identifier
// names. Clause references are relative to their article and never leave the part.
func (a *CrossRefAnalyzer) resolveElsewhere(part int, edge extract.Edge) (int, bool) {
	if edge.Kind == tree.RefClause || edge.Kind == tree.RefTable {
		return 0, false
	}
	other, err := strconv.Atoi(grammar.PartOf(edge.Target))
	if err != nil || other == part {
		return 0, false
	}
	b, ok := a.trees[other]
	if !ok {
		return 0, false
	}
	if _, ok := b.Node(edge.Target); !ok {
		return 0, false
	}
	return other, true
}

// headingOf climbs from a clause-level node to the heading that owns it.
func headingOf(b *tree.Builder, id string) string {
	for {
		n, ok := b.Node(id)
		if !ok || !n.Type.IsContent() || n.ParentID == "" {
			return id
		}
		id = n.ParentID
	}
}

// ToJSON serializes the result to JSON.
func (r *CrossRefResult) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// String returns a human-readable summary.
func (r *CrossRefResult) String() string {
	var sb strings.Builder

	sb.WriteString("Cross-Reference Analysis\n")
	sb.WriteString("========================\n\n")
	sb.WriteString(fmt.Sprintf("%-16s %5s %8s %8s %8s %8s %8s\n",
		"LABEL", "PART", "REFS", "INTERNAL", "CROSS", "TABLES", "UNRES"))
	for _, p := range r.Parts {
		sb.WriteString(fmt.Sprintf("%-16s %5d %8d %8d %8d %8d %8d\n",
			p.Label, p.Part, p.References, p.Internal, p.CrossPart, p.Tables, p.Unresolved))
	}

	if len(r.MostReferenced) > 0 {
		sb.WriteString("\nMost referenced:\n")
		for _, tc := range r.MostReferenced {
			sb.WriteString(fmt.Sprintf("  %-22s %d\n", tc.ID, tc.Count))
		}
	}

	if r.Stats.CrossPartLinks > 0 {
		sb.WriteString("\nCross-part links:\n")
		for _, l := range r.Links {
			if l.CrossPart() {
				sb.WriteString(fmt.Sprintf("  %s -> %s (%d)\n", l.Source, l.Target, l.Count))
			}
		}
	}

	sb.WriteString(fmt.Sprintf("\nLinks: %d, cross-part: %d, unresolved references: %d\n",
		r.Stats.TotalLinks, r.Stats.CrossPartLinks, r.Stats.Unresolved))
	return sb.String()
}
