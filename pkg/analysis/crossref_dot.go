package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// ToDOT generates a Graphviz DOT representation of the reference links. Each part is a
// cluster subgraph; links that leave their part are drawn red and dashed, and pen width
// grows with the number of references a link aggregates.
func (r *CrossRefResult) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph CrossReferences {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  compound=true;\n")
	sb.WriteString("  fontname=\"Helvetica\";\n")
	sb.WriteString("  node [fontname=\"Helvetica\" fontsize=10 shape=box style=filled fillcolor=white];\n")
	sb.WriteString("  edge [fontname=\"Helvetica\" fontsize=8];\n\n")

	members := make(map[int]map[string]bool)
	add := func(part int, id string) {
		if members[part] == nil {
			members[part] = make(map[string]bool)
		}
		members[part][id] = true
	}
	for _, l := range r.Links {
		add(l.SourcePart, l.Source)
		add(l.TargetPart, l.Target)
	}

	for i, p := range r.Parts {
		ids := make([]string, 0, len(members[p.Part]))
		for id := range members[p.Part] {
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			continue
		}
		sort.Strings(ids)

		sb.WriteString(fmt.Sprintf("  subgraph cluster_%d {\n", i))
		sb.WriteString(fmt.Sprintf("    label=\"%s (Part %d)\";\n", escapeDOTLabel(p.Label), p.Part))
		sb.WriteString("    style=filled;\n")
		sb.WriteString("    color=lightgrey;\n")
		for _, id := range ids {
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\"];\n", dotNodeID(p.Part, id), escapeDOTLabel(id)))
		}
		sb.WriteString("  }\n\n")
	}

	for _, l := range r.Links {
		attrs := fmt.Sprintf("penwidth=%d", penWidth(l.Count))
		if l.Count > 1 {
			attrs += fmt.Sprintf(" label=\"%d\"", l.Count)
		}
		if l.CrossPart() {
			attrs += " color=red style=dashed"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [%s];\n",
			dotNodeID(l.SourcePart, l.Source), dotNodeID(l.TargetPart, l.Target), attrs))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func dotNodeID(part int, id string) string {
	return fmt.Sprintf("p%d_%s", part, sanitizeDOTID(id))
}

func penWidth(count int) int {
	switch {
	case count >= 10:
		return 4
	case count >= 5:
		return 3
	case count >= 2:
		return 2
	default:
		return 1
	}
}

// sanitizeDOTID converts a string into a valid DOT node identifier.
func sanitizeDOTID(s string) string {
	var sb strings.Builder
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			sb.WriteRune(c)
		} else {
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

// escapeDOTLabel escapes special characters for DOT label strings.
func escapeDOTLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
