package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coolbeans/codetree/pkg/extract"
	"github.com/coolbeans/codetree/pkg/grammar"
	"github.com/coolbeans/codetree/pkg/tree"
)

// TreeDiff holds the differences between two parses of the same part, typically two
// editions of the code or a re-parse after a profile change.
type TreeDiff struct {
	Part      int         `json:"part"`
	Added     []DiffEntry `json:"added"`
	Removed   []DiffEntry `json:"removed"`
	Modified  []DiffEntry `json:"modified"`
	Unchanged int         `json:"unchanged"`
}

// DiffEntry describes one node that differs between the trees.
type DiffEntry struct {
	ID     string           `json:"id"`
	Type   grammar.NodeType `json:"type"`
	Fields []string         `json:"fields,omitempty"`

	OldTitle   string `json:"old_title,omitempty"`
	NewTitle   string `json:"new_title,omitempty"`
	OldContent string `json:"old_content,omitempty"`
	NewContent string `json:"new_content,omitempty"`
	OldParent  string `json:"old_parent,omitempty"`
	NewParent  string `json:"new_parent,omitempty"`

	// ReferencedBy lists the nodes of the new tree that refer to this node. For a
	// removed node these references no longer resolve.
	ReferencedBy []string `json:"referenced_by,omitempty"`
}

// CompareTrees compares two trees of the same part. Pages and sequence numbers are
// ignored; titles, content and parents are compared.
func CompareTrees(before, after *tree.Builder) (*TreeDiff, error) {
	if before == nil || after == nil {
		return nil, fmt.Errorf("both trees are required")
	}
	if before.Part() != after.Part() {
		return nil, fmt.Errorf("cannot compare part %d with part %d", before.Part(), after.Part())
	}

	diff := &TreeDiff{
		Part:     after.Part(),
		Added:    []DiffEntry{},
		Removed:  []DiffEntry{},
		Modified: []DiffEntry{},
	}
	lookup := extract.NewReferenceLookup(after)

	dangling := make(map[string][]string)
	for _, n := range after.Nodes() {
		n.Refs.Each(func(kind tree.RefKind, target string) {
			id, status := extract.Resolve(after, n, kind, target)
			if status == extract.ResolutionNotFound {
				dangling[id] = appendUnique(dangling[id], n.ID)
			}
		})
	}

	for _, old := range before.Nodes() {
		current, ok := after.Node(old.ID)
		if !ok {
			diff.Removed = append(diff.Removed, DiffEntry{
				ID:           old.ID,
				Type:         old.Type,
				OldTitle:     old.Title,
				OldContent:   old.Content,
				OldParent:    old.ParentID,
				ReferencedBy: dangling[old.ID],
			})
			continue
		}

		fields := changedFields(old, current)
		if len(fields) == 0 {
			diff.Unchanged++
			continue
		}
		entry := DiffEntry{ID: old.ID, Type: current.Type, Fields: fields}
		for _, f := range fields {
			switch f {
			case "title":
				entry.OldTitle, entry.NewTitle = old.Title, current.Title
			case "content":
				entry.OldContent, entry.NewContent = old.Content, current.Content
			case "parent":
				entry.OldParent, entry.NewParent = old.ParentID, current.ParentID
			}
		}
		for _, edge := range lookup.To(old.ID) {
			if edge.Source != old.ID {
				entry.ReferencedBy = appendUnique(entry.ReferencedBy, edge.Source)
			}
		}
		diff.Modified = append(diff.Modified, entry)
	}

	for _, n := range after.Nodes() {
		if _, ok := before.Node(n.ID); ok {
			continue
		}
		diff.Added = append(diff.Added, DiffEntry{
			ID:         n.ID,
			Type:       n.Type,
			NewTitle:   n.Title,
			NewContent: n.Content,
			NewParent:  n.ParentID,
		})
	}

	return diff, nil
}

func changedFields(before, after *tree.Node) []string {
	var fields []string
	if before.Type != after.Type {
		fields = append(fields, "type")
	}
	if before.Title != after.Title {
		fields = append(fields, "title")
	}
	if before.Content != after.Content {
		fields = append(fields, "content")
	}
	if before.ParentID != after.ParentID {
		fields = append(fields, "parent")
	}
	return fields
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// HasChanges reports whether the trees differ.
func (d *TreeDiff) HasChanges() bool {
	return len(d.Added)+len(d.Removed)+len(d.Modified) > 0
}

// ToJSON serializes the diff to JSON.
func (d *TreeDiff) ToJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// String returns a human-readable summary of the diff.
func (d *TreeDiff) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Part %d: %d added, %d removed, %d modified, %d unchanged\n",
		d.Part, len(d.Added), len(d.Removed), len(d.Modified), d.Unchanged))

	if len(d.Added) > 0 {
		sb.WriteString("\nAdded:\n")
		for _, e := range d.Added {
			sb.WriteString(fmt.Sprintf("  + %-22s %s\n", e.ID, e.Type))
		}
	}

	if len(d.Removed) > 0 {
		sb.WriteString("\nRemoved:\n")
		for _, e := range d.Removed {
			sb.WriteString(fmt.Sprintf("  - %-22s %s\n", e.ID, e.Type))
			if len(e.ReferencedBy) > 0 {
				sb.WriteString(fmt.Sprintf("      still referenced by: %s\n", strings.Join(e.ReferencedBy, ", ")))
			}
		}
	}

	if len(d.Modified) > 0 {
		sb.WriteString("\nModified:\n")
		for _, e := range d.Modified {
			sb.WriteString(fmt.Sprintf("  ~ %-22s %s\n", e.ID, strings.Join(e.Fields, ", ")))
			if len(e.ReferencedBy) > 0 {
				sb.WriteString(fmt.Sprintf("      referenced by: %s\n", strings.Join(e.ReferencedBy, ", ")))
			}
		}
	}

	return sb.String()
}
