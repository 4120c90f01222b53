package extract

import (
	"testing"

	"github.com/coolbeans/codetree/pkg/grammar"
	"github.com/coolbeans/codetree/pkg/tree"
)

func TestReferenceLookup(t *testing.T) {
	d, _ := newTestDriver(t)
	state := d.ParsePage(State{}, 1, []string{
		"9.5.3. Ceiling Heights",
		"9.5.3.1. Room Heights",
		"(1) Except as provided in Sentences (2) and (4), rooms shall be high.",
		"(2) Lofts conforming to Article 9.5.3.2 and Table 9.5.3.1. are exempt.",
		"9.5.3.2. Lofts",
		"(1) See Subsection 9.5.3 and Sentence (1).",
	})
	d.Finish(state)
	b := d.Builder()

	lookup := NewReferenceLookup(b)

	from := lookup.From("9.5.3.1.(1)")
	if len(from) != 2 {
		t.Fatalf("From(9.5.3.1.(1)) = %+v, want 2 edges", from)
	}
	if from[0].NodeID != "9.5.3.1.(2)" || from[0].Status != ResolutionResolved {
		t.Errorf("first edge = %+v, want resolved to 9.5.3.1.(2)", from[0])
	}
	if from[1].Status != ResolutionNotFound {
		t.Errorf("Sentence (4) should not resolve, got %+v", from[1])
	}

	to := lookup.To("9.5.3.2")
	if len(to) != 1 || to[0].Source != "9.5.3.1.(2)" {
		t.Errorf("To(9.5.3.2) = %+v", to)
	}

	self := lookup.From("9.5.3.2.(1)")
	var selfRef bool
	for _, e := range self {
		if e.Kind == tree.RefClause && e.Status == ResolutionSelfRef {
			selfRef = true
		}
	}
	if !selfRef {
		t.Errorf("Sentence (1) inside clause (1) should be a self reference: %+v", self)
	}

	tables := lookup.ByKind(tree.RefTable)
	if len(tables) != 1 || tables[0].Status != ResolutionExternal {
		t.Errorf("table edges = %+v", tables)
	}

	stats := lookup.Stats()
	if stats.TotalReferences != lookup.Count() || stats.Unresolved != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestResolveClauseFromArticle(t *testing.T) {
	b := tree.New(9)
	b.AddNode(tree.NodeSpec{Type: grammar.TypePart, ID: "9"})
	b.AddNode(tree.NodeSpec{Type: grammar.TypeSection, ID: "9.5"})
	b.AddNode(tree.NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.3"})
	article, _ := b.AddNode(tree.NodeSpec{Type: grammar.TypeArticle, ID: "9.5.3.1"})
	b.AddNode(tree.NodeSpec{Type: grammar.TypeClause, ID: "9.5.3.1.(2)", Content: "Text."})

	id, status := Resolve(b, article, tree.RefClause, "2")
	if id != "9.5.3.1.(2)" || status != ResolutionResolved {
		t.Errorf("Resolve() = (%q, %s)", id, status)
	}
}
