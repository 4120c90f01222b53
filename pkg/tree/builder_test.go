package tree

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/grammar"
)

func seeded(t *testing.T, opts ...Option) *Builder {
	t.Helper()
	b := New(9, opts...)
	b.AddNode(NodeSpec{Type: grammar.TypePart, ID: "9", Title: "Housing and Small Buildings", Page: 1})
	b.AddNode(NodeSpec{Type: grammar.TypeSection, ID: "9.5", Title: "Design of Areas, Spaces and Doorways", Page: 1})
	return b
}

func ids(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestAddNodeAlternativeSubsectionParent(t *testing.T) {
	b := seeded(t)
	b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.3", Title: "Ceiling Heights", Page: 2})
	alt, created := b.AddNode(NodeSpec{Type: grammar.TypeAltSubsection, ID: "9.5.3A", Title: "Alternative Heights", Page: 3})
	if !created {
		t.Fatal("expected 9.5.3A to be created")
	}

	if alt.ParentID != "9.5" {
		t.Errorf("9.5.3A parent = %q, want 9.5", alt.ParentID)
	}
	if alt.Fallback {
		t.Error("9.5.3A should resolve by id, not fallback")
	}

	got := ids(b.Children("9.5"))
	want := []string{"9.5.3", "9.5.3A"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("children of 9.5 mismatch (-want +got):\n%s", diff)
	}
}

func TestAddNodeIrregularSiblings(t *testing.T) {
	b := seeded(t)
	b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.1", Title: "General"})
	b.AddNode(NodeSpec{Type: grammar.TypeArticle0A, ID: "9.5.1.0A", Title: "Scope"})
	b.AddNode(NodeSpec{Type: grammar.TypeArticle, ID: "9.5.1.1", Title: "Method of Measurement"})
	b.AddNode(NodeSpec{Type: grammar.TypeArticleSuffix, ID: "9.5.1.1A", Title: "Amended Measurement"})
	b.AddNode(NodeSpec{Type: grammar.TypeAltSubsection, ID: "9.5.1A", Title: "Alternative General"})
	b.AddNode(NodeSpec{Type: grammar.TypeSubArticle, ID: "9.5.1A.1", Title: "Application"})

	tests := map[string]string{
		"9.5.1.0A": "9.5.1",
		"9.5.1.1":  "9.5.1",
		"9.5.1.1A": "9.5.1",
		"9.5.1A":   "9.5",
		"9.5.1A.1": "9.5.1A",
	}
	for id, want := range tests {
		n, ok := b.Node(id)
		if !ok {
			t.Fatalf("node %s missing", id)
		}
		if n.ParentID != want {
			t.Errorf("%s parent = %q, want %q", id, n.ParentID, want)
		}
	}
}

func TestSeqMonotonicPerParent(t *testing.T) {
	b := seeded(t)
	b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.3", Title: "Ceiling Heights"})
	b.AddNode(NodeSpec{Type: grammar.TypeArticle0A, ID: "9.5.3.0A", Title: "Scope"})
	b.AddNode(NodeSpec{Type: grammar.TypeArticle, ID: "9.5.3.1", Title: "Room Heights"})
	b.AddNode(NodeSpec{Type: grammar.TypeClause, ID: "9.5.3.1.(1)", Content: "Ceilings shall be high."})
	b.AddNode(NodeSpec{Type: grammar.TypeArticleSuffix, ID: "9.5.3.1A", Title: "Lofts"})
	b.AddNode(NodeSpec{Type: grammar.TypeArticle, ID: "9.5.3.2", Title: "Mezzanines"})

	var seqs []int
	for _, child := range b.Children("9.5.3") {
		seqs = append(seqs, child.Seq)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4}, seqs); diff != "" {
		t.Errorf("seq under 9.5.3 mismatch (-want +got):\n%s", diff)
	}

	if n, _ := b.Node("9.5.3.1.(1)"); n.Seq != 1 {
		t.Errorf("first clause seq = %d, want 1", n.Seq)
	}
	if n, _ := b.Node("9"); n.Seq != 1 {
		t.Errorf("root seq = %d, want 1", n.Seq)
	}
}

func TestContextStack(t *testing.T) {
	b := seeded(t)
	b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.3", Title: "Ceiling Heights"})
	b.AddNode(NodeSpec{Type: grammar.TypeArticle, ID: "9.5.3.1", Title: "Room Heights"})

	if diff := cmp.Diff([]string{"9", "9.5", "9.5.3", "9.5.3.1"}, b.Context()); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}

	// Clauses never enter the stack.
	b.AddNode(NodeSpec{Type: grammar.TypeClause, ID: "9.5.3.1.(1)", Content: "Text."})
	if b.Current() != "9.5.3.1" {
		t.Errorf("Current() = %q after clause, want 9.5.3.1", b.Current())
	}

	// An alternative subsection pops the article and the subsection it shares a level with.
	b.AddNode(NodeSpec{Type: grammar.TypeAltSubsection, ID: "9.5.3A", Title: "Alternative Heights"})
	if diff := cmp.Diff([]string{"9", "9.5", "9.5.3A"}, b.Context()); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}

	if !b.Enter("9.5.3") {
		t.Fatal("Enter(9.5.3) = false")
	}
	if diff := cmp.Diff([]string{"9", "9.5", "9.5.3"}, b.Context()); diff != "" {
		t.Errorf("context after Enter mismatch (-want +got):\n%s", diff)
	}
	if b.Enter("9.5.3.1.(1)") {
		t.Error("Enter should refuse clause nodes")
	}
}

func TestFallbackAndOrphan(t *testing.T) {
	collector := diag.NewCollector()
	b := seeded(t, WithDiagnostics(collector))

	// 9.5.7 is missing, so the article attaches to the nearest shallower open heading.
	n, _ := b.AddNode(NodeSpec{Type: grammar.TypeArticle, ID: "9.5.7.2", Title: "Stray Article", Page: 12})
	if n.ParentID != "9.5" || !n.Fallback {
		t.Errorf("fallback node = parent %q fallback %v, want 9.5 true", n.ParentID, n.Fallback)
	}

	empty := New(9, WithDiagnostics(collector))
	orphan, _ := empty.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.8.1", Title: "Lost", Page: 40})
	if orphan.ParentID != "" || !orphan.Orphan {
		t.Errorf("orphan node = parent %q orphan %v", orphan.ParentID, orphan.Orphan)
	}
	if got := ids(empty.Roots()); !cmp.Equal(got, []string{"9.8.1"}) {
		t.Errorf("Roots() = %v", got)
	}

	if collector.Count(diag.KindFallbackParent) != 1 {
		t.Errorf("fallback diagnostics = %d, want 1", collector.Count(diag.KindFallbackParent))
	}
	if collector.Count(diag.KindOrphan) != 1 {
		t.Errorf("orphan diagnostics = %d, want 1", collector.Count(diag.KindOrphan))
	}
}

func TestAddNodeDuplicate(t *testing.T) {
	collector := diag.NewCollector()
	b := seeded(t, WithDiagnostics(collector))
	first, _ := b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.3", Title: "Ceiling Heights", Page: 2})
	b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.4", Title: "Hallways", Page: 3})

	again, created := b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.3", Title: "Ceiling Heights", Page: 9})
	if created || again != first {
		t.Error("re-adding 9.5.3 should return the existing node")
	}
	if b.Len() != 4 {
		t.Errorf("Len() = %d, want 4", b.Len())
	}
	if b.Current() != "9.5.3" {
		t.Errorf("duplicate heading should become current, got %q", b.Current())
	}
	if collector.Count(diag.KindDuplicate) != 1 {
		t.Errorf("duplicate diagnostics = %d, want 1", collector.Count(diag.KindDuplicate))
	}

	// The sequence counter is not consumed by the rejected add.
	next, _ := b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.5", Title: "Storage"})
	if next.Seq != 3 {
		t.Errorf("9.5.5 seq = %d, want 3", next.Seq)
	}
}

type stubRefs struct{ calls int }

func (s *stubRefs) Extract(text string) References {
	s.calls++
	refs := EmptyReferences()
	refs.Tables = append(refs.Tables, text)
	return refs
}

func TestMergeArticleContent(t *testing.T) {
	refs := &stubRefs{}
	b := seeded(t, WithReferences(refs))
	b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.3", Title: "Ceiling Heights"})
	b.AddNode(NodeSpec{Type: grammar.TypeArticle, ID: "9.5.3.1", Title: "Room Heights"})
	b.AddNode(NodeSpec{Type: grammar.TypeClause, ID: "9.5.3.1.(1)", Content: "First sentence."})
	b.AddNode(NodeSpec{Type: grammar.TypeClause, ID: "9.5.3.1.(2)", Content: "Second sentence\n(a) with a list."})
	b.AddNode(NodeSpec{Type: grammar.TypeArticle, ID: "9.5.3.2", Title: "Reserved"})

	if got := b.MergeArticleContent(); got != 1 {
		t.Errorf("MergeArticleContent() = %d, want 1", got)
	}

	article, _ := b.Node("9.5.3.1")
	want := "(1) First sentence.\n(2) Second sentence\n(a) with a list."
	if article.Content != want {
		t.Errorf("article content = %q, want %q", article.Content, want)
	}
	if !cmp.Equal(article.Refs.Tables, []string{want}) {
		t.Errorf("article refs not re-extracted: %v", article.Refs.Tables)
	}

	clause, _ := b.Node("9.5.3.1.(2)")
	if clause.Content != "Second sentence\n(a) with a list." {
		t.Errorf("clause content changed: %q", clause.Content)
	}

	empty, _ := b.Node("9.5.3.2")
	if empty.Content != "" {
		t.Errorf("article without clauses got content %q", empty.Content)
	}
}

func TestEmptyRefsWithoutExtractor(t *testing.T) {
	b := seeded(t)
	n, _ := b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.3", Title: "Ceiling Heights"})
	if n.Refs.Clauses == nil || n.Refs.Tables == nil || n.Refs.Len() != 0 {
		t.Errorf("refs should be empty non-nil lists, got %+v", n.Refs)
	}
}

func TestWalkAndStats(t *testing.T) {
	b := seeded(t)
	b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.3", Title: "Ceiling Heights"})
	b.AddNode(NodeSpec{Type: grammar.TypeArticle, ID: "9.5.3.1", Title: "Room Heights"})
	b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.4", Title: "Hallways"})

	var visited []string
	var depths []int
	b.Walk(func(n *Node, depth int) bool {
		visited = append(visited, n.ID)
		depths = append(depths, depth)
		return n.ID != "9.5.3"
	})
	if diff := cmp.Diff([]string{"9", "9.5", "9.5.3", "9.5.4"}, visited); diff != "" {
		t.Errorf("walk order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 2}, depths); diff != "" {
		t.Errorf("walk depths mismatch (-want +got):\n%s", diff)
	}

	stats := b.Stats()
	if stats[grammar.TypeSubsection] != 2 || stats[grammar.TypeArticle] != 1 {
		t.Errorf("Stats() = %v", stats)
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	b := seeded(t)
	b.AddNode(NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.3", Title: "Ceiling Heights"})
	b.AddNode(NodeSpec{Type: grammar.TypeArticle, ID: "9.5.3.1", Title: "Room Heights"})

	records := b.Records()
	if records[0].ParentID != nil {
		t.Errorf("part record parent = %v, want nil", *records[0].ParentID)
	}
	if records[0].Content != nil {
		t.Error("empty content should export as null")
	}

	loaded := Load(9, records)
	if diff := cmp.Diff(b.Nodes(), loaded.Nodes()); diff != "" {
		t.Errorf("Load(Records()) mismatch (-want +got):\n%s", diff)
	}

	next, _ := loaded.AddNode(NodeSpec{Type: grammar.TypeArticle, ID: "9.5.3.2", Title: "Mezzanines"})
	if next.Seq != 2 {
		t.Errorf("seq after Load = %d, want 2", next.Seq)
	}
}
