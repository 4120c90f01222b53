package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/grammar"
	"github.com/coolbeans/codetree/pkg/pages"
	"github.com/coolbeans/codetree/pkg/tree"
)

// newTestDriver returns a driver over a tree holding part 9 and section 9.5.
func newTestDriver(t *testing.T, opts ...DriverOption) (*Driver, *diag.Collector) {
	t.Helper()
	collector := diag.NewCollector()
	b := tree.New(9, tree.WithReferences(NewReferenceExtractor()), tree.WithDiagnostics(collector))
	b.AddNode(tree.NodeSpec{Type: grammar.TypePart, ID: "9", Title: "Housing and Small Buildings"})
	b.AddNode(tree.NodeSpec{Type: grammar.TypeSection, ID: "9.5", Title: "Design of Areas, Spaces and Doorways"})

	opts = append([]DriverOption{WithDriverDiagnostics(collector)}, opts...)
	return NewDriver(b, opts...), collector
}

func mustNode(t *testing.T, b *tree.Builder, id string) *tree.Node {
	t.Helper()
	n, ok := b.Node(id)
	if !ok {
		t.Fatalf("node %s not found", id)
	}
	return n
}

func childIDs(b *tree.Builder, id string) []string {
	var ids []string
	for _, c := range b.Children(id) {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestDriverIDOnlyHeadingWithClauseRefs(t *testing.T) {
	d, _ := newTestDriver(t)
	b := d.Builder()

	state := d.ParsePage(State{}, 140, []string{
		"9.5.1. General",
		"9.5.1.1. Method of Measurement",
	})
	state = d.ParsePage(state, 141, []string{
		"9.5.3.",
		"Ceiling Heights",
		"(1) Except as provided in Sentences (2) and (3), the ceiling height shall be 2.3 m.",
	})
	d.Finish(state)

	clause := mustNode(t, b, "9.5.3.(1)")
	if diff := cmp.Diff([]string{"2", "3"}, clause.Refs.Clauses); diff != "" {
		t.Errorf("clause refs mismatch (-want +got):\n%s", diff)
	}

	parent := mustNode(t, b, clause.ParentID)
	if parent.Type != grammar.TypeSubsection || parent.Title != "Ceiling Heights" {
		t.Errorf("clause parent = %s %q, want subsection \"Ceiling Heights\"", parent.Type, parent.Title)
	}
	if parent.ParentID != "9.5" {
		t.Errorf("subsection parent = %q, want 9.5", parent.ParentID)
	}
}

func TestDriverClauseSpansPageBoundary(t *testing.T) {
	d, _ := newTestDriver(t)
	b := d.Builder()

	state := d.ParsePage(State{}, 141, []string{
		"9.5.3. Ceiling Heights",
		"9.5.3.1. Room Heights",
		"(1) Except as noted",
	})
	if state.Mode() != ClauseOpen || state.ClauseID != "9.5.3.1.(1)" {
		t.Fatalf("state after page 141 = %v %q, want open clause 9.5.3.1.(1)", state.Mode(), state.ClauseID)
	}
	if _, ok := b.Node("9.5.3.1.(1)"); ok {
		t.Fatal("clause must not be created at the page break")
	}

	before := b.Len()
	state = d.ParsePage(state, 142, []string{
		"in Sentence (2), heights shall be measured.",
		"9.5.3.2. Mezzanines",
	})
	if b.Len() != before+2 {
		t.Errorf("page 142 created %d nodes, want 2 (clause and article)", b.Len()-before)
	}
	d.Finish(state)

	clause := mustNode(t, b, "9.5.3.1.(1)")
	want := "Except as noted\nin Sentence (2), heights shall be measured."
	if clause.Content != want {
		t.Errorf("clause content = %q, want %q", clause.Content, want)
	}
	if clause.Page != 141 {
		t.Errorf("clause page = %d, want the page it started on", clause.Page)
	}
	if !cmp.Equal(clause.Refs.Clauses, []string{"2"}) {
		t.Errorf("clause refs = %v", clause.Refs.Clauses)
	}
}

func TestDriverTableNotesIsolation(t *testing.T) {
	d, _ := newTestDriver(t)
	b := d.Builder()

	state := d.ParsePage(State{}, 150, []string{
		"9.5.3. Ceiling Heights",
		"9.5.3.1. Room Heights",
		"(1) Rooms shall conform to Table 9.5.3.1.",
		"Notes to Table 9.5.3.1:",
		"(1) First note",
		"(2) Second note",
		"(a) note detail",
		"9.5.4. Next Subsection",
	})
	if state.Mode() != Idle {
		t.Errorf("mode after heading = %v, want idle", state.Mode())
	}
	d.Finish(state)

	if diff := cmp.Diff([]string{"9.5.3.1.(1)"}, childIDs(b, "9.5.3.1")); diff != "" {
		t.Errorf("article children mismatch (-want +got):\n%s", diff)
	}
	clause := mustNode(t, b, "9.5.3.1.(1)")
	if clause.Content != "Rooms shall conform to Table 9.5.3.1." {
		t.Errorf("clause content = %q", clause.Content)
	}

	sub := mustNode(t, b, "9.5.4")
	if sub.ParentID != "9.5" || sub.Title != "Next Subsection" {
		t.Errorf("9.5.4 = parent %q title %q", sub.ParentID, sub.Title)
	}
}

func TestDriverTableNotesClearedByArticle(t *testing.T) {
	d, _ := newTestDriver(t)
	b := d.Builder()

	state := d.ParsePage(State{}, 150, []string{
		"9.5.3. Ceiling Heights",
		"9.5.3.1. Room Heights",
		"Notes to Table 9.5.3.1:",
		"(1) A note",
	})
	if state.Mode() != InTableNotes {
		t.Fatalf("mode = %v, want in_table_notes", state.Mode())
	}
	state = d.ParsePage(state, 151, []string{
		"9.5.3.2. Mezzanines",
		"(1) Mezzanines are permitted.",
	})
	d.Finish(state)

	if len(b.Children("9.5.3.1")) != 0 {
		t.Errorf("note lines became clauses: %v", childIDs(b, "9.5.3.1"))
	}
	if _, ok := b.Node("9.5.3.2.(1)"); !ok {
		t.Error("clause after the notes block was not created")
	}
}

func TestDriverSubclausesFoldIntoClause(t *testing.T) {
	d, _ := newTestDriver(t)
	b := d.Builder()

	state := d.ParsePage(State{}, 160, []string{
		"9.5.3. Ceiling Heights",
		"9.5.3.1. Room Heights",
		"(1) The following apply:",
		"(a) living areas,",
		"(i) with sloped ceilings,",
		"(ii) with beams, and",
		"(b) bedrooms.",
		"(2) Other rooms need no minimum.",
	})
	d.Finish(state)

	first := mustNode(t, b, "9.5.3.1.(1)")
	want := "The following apply:\n(a) living areas,\n(i) with sloped ceilings,\n(ii) with beams, and\n(b) bedrooms."
	if first.Content != want {
		t.Errorf("clause content = %q, want %q", first.Content, want)
	}

	for _, n := range b.Nodes() {
		if n.Type == grammar.TypeSubclause || n.Type == grammar.TypeSubsubclause {
			t.Errorf("sub-clause %s should not be a node", n.ID)
		}
	}
	if diff := cmp.Diff([]string{"9.5.3.1.(1)", "9.5.3.1.(2)"}, childIDs(b, "9.5.3.1")); diff != "" {
		t.Errorf("article children mismatch (-want +got):\n%s", diff)
	}
}

func TestDriverReservedHeadings(t *testing.T) {
	d, _ := newTestDriver(t)
	b := d.Builder()

	state := d.ParsePage(State{}, 170, []string{
		"9.5.5.",
		"9.5.6. Storage",
		"9.5.7.",
		"(1) a lowercase wrapped fragment",
		"9.5.8.",
	})
	state = d.ParsePage(state, 171, []string{
		"Garages",
		"9.5.9.",
	})
	state = d.Finish(state)
	if state.Mode() != Idle || state.Pending != nil {
		t.Errorf("state after Finish = %+v, want idle", state)
	}

	tests := map[string]string{
		"9.5.5": grammar.ReservedTitle,
		"9.5.6": "Storage",
		"9.5.7": grammar.ReservedTitle,
		"9.5.8": "Garages",
		"9.5.9": grammar.ReservedTitle,
	}
	for id, title := range tests {
		if n := mustNode(t, b, id); n.Title != title {
			t.Errorf("%s title = %q, want %q", id, n.Title, title)
		}
	}
	if mustNode(t, b, "9.5.8").Page != 170 {
		t.Error("heading page should be the page of its number")
	}
}

func TestDriverSectionMarkers(t *testing.T) {
	d, collector := newTestDriver(t)
	b := d.Builder()

	state := d.ParsePage(State{}, 200, []string{
		"9.5.3. Ceiling Heights",
		"9.5.3.1. Room Heights",
		"(1) Rooms shall be high.",
		"Section 9.6. Glass",
		"9.6.1. General",
	})
	state = d.ParsePage(state, 201, []string{
		"Section 9.5. Design of Areas, Spaces and Doorways",
		"9.5.4. Hallways",
	})
	d.Finish(state)

	if n := mustNode(t, b, "9.6"); n.ParentID != "9" || n.Title != "Glass" {
		t.Errorf("9.6 = parent %q title %q", n.ParentID, n.Title)
	}
	if n := mustNode(t, b, "9.5.3.1.(1)"); n.Content != "Rooms shall be high." {
		t.Errorf("section marker leaked into clause: %q", n.Content)
	}
	if n := mustNode(t, b, "9.6.1"); n.ParentID != "9.6" {
		t.Errorf("9.6.1 parent = %q", n.ParentID)
	}
	if collector.Count(diag.KindDuplicate) != 0 {
		t.Error("a repeated section marker must not add a duplicate")
	}
	if diff := cmp.Diff([]string{"9", "9.5", "9.5.4"}, b.Context()); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
}

func TestDriverDiagnostics(t *testing.T) {
	d, collector := newTestDriver(t)

	state := d.ParsePage(State{}, 210, []string{
		"stray text before any clause",
		"9.5.3. Ceiling Heights",
		"9.5.3.1. Room Heights",
		"(1) First.",
		"(3) Third.",
		"(b) orphan fragment is kept in clause (3)",
	})
	d.Finish(state)

	if got := collector.Count(diag.KindUnclassified); got != 1 {
		t.Errorf("unclassified = %d, want 1", got)
	}
	gaps := collector.ByKind(diag.KindClauseGap)
	if len(gaps) != 1 || gaps[0].NodeID != "9.5.3.1.(3)" {
		t.Errorf("clause gaps = %+v, want one for 9.5.3.1.(3)", gaps)
	}
	if _, ok := d.Builder().Node("9.5.3.1.(3)"); !ok {
		t.Error("a clause gap must not stop the clause from being created")
	}
}

func TestDriverParseWithFilter(t *testing.T) {
	d, _ := newTestDriver(t, WithFilter(grammar.DefaultFilter()), WithHyphenRejoin(true))

	b := d.Parse([]pages.Page{
		{Number: 141, Lines: []string{
			"9.5.3. Ceiling Heights",
			"9.5.3.1. Room Heights",
			"(1) The ceiling height of habit-",
			"141",
		}},
		{Number: 142, Lines: []string{
			"9.5.3.1.",
			"Division B – Part 9",
			"able rooms shall be 2.3 m.",
			"(2) See Table 9.5.3.1.",
		}},
	})

	clause := mustNode(t, b, "9.5.3.1.(1)")
	if clause.Content != "The ceiling height of habitable rooms shall be 2.3 m." {
		t.Errorf("clause content = %q", clause.Content)
	}

	article := mustNode(t, b, "9.5.3.1")
	want := "(1) The ceiling height of habitable rooms shall be 2.3 m.\n(2) See Table 9.5.3.1."
	if article.Content != want {
		t.Errorf("article content = %q, want %q", article.Content, want)
	}
	if !cmp.Equal(article.Refs.Tables, []string{"9.5.3.1"}) {
		t.Errorf("article refs = %v", article.Refs.Tables)
	}
}

func TestDriverSavedStateUnchangedByLaterPages(t *testing.T) {
	d, _ := newTestDriver(t, WithHyphenRejoin(true))

	saved := d.ParsePage(State{}, 141, []string{
		"9.5.3. Ceiling Heights",
		"9.5.3.1. Room Heights",
		"(1) The ceiling height of habit-",
	})
	want := []string{"The ceiling height of habit-"}

	next := d.ParsePage(saved, 142, []string{"able rooms shall be 2.3 m."})
	if diff := cmp.Diff([]string{"The ceiling height of habitable rooms shall be 2.3 m."}, next.Buffer); diff != "" {
		t.Errorf("next buffer mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, saved.Buffer); diff != "" {
		t.Errorf("saved buffer changed (-want +got):\n%s", diff)
	}

	// Appends must not write into spare capacity of the saved buffer.
	roomy := saved
	roomy.Buffer = make([]string, 1, 4)
	roomy.Buffer[0] = "The ceiling height"
	d.ParsePage(roomy, 142, []string{"over stairs"})
	if spare := roomy.Buffer[:cap(roomy.Buffer)]; spare[1] != "" {
		t.Errorf("saved backing array written: %q", spare[1])
	}
}

func TestDriverClauseWithoutHeadingKeptAsOrphan(t *testing.T) {
	collector := diag.NewCollector()
	b := tree.New(9, tree.WithDiagnostics(collector))
	d := NewDriver(b, WithDriverDiagnostics(collector))

	d.Finish(d.ParsePage(State{}, 1, []string{"(1) The ceiling height shall be 2.3 m."}))

	clause := mustNode(t, b, "(1)")
	if !clause.Orphan || clause.ParentID != "" {
		t.Errorf("clause = %+v, want an orphan with no parent", clause)
	}
	if clause.Content != "The ceiling height shall be 2.3 m." {
		t.Errorf("clause content = %q", clause.Content)
	}
	if got := collector.Count(diag.KindOrphan); got != 1 {
		t.Errorf("orphan diagnostics = %d, want 1", got)
	}
}

func TestDriverWrappedCitationStaysInClause(t *testing.T) {
	d, collector := newTestDriver(t)
	b := d.Builder()

	state := d.ParsePage(State{}, 141, []string{
		"9.5.3. Ceiling Heights",
		"9.5.3.1. Room Heights",
		"(1) The ceiling height shall be 2.3 m.",
		"9.5.3.2. Mezzanines",
		"(1) Mezzanines shall conform to Article",
		"9.5.3.1.",
		"Except where noted.",
	})
	d.Finish(state)

	clause := mustNode(t, b, "9.5.3.2.(1)")
	want := "Mezzanines shall conform to Article\n9.5.3.1.\nExcept where noted."
	if clause.Content != want {
		t.Errorf("clause content = %q, want %q", clause.Content, want)
	}
	if got := collector.Count(diag.KindDuplicate); got != 0 {
		t.Errorf("duplicate diagnostics = %d, want 0", got)
	}
	if title := mustNode(t, b, "9.5.3.1").Title; title != "Room Heights" {
		t.Errorf("article 9.5.3.1 title = %q", title)
	}
	if diff := cmp.Diff([]string{"9.5.3.1"}, clause.Refs.Articles); diff != "" {
		t.Errorf("clause refs mismatch (-want +got):\n%s", diff)
	}
}
