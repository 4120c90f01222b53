package analysis

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coolbeans/codetree/pkg/extract"
	"github.com/coolbeans/codetree/pkg/grammar"
	"github.com/coolbeans/codetree/pkg/tree"
)

func TestCompareTreesIdentical(t *testing.T) {
	diff, err := CompareTrees(part9(), part9())
	if err != nil {
		t.Fatalf("CompareTrees failed: %v", err)
	}
	if diff.HasChanges() {
		t.Errorf("identical trees reported changes:\n%s", diff)
	}
	if diff.Unchanged != part9().Len() {
		t.Errorf("Unchanged = %d, want %d", diff.Unchanged, part9().Len())
	}
}

func TestCompareTrees(t *testing.T) {
	before := part9()

	after := tree.New(9, tree.WithReferences(extract.NewReferenceExtractor()))
	after.AddNode(tree.NodeSpec{Type: grammar.TypePart, ID: "9", Title: "Housing and Small Buildings"})
	after.AddNode(tree.NodeSpec{Type: grammar.TypeSection, ID: "9.5", Title: "Design of Areas, Spaces and Doorways"})
	after.AddNode(tree.NodeSpec{Type: grammar.TypeSubsection, ID: "9.5.3", Title: "Ceiling Heights"})
	after.AddNode(tree.NodeSpec{Type: grammar.TypeArticle, ID: "9.5.3.1", Title: "Ceiling Heights of Rooms"})
	after.AddNode(tree.NodeSpec{Type: grammar.TypeClause, ID: "9.5.3.1.(1)",
		Content: "Except as provided in Sentence (2), the ceiling height shall conform to Article 3.2.4.1."})
	after.AddNode(tree.NodeSpec{Type: grammar.TypeArticle, ID: "9.5.3.2", Title: "Mezzanines"})
	after.AddNode(tree.NodeSpec{Type: grammar.TypeClause, ID: "9.5.3.2.(1)",
		Content: "Ceiling heights shall conform to Article 9.5.3.1 and Article 3.2.4.1."})
	after.AddNode(tree.NodeSpec{Type: grammar.TypeArticle, ID: "9.5.3.3", Title: "Storage Garages"})
	after.MergeArticleContent()

	diff, err := CompareTrees(before, after)
	if err != nil {
		t.Fatalf("CompareTrees failed: %v", err)
	}

	if len(diff.Added) != 1 || diff.Added[0].ID != "9.5.3.3" {
		t.Errorf("Added = %+v", diff.Added)
	}

	if len(diff.Removed) != 1 || diff.Removed[0].ID != "9.5.3.1.(2)" {
		t.Fatalf("Removed = %+v", diff.Removed)
	}
	// Sentence (2) of 9.5.3.1 is still cited by the article and its first sentence.
	if d := cmp.Diff([]string{"9.5.3.1", "9.5.3.1.(1)"}, diff.Removed[0].ReferencedBy); d != "" {
		t.Errorf("dangling references mismatch (-want +got):\n%s", d)
	}

	var article *DiffEntry
	for i := range diff.Modified {
		if diff.Modified[i].ID == "9.5.3.1" {
			article = &diff.Modified[i]
		}
	}
	if article == nil {
		t.Fatalf("article 9.5.3.1 not reported as modified: %+v", diff.Modified)
	}
	if d := cmp.Diff([]string{"title", "content"}, article.Fields); d != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", d)
	}
	if article.NewTitle != "Ceiling Heights of Rooms" {
		t.Errorf("NewTitle = %q", article.NewTitle)
	}
	if d := cmp.Diff([]string{"9.5.3.2", "9.5.3.2.(1)"}, article.ReferencedBy); d != "" {
		t.Errorf("ReferencedBy mismatch (-want +got):\n%s", d)
	}

	text := diff.String()
	for _, want := range []string{"1 added, 1 removed", "+ 9.5.3.3", "- 9.5.3.1.(2)", "still referenced by: 9.5.3.1"} {
		if !strings.Contains(text, want) {
			t.Errorf("String() missing %q:\n%s", want, text)
		}
	}
}

func TestCompareTreesErrors(t *testing.T) {
	if _, err := CompareTrees(part9(), part3()); err == nil {
		t.Error("expected error comparing different parts")
	}
	if _, err := CompareTrees(nil, part3()); err == nil {
		t.Error("expected error for nil tree")
	}
}
