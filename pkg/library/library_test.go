package library

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coolbeans/codetree/pkg/diag"
)

const testSource = "9.5.3. Ceiling Heights\n" +
	"9.5.3.1. Ceiling Heights of Rooms or Spaces\n" +
	"(1) Except as provided in Sentence (2), the ceiling height shall be 2.3 m.\n" +
	"(2) The ceiling height over stairs shall be not less than 1.95 m.\n" +
	"Building Code Compendium\n" +
	"711\n" +
	"\f" +
	"9.5.4. Hallways\n" +
	"9.5.4.1. Hallway Width\n" +
	"(1) The unobstructed width of a hallway shall be not less than 860 mm.\n" +
	"712\n"

const testJSONL = `{"page": 711, "line": "9.5.3. Ceiling Heights"}
{"page": 711, "line": "9.5.3.1. Ceiling Heights of Rooms or Spaces"}
{"page": 711, "line": "(1) The ceiling height shall be 2.3 m."}
`

func initTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Init(filepath.Join(t.TempDir(), "lib"))
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return lib
}

func TestInitAndOpen(t *testing.T) {
	libraryPath := filepath.Join(t.TempDir(), "test-library")

	lib, err := Init(libraryPath)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if lib.Path() != libraryPath {
		t.Errorf("Path() = %q", lib.Path())
	}
	if _, err := os.Stat(filepath.Join(libraryPath, manifestFileName)); os.IsNotExist(err) {
		t.Error("manifest file was not created")
	}

	reopened, err := Open(libraryPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(reopened.ListDocuments()) != 0 {
		t.Error("new library should be empty")
	}
}

func TestOpenNonExistent(t *testing.T) {
	if _, err := Open("/nonexistent/path"); err == nil {
		t.Error("expected error for nonexistent library")
	}
}

func TestOpenOrInit(t *testing.T) {
	libraryPath := filepath.Join(t.TempDir(), "lib")
	lib, err := OpenOrInit(libraryPath)
	if err != nil {
		t.Fatalf("OpenOrInit (create) failed: %v", err)
	}
	if _, err := lib.AddDocument("part9", []byte(testSource), AddOptions{}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	again, err := OpenOrInit(libraryPath)
	if err != nil {
		t.Fatalf("OpenOrInit (open) failed: %v", err)
	}
	if again.GetDocument("part9") == nil {
		t.Error("existing library was reinitialized")
	}
}

func TestAddDocument(t *testing.T) {
	lib := initTestLibrary(t)

	collector := diag.NewCollector()
	entry, err := lib.AddDocument("part9", []byte(testSource), AddOptions{Name: "Part 9", Tags: []string{"obc"}}, collector)
	if err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	if entry.Status != StatusReady {
		t.Errorf("Status = %s, want ready", entry.Status)
	}
	if entry.Part != 9 || entry.ProfileID != "obc-part9" || entry.Format != FormatText {
		t.Errorf("entry = %+v", entry)
	}
	if len(entry.ContentHash) != 64 || len(entry.StorageHash) != 64 {
		t.Errorf("hashes = %q / %q, want 64 hex chars", entry.ContentHash, entry.StorageHash)
	}
	if entry.Stats.Pages != 2 {
		t.Errorf("Pages = %d, want 2", entry.Stats.Pages)
	}
	wantTypes := map[string]int{"clause": 3, "article": 2, "subsection": 2}
	for typ, want := range wantTypes {
		if got := entry.Stats.ByType[typ]; got != want {
			t.Errorf("ByType[%s] = %d, want %d", typ, got, want)
		}
	}
	if entry.Stats.References == 0 {
		t.Error("expected references from Sentence (2)")
	}

	for _, name := range []string{sourceFileName, treeFileName, metadataFileName} {
		if _, err := os.Stat(filepath.Join(lib.documentDir(entry.StorageHash), name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	if got := lib.GetDocument("part9"); got != entry {
		t.Error("GetDocument did not return the stored entry")
	}
}

func TestAddDocumentIdempotent(t *testing.T) {
	lib := initTestLibrary(t)

	first, err := lib.AddDocument("part9", []byte(testSource), AddOptions{})
	if err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	second, err := lib.AddDocument("part9", []byte(testSource), AddOptions{})
	if err != nil {
		t.Fatalf("second AddDocument failed: %v", err)
	}
	if first != second {
		t.Error("unchanged source should return the existing entry")
	}

	changed := strings.Replace(testSource, "860 mm", "900 mm", 1)
	third, err := lib.AddDocument("part9", []byte(changed), AddOptions{})
	if err != nil {
		t.Fatalf("third AddDocument failed: %v", err)
	}
	if third == first || third.ContentHash == first.ContentHash {
		t.Error("changed source should be re-parsed")
	}
	if !third.IngestedAt.Equal(first.IngestedAt) {
		t.Error("re-parse should keep the original ingestion time")
	}
	if len(lib.ListDocuments()) != 1 {
		t.Errorf("expected 1 document, got %d", len(lib.ListDocuments()))
	}

	forced, err := lib.AddDocument("part9", []byte(changed), AddOptions{Force: true})
	if err != nil {
		t.Fatalf("forced AddDocument failed: %v", err)
	}
	if forced == third {
		t.Error("Force should re-parse an unchanged source")
	}
}

func TestAddDocumentErrors(t *testing.T) {
	lib := initTestLibrary(t)

	if _, err := lib.AddDocument("", []byte(testSource), AddOptions{}); err == nil {
		t.Error("expected error for empty document ID")
	}

	if _, err := lib.AddDocument("bad", []byte("{not json"), AddOptions{Format: FormatJSONL}); err == nil {
		t.Fatal("expected error for malformed JSONL")
	}
	entry := lib.GetDocument("bad")
	if entry == nil || entry.Status != StatusFailed || entry.Error == "" {
		t.Fatalf("failed entry = %+v", entry)
	}
	if _, err := lib.LoadTree("bad"); err == nil {
		t.Error("LoadTree should refuse a failed document")
	}
}

func TestLoadTree(t *testing.T) {
	lib := initTestLibrary(t)
	if _, err := lib.AddDocument("part9", []byte(testSource), AddOptions{}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	loaded, err := lib.LoadTree("part9")
	if err != nil {
		t.Fatalf("LoadTree failed: %v", err)
	}

	direct, err := IngestFromText([]byte(testSource), nil, FormatText)
	if err != nil {
		t.Fatalf("IngestFromText failed: %v", err)
	}
	if diff := cmp.Diff(direct.Tree.Records(), loaded.Records()); diff != "" {
		t.Errorf("stored tree differs from a fresh parse (-want +got):\n%s", diff)
	}

	clause, ok := loaded.Node("9.5.3.1.(1)")
	if !ok {
		t.Fatal("clause 9.5.3.1.(1) missing")
	}
	if diff := cmp.Diff([]string{"2"}, clause.Refs.Clauses); diff != "" {
		t.Errorf("clause refs mismatch (-want +got):\n%s", diff)
	}

	if _, err := lib.LoadTree("missing"); err == nil {
		t.Error("expected error for missing document")
	}
}

func TestLoadSourceText(t *testing.T) {
	lib := initTestLibrary(t)
	if _, err := lib.AddDocument("part9", []byte(testSource), AddOptions{}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	source, err := lib.LoadSourceText("part9")
	if err != nil {
		t.Fatalf("LoadSourceText failed: %v", err)
	}
	if string(source) != testSource {
		t.Error("source text mismatch")
	}
}

func TestRemoveDocument(t *testing.T) {
	lib := initTestLibrary(t)
	entry, err := lib.AddDocument("part9", []byte(testSource), AddOptions{})
	if err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	if err := lib.RemoveDocument("part9"); err != nil {
		t.Fatalf("RemoveDocument failed: %v", err)
	}
	if lib.GetDocument("part9") != nil {
		t.Error("document still listed after removal")
	}
	if _, err := os.Stat(lib.documentDir(entry.StorageHash)); !os.IsNotExist(err) {
		t.Error("document files still exist after removal")
	}
	if err := lib.RemoveDocument("part9"); err == nil {
		t.Error("expected error removing a missing document")
	}
}

func TestStatsAndList(t *testing.T) {
	lib := initTestLibrary(t)
	if _, err := lib.AddDocument("b-part9", []byte(testSource), AddOptions{}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	if _, err := lib.AddDocument("a-part9", []byte(testJSONL), AddOptions{Format: FormatJSONL}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	docs := lib.ListDocuments()
	if len(docs) != 2 || docs[0].ID != "a-part9" || docs[1].ID != "b-part9" {
		t.Errorf("ListDocuments order = %v", docs)
	}

	stats := lib.Stats()
	if stats.TotalDocuments != 2 || stats.ByStatus[string(StatusReady)] != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByType["clause"] != 4 {
		t.Errorf("ByType[clause] = %d, want 4", stats.ByType["clause"])
	}
	if stats.TotalNodes != docs[0].Stats.Nodes+docs[1].Stats.Nodes {
		t.Errorf("TotalNodes = %d", stats.TotalNodes)
	}
}

func TestPersistenceAcrossOpenClose(t *testing.T) {
	libraryPath := filepath.Join(t.TempDir(), "lib")
	lib, err := Init(libraryPath)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := lib.AddDocument("part9", []byte(testSource), AddOptions{}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	reopened, err := Open(libraryPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	entry := reopened.GetDocument("part9")
	if entry == nil || entry.Status != StatusReady {
		t.Fatalf("entry after reopen = %+v", entry)
	}
	loaded, err := reopened.LoadTree("part9")
	if err != nil {
		t.Fatalf("LoadTree after reopen failed: %v", err)
	}
	if loaded.Len() != entry.Stats.Nodes {
		t.Errorf("Len() = %d, want %d", loaded.Len(), entry.Stats.Nodes)
	}
}
