package profile

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coolbeans/codetree/pkg/extract"
	"github.com/coolbeans/codetree/pkg/grammar"
	"github.com/coolbeans/codetree/pkg/pages"
	"github.com/coolbeans/codetree/pkg/tree"
)

const testProfileYAML = `
name: "Test Part 3"
profile_id: "test-part3"
version: "1.0.0"
part:
  number: 3
  title: "Fire Protection, Occupant Safety and Accessibility"
pages:
  first: 200
  max_page_number: 400
boilerplate:
  exact:
    - "Ontario Regulation 332/12"
  patterns:
    - '^Part\s+3\s*$'
sections:
  - id: "3.1"
    title: "General"
  - id: "3.2"
    title: "Building Fire Safety"
notes_marker: '^Notes?\s+to\s+(?:Table|Figure)'
rejoin_hyphens: true
`

func TestDefault(t *testing.T) {
	p := Default()
	if p.ProfileID != DefaultID {
		t.Errorf("ProfileID = %q, want %q", p.ProfileID, DefaultID)
	}
	if p.Part.Number != 9 || p.Part.Title != "Housing and Small Buildings" {
		t.Errorf("Part = %+v", p.Part)
	}
	if len(p.Sections) != 41 {
		t.Errorf("len(Sections) = %d, want 41", len(p.Sections))
	}
	if p.Sections[4].ID != "9.5" || p.Sections[4].Title != "Design of Areas, Spaces and Doorways" {
		t.Errorf("Sections[4] = %+v", p.Sections[4])
	}
	if !p.IsCompiled() {
		t.Error("Default() should be compiled")
	}

	// Each call returns an independent copy.
	p.Sections = nil
	if len(Default().Sections) != 41 {
		t.Error("Default() shares state between calls")
	}
}

func TestParse(t *testing.T) {
	p, err := Parse([]byte(testProfileYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.PartID() != "3" || !p.RejoinHyphens || p.Pages.First != 200 {
		t.Errorf("Parse() = %+v", p)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Profile {
		return &Profile{
			Name:      "Test",
			ProfileID: "test",
			Version:   "1",
			Part:      PartInfo{Number: 9},
			Sections:  []SectionInfo{{ID: "9.1"}, {ID: "9.2"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(p *Profile)
		wantErr string
	}{
		{"valid", func(p *Profile) {}, ""},
		{"missing name", func(p *Profile) { p.Name = "" }, "name is required"},
		{"missing id", func(p *Profile) { p.ProfileID = "" }, "profile_id is required"},
		{"missing version", func(p *Profile) { p.Version = "" }, "version is required"},
		{"no part", func(p *Profile) { p.Part.Number = 0 }, "part.number"},
		{"not a section id", func(p *Profile) { p.Sections[0].ID = "9.1.1" }, "not a section id"},
		{"other part", func(p *Profile) { p.Sections[1].ID = "8.2" }, "outside part 9"},
		{"duplicate", func(p *Profile) { p.Sections[1].ID = "9.1" }, "listed twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCompileInvalidPattern(t *testing.T) {
	p := &Profile{Boilerplate: BoilerplateConfig{Patterns: []string{"[unclosed"}}}
	if err := p.Compile(); err == nil {
		t.Error("Compile() should reject an invalid boilerplate pattern")
	}

	p = &Profile{NotesMarker: "(bad"}
	if err := p.Compile(); err == nil {
		t.Error("Compile() should reject an invalid notes marker")
	}
}

func TestFilter(t *testing.T) {
	p, err := Parse([]byte(testProfileYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	f, err := p.Filter()
	if err != nil {
		t.Fatalf("Filter() error = %v", err)
	}

	drop := []string{"Ontario Regulation 332/12", "Part 3", "212"}
	keep := []string{"3.1.1. General", "(1) Text.", "512", "Part 9"}
	for _, line := range drop {
		if !f.Drop(line) {
			t.Errorf("Drop(%q) = false, want true", line)
		}
	}
	for _, line := range keep {
		if f.Drop(line) {
			t.Errorf("Drop(%q) = true, want false", line)
		}
	}
}

func TestSeed(t *testing.T) {
	p, err := Parse([]byte(testProfileYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	b := tree.New(p.Part.Number)
	p.Seed(b)

	var ids []string
	for _, n := range b.Nodes() {
		ids = append(ids, n.ID)
	}
	if diff := cmp.Diff([]string{"3", "3.1", "3.2"}, ids); diff != "" {
		t.Errorf("seeded nodes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"3"}, b.Context()); diff != "" {
		t.Errorf("context after Seed mismatch (-want +got):\n%s", diff)
	}
	if n, _ := b.Node("3.2"); n.ParentID != "3" || n.Page != 200 {
		t.Errorf("3.2 = parent %q page %d", n.ParentID, n.Page)
	}
}

func TestDriverOptions(t *testing.T) {
	p, err := Parse([]byte(testProfileYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	opts, err := p.DriverOptions()
	if err != nil {
		t.Fatalf("DriverOptions() error = %v", err)
	}

	b := tree.New(3, tree.WithReferences(extract.NewReferenceExtractor()))
	p.Seed(b)
	extract.NewDriver(b, opts...).Parse([]pages.Page{{Number: 201, Lines: []string{
		"3.2.1. Exceptions",
		"3.2.1.1. Exceptions in Determining Height",
		"(1) Rooftop enclosures shall not be con-",
		"Part 3",
		"sidered as a storey.",
		"Notes to Figure 3.2.1.1.:",
		"(1) A figure note.",
	}}})

	clause, ok := b.Node("3.2.1.1.(1)")
	if !ok {
		t.Fatal("clause 3.2.1.1.(1) missing")
	}
	if clause.Content != "Rooftop enclosures shall not be considered as a storey." {
		t.Errorf("clause content = %q", clause.Content)
	}
	if got := len(b.Children("3.2.1.1")); got != 1 {
		t.Errorf("article has %d children, want 1 (figure notes excluded)", got)
	}
	if n, _ := b.Node("3.2.1"); n.Type != grammar.TypeSubsection {
		t.Errorf("3.2.1 type = %s", n.Type)
	}
}
