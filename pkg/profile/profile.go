// Package profile provides document profiles: per-document configuration of the part being
// parsed, its known sections, page furniture and parsing switches, loaded from YAML.
package profile

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/coolbeans/codetree/pkg/extract"
	"github.com/coolbeans/codetree/pkg/grammar"
	"github.com/coolbeans/codetree/pkg/tree"
)

// Profile describes one source document.
type Profile struct {
	// Metadata
	Name      string `yaml:"name" json:"name"`
	ProfileID string `yaml:"profile_id" json:"profile_id"`
	Version   string `yaml:"version" json:"version"`

	Part     PartInfo      `yaml:"part" json:"part"`
	Sections []SectionInfo `yaml:"sections" json:"sections"`
	Pages    PageRange     `yaml:"pages" json:"pages"`

	// Boilerplate lists running headers and footers to drop before classification.
	Boilerplate BoilerplateConfig `yaml:"boilerplate" json:"boilerplate"`

	// NotesMarker overrides the pattern that opens a table-notes block.
	NotesMarker string `yaml:"notes_marker,omitempty" json:"notes_marker,omitempty"`

	RejoinHyphens bool `yaml:"rejoin_hyphens" json:"rejoin_hyphens"`

	// Compiled patterns (populated after loading)
	compiled *compiledProfile
}

// PartInfo names the part a document holds.
type PartInfo struct {
	Number int    `yaml:"number" json:"number"`
	Title  string `yaml:"title" json:"title"`
}

// SectionInfo is a section known before parsing.
type SectionInfo struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
}

// PageRange locates the part inside the source document.
type PageRange struct {
	First int `yaml:"first" json:"first"`
	// MaxPageNumber bounds bare integers treated as printed page numbers.
	MaxPageNumber int `yaml:"max_page_number" json:"max_page_number"`
}

// BoilerplateConfig lists page furniture. Without patterns the compendium defaults apply.
type BoilerplateConfig struct {
	Exact    []string `yaml:"exact" json:"exact"`
	Patterns []string `yaml:"patterns" json:"patterns"`
}

type compiledProfile struct {
	boilerplate []*regexp.Regexp
	notesMarker *regexp.Regexp
}

// Compile compiles all regex patterns in the profile.
func (p *Profile) Compile() error {
	c := &compiledProfile{}

	patterns := p.Boilerplate.Patterns
	if len(patterns) == 0 {
		patterns = grammar.DefaultBoilerplatePatterns
	}
	for i, pat := range patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return fmt.Errorf("compiling boilerplate pattern %d %q: %w", i, pat, err)
		}
		c.boilerplate = append(c.boilerplate, re)
	}

	if p.NotesMarker != "" {
		re, err := regexp.Compile(p.NotesMarker)
		if err != nil {
			return fmt.Errorf("compiling notes marker %q: %w", p.NotesMarker, err)
		}
		c.notesMarker = re
	}

	p.compiled = c
	return nil
}

// IsCompiled returns true if the profile has been compiled.
func (p *Profile) IsCompiled() bool {
	return p.compiled != nil
}

// Validate checks that the profile has all required fields and that every section id
// belongs to the profile's part.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.ProfileID == "" {
		return fmt.Errorf("profile profile_id is required")
	}
	if p.Version == "" {
		return fmt.Errorf("profile version is required")
	}
	if p.Part.Number <= 0 {
		return fmt.Errorf("profile part.number must be positive")
	}

	part := strconv.Itoa(p.Part.Number)
	seen := make(map[string]bool, len(p.Sections))
	for _, s := range p.Sections {
		if t, ok := grammar.ClassifyID(s.ID); !ok || t != grammar.TypeSection {
			return fmt.Errorf("section %q is not a section id", s.ID)
		}
		if grammar.PartOf(s.ID) != part {
			return fmt.Errorf("section %s is outside part %s", s.ID, part)
		}
		if seen[s.ID] {
			return fmt.Errorf("section %s listed twice", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// PartID returns the node id of the profile's part.
func (p *Profile) PartID() string {
	return strconv.Itoa(p.Part.Number)
}

// Filter builds the page furniture filter for this profile.
func (p *Profile) Filter() (*grammar.Filter, error) {
	if !p.IsCompiled() {
		if err := p.Compile(); err != nil {
			return nil, err
		}
	}
	return grammar.NewFilter(p.Pages.MaxPageNumber, p.Boilerplate.Exact, p.compiled.boilerplate), nil
}

// Seed adds the part node and the known sections to b, in profile order.
func (p *Profile) Seed(b *tree.Builder) {
	b.AddNode(tree.NodeSpec{Type: grammar.TypePart, ID: p.PartID(), Title: p.Part.Title, Page: p.Pages.First})
	for _, s := range p.Sections {
		b.AddNode(tree.NodeSpec{Type: grammar.TypeSection, ID: s.ID, Title: s.Title, Page: p.Pages.First})
	}
	b.Enter(p.PartID())
}

// DriverOptions returns the parse driver configuration of this profile.
func (p *Profile) DriverOptions() ([]extract.DriverOption, error) {
	filter, err := p.Filter()
	if err != nil {
		return nil, err
	}
	opts := []extract.DriverOption{
		extract.WithFilter(filter),
		extract.WithHyphenRejoin(p.RejoinHyphens),
	}
	if p.compiled.notesMarker != nil {
		opts = append(opts, extract.WithNotesMarker(p.compiled.notesMarker))
	}
	return opts, nil
}
