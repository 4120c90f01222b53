package extract

import (
	"regexp"
	"strings"

	"github.com/coolbeans/codetree/pkg/tree"
)

// Identifier shapes used in cross-references.
const (
	tableIDShape      = `\d+\.\d+\.\d+\.\d+[A-Z]?(?:\.-[A-Z])?`
	articleIDShape    = `\d+\.\d+\.\d+\.\d+[A-Z]?`
	sectionIDShape    = `\d+\.\d+`
	subsectionIDShape = `\d+\.\d+\.\d+[A-Z]?`
	clauseMarkerShape = `\(\d+\)`

	// listJoiner separates items of "Sentences (1), (2) and (4)" or "Articles 9.5.3.1 to 9.5.3.3".
	listJoiner = `\s*(?:,\s*(?:and\s+|or\s+)?|\s(?:and|or|to)\s)\s*`
)

// refPattern finds one kind of reference: the keyword followed by a list of items.
type refPattern struct {
	kind tree.RefKind
	list *regexp.Regexp
	item *regexp.Regexp

	// identifier is set for dotted ids, which must not stop inside a longer id.
	identifier bool
}

// ReferenceExtractor detects cross-references to tables, clauses (Sentences), articles,
// sections and subsections in provision text. It holds only immutable compiled patterns
// and is safe for concurrent use.
type ReferenceExtractor struct {
	patterns []refPattern
}

var _ tree.RefExtractor = (*ReferenceExtractor)(nil)

// NewReferenceExtractor creates a ReferenceExtractor for the building-code vocabulary.
func NewReferenceExtractor() *ReferenceExtractor {
	return &ReferenceExtractor{
		patterns: []refPattern{
			// "Table 9.5.3.1.", "Tables 9.10.14.4.-A and 9.10.14.4.-B"
			newRefPattern(tree.RefTable, `Tables?`, tableIDShape, `(`+tableIDShape+`)`),
			// "Sentence (2)", "Sentences (2) and (3)", "Clause (1)"
			newRefPattern(tree.RefClause, `(?:Sentence|Clause)s?`, clauseMarkerShape, `\((\d+)\)`),
			// "Article 9.5.3.1", "Articles 9.5.1.1A and 9.5.1.2"
			newRefPattern(tree.RefArticle, `Articles?`, articleIDShape, `(`+articleIDShape+`)`),
			// "Section 9.5"
			newRefPattern(tree.RefSection, `Sections?`, sectionIDShape, `(`+sectionIDShape+`)`),
			// "Subsection 9.5.3A"
			newRefPattern(tree.RefSubsection, `Subsections?`, subsectionIDShape, `(`+subsectionIDShape+`)`),
		},
	}
}

// newRefPattern builds the list pattern for keyword and shape. item must capture the
// reported target in group 1. Items may carry the trailing period of a written id
// ("Tables 9.5.3.1. and 9.5.3.2.").
func newRefPattern(kind tree.RefKind, keyword, shape, item string) refPattern {
	listed := shape + `\.?`
	return refPattern{
		kind:       kind,
		list:       regexp.MustCompile(`\b` + keyword + `\s+(` + listed + `(?:` + listJoiner + listed + `)*)`),
		item:       regexp.MustCompile(item),
		identifier: kind != tree.RefClause,
	}
}

// Extract returns every reference found in text. All five lists are present, ordered by
// first appearance and free of duplicates. Identifiers are reported as written.
func (e *ReferenceExtractor) Extract(text string) tree.References {
	refs := tree.EmptyReferences()
	if strings.TrimSpace(text) == "" {
		return refs
	}

	for _, p := range e.patterns {
		for _, m := range p.list.FindAllStringSubmatchIndex(text, -1) {
			list := text[m[2]:m[3]]
			for _, item := range p.item.FindAllStringSubmatchIndex(list, -1) {
				// Reject an item that is only the prefix of a longer identifier, e.g.
				// "Section 9.5" inside "Section 9.5.3".
				if p.identifier && continuesIdentifier(text, m[2]+item[1]) {
					continue
				}
				refs.Add(p.kind, list[item[2]:item[3]])
			}
		}
	}
	return refs
}

// continuesIdentifier reports whether the identifier ending at pos in text is followed by
// more identifier characters.
func continuesIdentifier(text string, pos int) bool {
	if pos >= len(text) {
		return false
	}
	c := text[pos]
	if isDigit(c) || (c >= 'A' && c <= 'Z') {
		return true
	}
	return c == '.' && pos+1 < len(text) && isDigit(text[pos+1])
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
