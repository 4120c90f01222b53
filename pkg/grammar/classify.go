package grammar

import (
	"regexp"
	"strings"
	"unicode"
)

// TokenKind distinguishes the three classifier outcomes.
type TokenKind int

const (
	Unrecognized TokenKind = iota
	Heading
	Content
)

func (k TokenKind) String() string {
	switch k {
	case Heading:
		return "heading"
	case Content:
		return "content"
	default:
		return "unrecognized"
	}
}

// Token is the classification of a single text line.
type Token struct {
	Kind TokenKind `json:"kind"`
	Type NodeType  `json:"type,omitempty"`

	// Heading tokens
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`

	// Content tokens: "3" for (3), "b" for (b), "ii" for (ii)
	Marker string `json:"marker,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Fragment renders a content token the way it is folded into its owning clause.
func (t Token) Fragment() string {
	return "(" + t.Marker + ") " + t.Text
}

var (
	clausePattern       = regexp.MustCompile(`^\((\d+)\)\s+([A-Z].*)$`)
	subclausePattern    = regexp.MustCompile(`^\(([a-z])\)\s+(.+)$`)
	subsubclausePattern = regexp.MustCompile(`^\(([ivx]+)\)\s+(.+)$`)

	// idOnlyPattern matches a heading number standing alone on its line, e.g. "9.5.3." or "9.5.1. 0A."
	idOnlyPattern = regexp.MustCompile(`^\d+\.\d+\.\d+[A-Z]?(?:\.\s*\d+[A-Z]?)?\.$`)

	// sectionMarkerPattern matches "Section 9.5. Design of Areas, Spaces and Doorways".
	sectionMarkerPattern = regexp.MustCompile(`^Section\s+(\d+\.\d+)\.(?:\s+(.*))?$`)

	// tableNotesPattern matches the start of a table's notes block.
	tableNotesPattern = regexp.MustCompile(`^Notes?\s+to\s+Table`)
)

// Classify recognizes a single normalized line. Heading rules are tried in decision-table
// order before the clause, sub-clause and sub-sub-clause shapes. It never fails: anything
// else yields an Unrecognized token.
func Classify(line string) Token {
	line = strings.TrimSpace(line)
	if line == "" {
		return Token{}
	}

	for _, r := range rules {
		if r.heading == nil {
			continue
		}
		if m := r.heading.FindStringSubmatch(line); m != nil {
			return Token{
				Kind:  Heading,
				Type:  r.Type,
				ID:    m[1] + r.idSuffix,
				Title: strings.TrimSpace(m[2]),
			}
		}
	}

	if m := clausePattern.FindStringSubmatch(line); m != nil {
		return Token{Kind: Content, Type: TypeClause, Marker: m[1], Text: strings.TrimSpace(m[2])}
	}
	if m := subclausePattern.FindStringSubmatch(line); m != nil {
		return Token{Kind: Content, Type: TypeSubclause, Marker: m[1], Text: strings.TrimSpace(m[2])}
	}
	if m := subsubclausePattern.FindStringSubmatch(line); m != nil {
		return Token{Kind: Content, Type: TypeSubsubclause, Marker: m[1], Text: strings.TrimSpace(m[2])}
	}

	return Token{}
}

// IDOnly recognizes a heading whose title wrapped to the next physical line. The
// returned token has an empty title; see TitleCandidate for the lookahead rule.
func IDOnly(line string) (Token, bool) {
	line = strings.TrimSpace(line)
	if !idOnlyPattern.MatchString(line) {
		return Token{}, false
	}

	id := strings.TrimSuffix(strings.ReplaceAll(line, " ", ""), ".")
	t, ok := ClassifyID(id)
	if !ok || !t.IsHeading() || t == TypeSection || t == TypePart {
		return Token{}, false
	}
	return Token{Kind: Heading, Type: t, ID: id}, true
}

// ReservedTitle is given to ID-only headings with no usable title line.
const ReservedTitle = "Reserved"

// TitleCandidate reports whether line may serve as the title of a preceding ID-only
// heading: it must begin with an uppercase letter and must not be a section marker.
func TitleCandidate(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	first := []rune(line)[0]
	if !unicode.IsUpper(first) {
		return false
	}
	_, _, isMarker := SectionMarker(line)
	return !isMarker
}

// SectionMarker recognizes a section heading line such as "Section 9.5. Design of Areas".
// The title may be empty; when present it must start with an uppercase letter.
func SectionMarker(line string) (id, title string, ok bool) {
	m := sectionMarkerPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", "", false
	}
	title = strings.TrimSpace(m[2])
	if title != "" && !unicode.IsUpper([]rune(title)[0]) {
		return "", "", false
	}
	return m[1], title, true
}

// TableNotes reports whether line opens a "Notes to Table ..." block.
func TableNotes(line string) bool {
	return tableNotesPattern.MatchString(strings.TrimSpace(line))
}
