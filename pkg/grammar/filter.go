package grammar

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// bareNumberPattern matches a standalone page number.
	bareNumberPattern = regexp.MustCompile(`^\d{1,3}$`)

	// divisionHeaderPattern matches the running "Division B – Part 9" header, optionally
	// preceded by a page number.
	divisionHeaderPattern = regexp.MustCompile(`^(?:\d+\s+)?Division\s+[A-C]\s*[-–—?]\s*Part\s*\d+`)
)

// DefaultBoilerplatePatterns are the running header and footer shapes of the compendium PDFs.
var DefaultBoilerplatePatterns = []string{
	`^\d{4}\s+Building Code.*$`,
	`^Division\s+[A-C]\s*[-–—?]\s*Part\s*\d+.*$`,
	`^Part\s+\d+\s*$`,
	`^\d+\s+Division\s+[A-C].*Part\s*\d+.*$`,
}

// headerWindow is how many leading lines of a page may hold running headers.
const headerWindow = 6

// Filter removes page furniture before lines reach the classifier.
type Filter struct {
	maxPageNumber int
	exact         map[string]struct{}
	patterns      []*regexp.Regexp
}

// NewFilter creates a filter. maxPageNumber bounds the bare integers treated as page
// numbers (0 accepts any 1-3 digit number).
func NewFilter(maxPageNumber int, exact []string, patterns []*regexp.Regexp) *Filter {
	f := &Filter{
		maxPageNumber: maxPageNumber,
		exact:         make(map[string]struct{}, len(exact)),
		patterns:      patterns,
	}
	for _, s := range exact {
		f.exact[Normalize(s)] = struct{}{}
	}
	return f
}

// DefaultFilter uses DefaultBoilerplatePatterns and no exact strings.
func DefaultFilter() *Filter {
	patterns := make([]*regexp.Regexp, len(DefaultBoilerplatePatterns))
	for i, p := range DefaultBoilerplatePatterns {
		patterns[i] = regexp.MustCompile(p)
	}
	return NewFilter(0, nil, patterns)
}

// Drop reports whether a normalized line is page furniture.
func (f *Filter) Drop(line string) bool {
	if line == "" {
		return true
	}
	if bareNumberPattern.MatchString(line) {
		if f.maxPageNumber <= 0 {
			return true
		}
		n, _ := strconv.Atoi(line)
		return n <= f.maxPageNumber
	}
	if _, ok := f.exact[line]; ok {
		return true
	}
	for _, p := range f.patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// Page normalizes and filters the lines of one page. Heading numbers printed as running
// headers above the page's division header are removed too, so they are never taken
// for ID-only headings.
func (f *Filter) Page(lines []string) []string {
	normalized := make([]string, 0, len(lines))
	for _, line := range lines {
		if n := Normalize(line); n != "" {
			normalized = append(normalized, n)
		}
	}

	headerEnd := -1
	for i := 0; i < len(normalized) && i < headerWindow; i++ {
		if divisionHeaderPattern.MatchString(normalized[i]) {
			headerEnd = i
			break
		}
	}

	kept := make([]string, 0, len(normalized))
	for i, line := range normalized {
		if i < headerEnd {
			if _, ok := IDOnly(line); ok {
				continue
			}
		}
		if f.Drop(line) {
			continue
		}
		kept = append(kept, line)
	}
	return kept
}

// Normalize collapses runs of whitespace (including non-breaking spaces) and trims the line.
func Normalize(line string) string {
	return strings.Join(strings.Fields(line), " ")
}
