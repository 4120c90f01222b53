// Package validate checks a parsed provision tree for structural problems and for
// extraction artifacts left in clause text.
package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/extract"
	"github.com/coolbeans/codetree/pkg/grammar"
	"github.com/coolbeans/codetree/pkg/profile"
	"github.com/coolbeans/codetree/pkg/tree"
)

// ValidationStatus represents the overall validation status.
type ValidationStatus string

const (
	StatusPass ValidationStatus = "PASS"
	StatusWarn ValidationStatus = "WARN"
	StatusFail ValidationStatus = "FAIL"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Issue categories.
const (
	CategoryClauseGap      = "clause_gap"
	CategoryOrphan         = "orphan"
	CategoryFallback       = "fallback_parent"
	CategoryDuplicate      = "duplicate"
	CategoryUnclassified   = "unclassified_line"
	CategoryEmptyArticle   = "empty_article"
	CategoryEmptySection   = "empty_section"
	CategoryHeaderLeak     = "pdf_header_leak"
	CategoryRawMarkdown    = "raw_markdown"
	CategoryBrokenTable    = "broken_html_table"
	CategoryRawHTML        = "raw_html_tag"
	CategoryMissingSpace   = "missing_space"
	CategoryMarkdownLink   = "markdown_link"
	CategoryEscapedParen   = "escaped_paren"
	CategoryUnresolvedRefs = "unresolved_reference"
)

// Config controls which findings are escalated to errors.
type Config struct {
	// FailOnGap turns clause numbering gaps into errors.
	FailOnGap bool `json:"fail_on_gap"`
	// FailOnOrphan turns orphan nodes into errors.
	FailOnOrphan bool `json:"fail_on_orphan"`
	// MaxExamples caps the example ids kept per issue.
	MaxExamples int `json:"max_examples"`
}

// DefaultConfig returns the configuration used by the command line.
func DefaultConfig() Config {
	return Config{MaxExamples: 5}
}

// ValidationIssue represents a validation issue found.
type ValidationIssue struct {
	Category string   `json:"category"`
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	Count    int      `json:"count,omitempty"`
	Examples []string `json:"examples,omitempty"`
}

// StructureValidation contains tree shape metrics.
type StructureValidation struct {
	TotalNodes          int            `json:"total_nodes"`
	ByType              map[string]int `json:"by_type"`
	Articles            int            `json:"articles"`
	ArticlesWithContent int            `json:"articles_with_content"`
	ContentRate         float64        `json:"content_rate"`
	Clauses             int            `json:"clauses"`
	Orphans             int            `json:"orphans"`
	Fallbacks           int            `json:"fallbacks"`
	ContentLength       int            `json:"content_length"`
}

// ReferenceValidation contains reference resolution metrics.
type ReferenceValidation struct {
	TotalReferences    int            `json:"total_references"`
	ByKind             map[string]int `json:"by_kind"`
	Resolved           int            `json:"resolved"`
	NotFound           int            `json:"not_found"`
	SelfRefs           int            `json:"self_refs"`
	External           int            `json:"external"`
	ResolutionRate     float64        `json:"resolution_rate"`
	UnresolvedExamples []string       `json:"unresolved_examples,omitempty"`
}

// ValidationResult is the outcome of validating one tree.
type ValidationResult struct {
	Status      ValidationStatus     `json:"status"`
	Part        int                  `json:"part"`
	ProfileName string               `json:"profile_name,omitempty"`
	Structure   *StructureValidation `json:"structure"`
	References  *ReferenceValidation `json:"references"`
	Diagnostics map[string]int       `json:"diagnostics,omitempty"`
	Issues      []ValidationIssue    `json:"issues,omitempty"`
	Warnings    []ValidationIssue    `json:"warnings,omitempty"`
}

// Errors returns the number of error-severity issues.
func (r *ValidationResult) Errors() int {
	return len(r.Issues)
}

// Passed reports whether the tree has no error-severity issues.
func (r *ValidationResult) Passed() bool {
	return r.Status != StatusFail
}

type contentRule struct {
	category string
	severity string
	message  string
	pattern  *regexp.Regexp
}

// contentRules catch extraction artifacts that leak into clause text.
var contentRules = []contentRule{
	{CategoryHeaderLeak, SeverityWarning, "running page header in content", regexp.MustCompile(`\d{4}\s+Building Code`)},
	{CategoryRawMarkdown, SeverityError, "raw markdown heading in content", regexp.MustCompile(`(?m)^#{1,6}\s`)},
	{CategoryRawMarkdown, SeverityError, "raw markdown emphasis in content", regexp.MustCompile(`\*\*[^*]+\*\*|(?:^|\s)_[^_\s][^_]*_(?:\s|$)`)},
	{CategoryRawHTML, SeverityWarning, "raw html tag in content", regexp.MustCompile(`<(?:br|span|div|sup|sub|p)\b[^>]*>`)},
	{CategoryMissingSpace, SeverityError, "identifier runs into the following word", regexp.MustCompile(`\d\.\d+\.?\d*[A-Z][a-z]`)},
	{CategoryMarkdownLink, SeverityError, "markdown page link in content", regexp.MustCompile(`\[([^\]]+)\]\(#page-\d+[^)]*\)`)},
	{CategoryEscapedParen, SeverityError, "escaped parenthesis in content", regexp.MustCompile(`\\[()]`)},
}

var (
	tableOpenPattern  = regexp.MustCompile(`(?i)<table\b`)
	tableClosePattern = regexp.MustCompile(`(?i)</table>`)
)

// Validator checks trees against a Config.
type Validator struct {
	config Config
}

// NewValidator creates a validator.
func NewValidator(config Config) *Validator {
	if config.MaxExamples <= 0 {
		config.MaxExamples = DefaultConfig().MaxExamples
	}
	return &Validator{config: config}
}

// Validate runs every check against b. diagnostics are the findings reported while the tree
// was built; p may be nil.
func (v *Validator) Validate(b *tree.Builder, diagnostics []diag.Diagnostic, p *profile.Profile) *ValidationResult {
	result := &ValidationResult{
		Part:        b.Part(),
		Diagnostics: make(map[string]int),
	}
	if p != nil {
		result.ProfileName = p.Name
	}

	groups := newIssueSet(v.config.MaxExamples)

	result.Structure = v.validateStructure(b, groups)
	result.References = v.validateReferences(b, groups)
	v.validateDiagnostics(diagnostics, result, groups)
	v.validateContent(b, groups)
	if p != nil {
		v.validateSections(b, p, groups)
	}

	for _, issue := range groups.issues() {
		if issue.Severity == SeverityError {
			result.Issues = append(result.Issues, issue)
		} else {
			result.Warnings = append(result.Warnings, issue)
		}
	}

	switch {
	case len(result.Issues) > 0:
		result.Status = StatusFail
	case hasSeverity(result.Warnings, SeverityWarning):
		result.Status = StatusWarn
	default:
		result.Status = StatusPass
	}
	return result
}

func (v *Validator) validateStructure(b *tree.Builder, groups *issueSet) *StructureValidation {
	s := &StructureValidation{ByType: make(map[string]int)}
	for t, n := range b.Stats() {
		s.ByType[string(t)] = n
	}

	for _, n := range b.Nodes() {
		s.TotalNodes++
		s.ContentLength += len(n.Content)
		if n.Orphan {
			s.Orphans++
		}
		if n.Fallback {
			s.Fallbacks++
		}
		if n.Type == grammar.TypeClause {
			s.Clauses++
		}
		if !n.Type.IsArticleLevel() {
			continue
		}
		s.Articles++
		if n.Content != "" {
			s.ArticlesWithContent++
		} else if n.Title != grammar.ReservedTitle && len(b.Children(n.ID)) == 0 {
			groups.add(CategoryEmptyArticle, SeverityWarning, "article has no content", n.ID)
		}
	}
	if s.Articles > 0 {
		s.ContentRate = float64(s.ArticlesWithContent) / float64(s.Articles)
	}
	return s
}

func (v *Validator) validateReferences(b *tree.Builder, groups *issueSet) *ReferenceValidation {
	lookup := extract.NewReferenceLookup(b)
	stats := lookup.Stats()
	r := &ReferenceValidation{
		TotalReferences: stats.TotalReferences,
		ByKind:          stats.ByKind,
	}
	for _, edge := range lookup.All() {
		switch edge.Status {
		case extract.ResolutionResolved:
			r.Resolved++
		case extract.ResolutionSelfRef:
			r.SelfRefs++
		case extract.ResolutionExternal:
			r.External++
		case extract.ResolutionNotFound:
			r.NotFound++
			example := fmt.Sprintf("%s -> %s %s", edge.Source, edge.Kind, edge.Target)
			if len(r.UnresolvedExamples) < v.config.MaxExamples {
				r.UnresolvedExamples = append(r.UnresolvedExamples, example)
			}
			groups.add(CategoryUnresolvedRefs, SeverityInfo, "reference target not in this part", example)
		}
	}
	internal := r.TotalReferences - r.External
	if internal > 0 {
		r.ResolutionRate = float64(r.Resolved+r.SelfRefs) / float64(internal)
	}
	return r
}

func (v *Validator) validateDiagnostics(diagnostics []diag.Diagnostic, result *ValidationResult, groups *issueSet) {
	for _, d := range diagnostics {
		result.Diagnostics[string(d.Kind)]++
		example := d.NodeID
		if example == "" {
			example = fmt.Sprintf("page %d: %s", d.Page, d.Line)
		}

		switch d.Kind {
		case diag.KindClauseGap:
			severity := SeverityWarning
			if v.config.FailOnGap {
				severity = SeverityError
			}
			groups.add(CategoryClauseGap, severity, "clause numbering is not consecutive", example)
		case diag.KindOrphan:
			severity := SeverityWarning
			if v.config.FailOnOrphan {
				severity = SeverityError
			}
			groups.add(CategoryOrphan, severity, "node has no resolvable parent", example)
		case diag.KindFallbackParent:
			groups.add(CategoryFallback, SeverityInfo, "parent taken from context instead of identifier", example)
		case diag.KindDuplicate:
			groups.add(CategoryDuplicate, SeverityWarning, "identifier seen more than once", example)
		case diag.KindUnclassified:
			groups.add(CategoryUnclassified, SeverityInfo, "line matched no pattern outside a clause", example)
		}
	}
}

func (v *Validator) validateContent(b *tree.Builder, groups *issueSet) {
	for _, n := range b.Nodes() {
		if n.Content == "" || n.Type.IsArticleLevel() {
			continue
		}
		for _, rule := range contentRules {
			if rule.pattern.MatchString(n.Content) {
				groups.add(rule.category, rule.severity, rule.message, n.ID)
			}
		}
		opens := len(tableOpenPattern.FindAllStringIndex(n.Content, -1))
		closes := len(tableClosePattern.FindAllStringIndex(n.Content, -1))
		if opens != closes {
			groups.add(CategoryBrokenTable, SeverityError, "unbalanced table markup", n.ID)
		}
	}
}

func (v *Validator) validateSections(b *tree.Builder, p *profile.Profile, groups *issueSet) {
	for _, s := range p.Sections {
		if len(b.Children(s.ID)) == 0 {
			groups.add(CategoryEmptySection, SeverityWarning, "expected section has no provisions", s.ID)
		}
	}
}

// issueSet groups findings by category, severity and message, counting occurrences
// and keeping the first few example ids.
type issueSet struct {
	maxExamples int
	order       []string
	byKey       map[string]*ValidationIssue
}

func newIssueSet(maxExamples int) *issueSet {
	return &issueSet{maxExamples: maxExamples, byKey: make(map[string]*ValidationIssue)}
}

func (s *issueSet) add(category, severity, message, example string) {
	key := category + "\x00" + severity + "\x00" + message
	issue, ok := s.byKey[key]
	if !ok {
		issue = &ValidationIssue{Category: category, Severity: severity, Message: message}
		s.byKey[key] = issue
		s.order = append(s.order, key)
	}
	issue.Count++
	if example != "" && len(issue.Examples) < s.maxExamples {
		issue.Examples = append(issue.Examples, example)
	}
}

func (s *issueSet) issues() []ValidationIssue {
	out := make([]ValidationIssue, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return severityRank(out[i].Severity) < severityRank(out[j].Severity)
	})
	return out
}

func hasSeverity(issues []ValidationIssue, severity string) bool {
	for _, issue := range issues {
		if issue.Severity == severity {
			return true
		}
	}
	return false
}

func severityRank(severity string) int {
	switch severity {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// ToJSON serializes the validation result to JSON.
func (r *ValidationResult) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// String returns a human-readable validation report.
func (r *ValidationResult) String() string {
	var sb strings.Builder

	sb.WriteString("Validation Report\n")
	sb.WriteString("=================\n")
	sb.WriteString(fmt.Sprintf("Part: %d\n", r.Part))
	if r.ProfileName != "" {
		sb.WriteString(fmt.Sprintf("Profile: %s\n", r.ProfileName))
	}
	sb.WriteString("\n")

	if r.Structure != nil {
		sb.WriteString("Structure:\n")
		sb.WriteString(fmt.Sprintf("  Nodes: %d\n", r.Structure.TotalNodes))
		sb.WriteString(fmt.Sprintf("  Articles with content: %d/%d (%.1f%%)\n",
			r.Structure.ArticlesWithContent, r.Structure.Articles, r.Structure.ContentRate*100))
		sb.WriteString(fmt.Sprintf("  Clauses: %d\n", r.Structure.Clauses))
		sb.WriteString(fmt.Sprintf("  Orphans: %d\n", r.Structure.Orphans))
		sb.WriteString("\n")
	}

	if r.References != nil {
		sb.WriteString("Reference Resolution:\n")
		sb.WriteString(fmt.Sprintf("  Total references: %d\n", r.References.TotalReferences))
		sb.WriteString(fmt.Sprintf("  Resolved: %d (%.1f%%)\n",
			r.References.Resolved+r.References.SelfRefs, r.References.ResolutionRate*100))
		sb.WriteString(fmt.Sprintf("  Not found: %d\n", r.References.NotFound))
		sb.WriteString(fmt.Sprintf("  Tables: %d\n", r.References.External))
		sb.WriteString("\n")
	}

	if len(r.Issues) > 0 {
		sb.WriteString("Issues:\n")
		for _, issue := range r.Issues {
			sb.WriteString(fmt.Sprintf("  [%s] %s: %s (%d)\n", issue.Severity, issue.Category, issue.Message, issue.Count))
		}
		sb.WriteString("\n")
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("  [%s] %s: %s (%d)\n", w.Severity, w.Category, w.Message, w.Count))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Status: %s\n", r.Status))
	return sb.String()
}
