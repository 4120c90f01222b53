package grammar

import (
	"regexp"
	"strings"
)

// Rule is one row of the identifier decision table. The same rows drive heading
// classification and parent resolution, so both always agree on what an id means.
type Rule struct {
	Type NodeType

	// heading matches a full heading line; group 1 is the id stem, group 2 the title.
	// Nil for types that never appear as an inline numbered heading.
	heading *regexp.Regexp

	// idSuffix is appended to the heading stem to form the id (article_0a).
	idSuffix string

	// id matches a complete identifier; group 1, when present, is the parent id.
	id *regexp.Regexp
}

// rules is ordered most specific first. A row must never shadow a later one on
// identifiers meant for it, and no identifier is matched by two rows.
var rules = []Rule{
	{
		Type:    TypeSubArticle,
		heading: regexp.MustCompile(`^(\d+\.\d+\.\d+[A-Z]\.\d+)\.\s+([A-Z].*)$`),
		id:      regexp.MustCompile(`^(\d+\.\d+\.\d+[A-Z])\.\d+$`),
	},
	{
		Type:     TypeArticle0A,
		heading:  regexp.MustCompile(`^(\d+\.\d+\.\d+)\.\s*0A\.\s+([A-Z].*)$`),
		idSuffix: ".0A",
		id:       regexp.MustCompile(`^(\d+\.\d+\.\d+)\.0A$`),
	},
	{
		Type:    TypeArticleSuffix,
		heading: regexp.MustCompile(`^(\d+\.\d+\.\d+\.[1-9]\d*[A-Z])\.\s+([A-Z].*)$`),
		id:      regexp.MustCompile(`^(\d+\.\d+\.\d+)\.[1-9]\d*[A-Z]$`),
	},
	{
		Type:    TypeAltSubsection,
		heading: regexp.MustCompile(`^(\d+\.\d+\.\d+[A-Z])\.\s+([A-Z].*)$`),
		id:      regexp.MustCompile(`^(\d+\.\d+)\.\d+[A-Z]$`),
	},
	{
		Type:    TypeArticle,
		heading: regexp.MustCompile(`^(\d+\.\d+\.\d+\.\d+)\.\s+([A-Z].*)$`),
		id:      regexp.MustCompile(`^(\d+\.\d+\.\d+)\.\d+$`),
	},
	{
		Type:    TypeSubsection,
		heading: regexp.MustCompile(`^(\d+\.\d+\.\d+)\.\s+([A-Z].*)$`),
		id:      regexp.MustCompile(`^(\d+\.\d+)\.\d+$`),
	},
	{
		Type: TypeSection,
		id:   regexp.MustCompile(`^(\d+)\.\d+$`),
	},
	{
		Type: TypePart,
		id:   regexp.MustCompile(`^\d+$`),
	},
	{
		Type: TypeClause,
		id:   regexp.MustCompile(`^(.+)\.\((\d+)\)$`),
	},
}

var rulesByType = func() map[NodeType]*Rule {
	m := make(map[NodeType]*Rule, len(rules))
	for i := range rules {
		m[rules[i].Type] = &rules[i]
	}
	return m
}()

// HeadingTypes returns the heading types in classification priority order.
func HeadingTypes() []NodeType {
	var types []NodeType
	for _, r := range rules {
		if r.heading != nil {
			types = append(types, r.Type)
		}
	}
	return types
}

// ClassifyID returns the node type an identifier denotes under the decision table.
func ClassifyID(id string) (NodeType, bool) {
	id = strings.TrimSpace(id)
	for _, r := range rules {
		if r.id.MatchString(id) {
			return r.Type, true
		}
	}
	return "", false
}

// ParentID decomposes id according to the decision table row for t. It routes the
// irregular siblings to their true parent: an alternative subsection "9.5.3A" belongs
// to section "9.5", an article suffix "9.5.1.1A" to subsection "9.5.1". Parts have no
// parent; ok is false when id does not fit the row for t.
func ParentID(t NodeType, id string) (parent string, ok bool) {
	r, found := rulesByType[t]
	if !found {
		return "", false
	}
	m := r.id.FindStringSubmatch(id)
	if m == nil || len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// ClauseID builds the identifier of a clause numbered marker under the heading owner.
func ClauseID(owner, marker string) string {
	return owner + ".(" + marker + ")"
}

// ClauseMarker returns the numeric marker of a clause id, e.g. "2" for "9.5.3.1.(2)".
func ClauseMarker(id string) (string, bool) {
	m := rulesByType[TypeClause].id.FindStringSubmatch(id)
	if m == nil {
		return "", false
	}
	return m[2], true
}

// PartOf returns the leading part number of an identifier ("9" for "9.5.3A.1").
func PartOf(id string) string {
	if i := strings.IndexByte(id, '.'); i >= 0 {
		return id[:i]
	}
	return id
}
