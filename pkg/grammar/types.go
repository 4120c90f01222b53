// Package grammar defines the numbering grammar of building-code provisions: node types, their
// structural levels, the ordered identifier decision table and the line classifier built on it.
package grammar

// NodeType identifies the kind of provision a node represents.
type NodeType string

const (
	TypePart          NodeType = "part"
	TypeSection       NodeType = "section"
	TypeSubsection    NodeType = "subsection"
	TypeAltSubsection NodeType = "alt_subsection"
	TypeArticle       NodeType = "article"
	TypeArticleSuffix NodeType = "article_suffix"
	TypeArticle0A     NodeType = "article_0a"
	TypeSubArticle    NodeType = "sub_article"
	TypeClause        NodeType = "clause"
	TypeSubclause     NodeType = "subclause"
	TypeSubsubclause  NodeType = "subsubclause"
)

// LevelUnknown is returned for types outside the hierarchy.
const LevelUnknown = 99

var levels = map[NodeType]int{
	TypePart:          0,
	TypeSection:       1,
	TypeSubsection:    2,
	TypeAltSubsection: 2,
	TypeArticle:       3,
	TypeArticleSuffix: 3,
	TypeArticle0A:     3,
	TypeSubArticle:    3,
	TypeClause:        4,
	TypeSubclause:     5,
	TypeSubsubclause:  6,
}

// Level returns the structural depth of a node type. Alternative subsections share the
// subsection level; every article variant shares the article level.
func (t NodeType) Level() int {
	if l, ok := levels[t]; ok {
		return l
	}
	return LevelUnknown
}

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	_, ok := levels[t]
	return ok
}

// IsHeading reports whether nodes of this type carry a title and take part in the context stack.
func (t NodeType) IsHeading() bool {
	l := t.Level()
	return l <= 3
}

// IsContent reports whether t is a clause-level type.
func (t NodeType) IsContent() bool {
	return t == TypeClause || t == TypeSubclause || t == TypeSubsubclause
}

// IsArticleLevel reports whether t is an article or one of its irregular variants.
func (t NodeType) IsArticleLevel() bool {
	return t.Level() == 3
}

// AllTypes returns every node type ordered by level.
func AllTypes() []NodeType {
	return []NodeType{
		TypePart, TypeSection, TypeSubsection, TypeAltSubsection,
		TypeArticle, TypeArticleSuffix, TypeArticle0A, TypeSubArticle,
		TypeClause, TypeSubclause, TypeSubsubclause,
	}
}
