package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/coolbeans/codetree/pkg/tree"
)

// SearchParams defines a full-text search over titles and content.
type SearchParams struct {
	Query string
	Part  int // 0 searches every part
	Limit int
}

// Search returns nodes whose title or content contains every term of the query, best
// matches first when the FTS5 index is available.
func (s *Store) Search(ctx context.Context, params SearchParams) ([]*tree.Node, error) {
	terms := strings.Fields(params.Query)
	if len(terms) == 0 {
		return nil, nil
	}
	if params.Limit <= 0 {
		params.Limit = 50
	}

	var query string
	var args []any
	if s.fts {
		query = `SELECT n.part, n.id, n.type, n.parent_id, n.title, n.content, n.page, n.seq, n.fallback, n.orphan
			FROM (SELECT part, node_id, rank FROM search_index WHERE search_index MATCH ?) si
			JOIN nodes n ON n.part = si.part AND n.id = si.node_id
			WHERE 1 = 1`
		args = append(args, ftsQuery(terms))
	} else {
		var conditions []string
		for _, term := range terms {
			conditions = append(conditions, `(si.title LIKE ? ESCAPE '\' OR si.content LIKE ? ESCAPE '\')`)
			like := "%" + escapeLike(term) + "%"
			args = append(args, like, like)
		}
		query = `SELECT n.part, n.id, n.type, n.parent_id, n.title, n.content, n.page, n.seq, n.fallback, n.orphan
			FROM search_index si JOIN nodes n ON n.part = si.part AND n.id = si.node_id
			WHERE ` + strings.Join(conditions, " AND ")
	}
	if params.Part > 0 {
		query += ` AND si.part = ?`
		args = append(args, params.Part)
	}
	if s.fts {
		query += ` ORDER BY si.rank`
	} else {
		query += ` ORDER BY n.part, n.ord`
	}
	query += ` LIMIT ?`
	args = append(args, params.Limit)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", params.Query, err)
	}
	return scanNodes(rows)
}

// ftsQuery quotes every term so identifiers like "9.5.3" are matched as phrases rather
// than parsed as FTS5 syntax.
func ftsQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
