package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/coolbeans/codetree/pkg/extract"
	"github.com/coolbeans/codetree/pkg/grammar"
	"github.com/coolbeans/codetree/pkg/tree"
)

const nodeColumns = `part, id, type, parent_id, title, content, page, seq, fallback, orphan`

// Node finds a node by id. When the same id is stored under several parts (a running
// header parsed into the wrong part), the part named by the id's leading number wins.
func (s *Store) Node(ctx context.Context, id string) (*tree.Node, error) {
	part, _ := strconv.Atoi(grammar.PartOf(id))
	row := s.q.QueryRowContext(ctx, `SELECT `+nodeColumns+`
		FROM nodes WHERE id = ? ORDER BY (part = ?) DESC, part LIMIT 1`, id, part)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find node %s: %w", id, err)
	}
	if err := s.attachChildren(ctx, n); err != nil {
		return nil, err
	}
	if err := s.attachRefs(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Children returns the direct children of a node in sequence order.
func (s *Store) Children(ctx context.Context, id string) ([]*tree.Node, error) {
	parent, err := s.Node(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+nodeColumns+`
		FROM nodes WHERE part = ? AND parent_id = ? ORDER BY seq`, parent.Part, id)
	if err != nil {
		return nil, fmt.Errorf("find children of %s: %w", id, err)
	}
	children, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}
	for _, n := range children {
		if err := s.attachRefs(ctx, n); err != nil {
			return nil, err
		}
	}
	return children, nil
}

// LoadTree rebuilds the stored tree of a part. Children lists follow sequence order and
// references come back in the order they were extracted.
func (s *Store) LoadTree(ctx context.Context, part int, opts ...tree.Option) (*tree.Builder, error) {
	if _, err := s.Document(ctx, part); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE part = ? ORDER BY ord`, part)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*tree.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	childRows, err := s.q.QueryContext(ctx, `SELECT parent_id, id FROM nodes
		WHERE part = ? AND parent_id != '' ORDER BY parent_id, seq`, part)
	if err != nil {
		return nil, fmt.Errorf("load children: %w", err)
	}
	defer childRows.Close()
	for childRows.Next() {
		var parentID, id string
		if err := childRows.Scan(&parentID, &id); err != nil {
			return nil, err
		}
		if p, ok := byID[parentID]; ok {
			p.Children = append(p.Children, id)
		}
	}
	if err := childRows.Err(); err != nil {
		return nil, err
	}

	refRows, err := s.q.QueryContext(ctx, `SELECT source_id, kind, target FROM refs
		WHERE part = ? ORDER BY source_id, ord`, part)
	if err != nil {
		return nil, fmt.Errorf("load refs: %w", err)
	}
	defer refRows.Close()
	for refRows.Next() {
		var source, kind, target string
		if err := refRows.Scan(&source, &kind, &target); err != nil {
			return nil, err
		}
		if n, ok := byID[source]; ok {
			n.Refs.Add(tree.RefKind(kind), target)
		}
	}
	if err := refRows.Err(); err != nil {
		return nil, err
	}

	records := make([]tree.Record, 0, len(nodes))
	for _, n := range nodes {
		records = append(records, n.Record())
	}
	return tree.Load(part, records, opts...), nil
}

// RefsFrom returns the references made by a node.
func (s *Store) RefsFrom(ctx context.Context, id string) ([]extract.Edge, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT source_id, kind, target, target_id, status
		FROM refs WHERE source_id = ? ORDER BY part, ord`, id)
	if err != nil {
		return nil, fmt.Errorf("refs from %s: %w", id, err)
	}
	return scanEdges(rows)
}

// RefsTo returns the references that point at a node. Besides edges resolved when the
// citing part was saved, it finds citations from other parts by their written target.
func (s *Store) RefsTo(ctx context.Context, id string) ([]extract.Edge, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT source_id, kind, target, target_id, status
		FROM refs
		WHERE target_id = ? OR (target_id = '' AND kind NOT IN (?, ?) AND target = ?)
		ORDER BY part, source_id, ord`,
		id, string(tree.RefClause), string(tree.RefTable), id)
	if err != nil {
		return nil, fmt.Errorf("refs to %s: %w", id, err)
	}
	return scanEdges(rows)
}

func (s *Store) attachChildren(ctx context.Context, n *tree.Node) error {
	rows, err := s.q.QueryContext(ctx, `SELECT id FROM nodes WHERE part = ? AND parent_id = ? ORDER BY seq`,
		n.Part, n.ID)
	if err != nil {
		return fmt.Errorf("children of %s: %w", n.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		n.Children = append(n.Children, id)
	}
	return rows.Err()
}

func (s *Store) attachRefs(ctx context.Context, n *tree.Node) error {
	rows, err := s.q.QueryContext(ctx, `SELECT kind, target FROM refs WHERE part = ? AND source_id = ? ORDER BY ord`,
		n.Part, n.ID)
	if err != nil {
		return fmt.Errorf("refs of %s: %w", n.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, target string
		if err := rows.Scan(&kind, &target); err != nil {
			return err
		}
		n.Refs.Add(tree.RefKind(kind), target)
	}
	return rows.Err()
}

func scanNode(row scanner) (*tree.Node, error) {
	var n tree.Node
	var typ string
	if err := row.Scan(&n.Part, &n.ID, &typ, &n.ParentID, &n.Title, &n.Content, &n.Page, &n.Seq,
		&n.Fallback, &n.Orphan); err != nil {
		return nil, err
	}
	n.Type = grammar.NodeType(typ)
	n.Children = []string{}
	n.Refs = tree.EmptyReferences()
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*tree.Node, error) {
	defer rows.Close()
	var result []*tree.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func scanEdges(rows *sql.Rows) ([]extract.Edge, error) {
	defer rows.Close()
	var edges []extract.Edge
	for rows.Next() {
		var e extract.Edge
		var kind, status string
		if err := rows.Scan(&e.Source, &kind, &e.Target, &e.NodeID, &status); err != nil {
			return nil, err
		}
		e.Kind = tree.RefKind(kind)
		e.Status = extract.ResolutionStatus(status)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
