package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/coolbeans/codetree/pkg/extract"
	"github.com/coolbeans/codetree/pkg/tree"
)

// DocumentInfo describes one stored parse of a part.
type DocumentInfo struct {
	Part       int       `json:"part"`
	RunID      string    `json:"run_id"`
	ProfileID  string    `json:"profile_id,omitempty"`
	Source     string    `json:"source,omitempty"`
	SourceHash string    `json:"source_hash,omitempty"`
	NodeCount  int       `json:"node_count"`
	ParsedAt   time.Time `json:"parsed_at"`
}

// HashSource returns the hex BLAKE3 digest of source input.
func HashSource(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewDocumentInfo describes a fresh parse of source data with a new run id.
func NewDocumentInfo(part int, profileID, source string, data []byte) DocumentInfo {
	return DocumentInfo{
		Part:       part,
		RunID:      uuid.NewString(),
		ProfileID:  profileID,
		Source:     source,
		SourceHash: HashSource(data),
		ParsedAt:   time.Now().UTC(),
	}
}

// SaveTree replaces everything stored for the builder's part with the tree in b, in one
// transaction. Cross-references are resolved against b before they are written.
func (s *Store) SaveTree(ctx context.Context, info DocumentInfo, b *tree.Builder) error {
	info.Part = b.Part()
	info.NodeCount = b.Len()
	if info.RunID == "" {
		info.RunID = uuid.NewString()
	}
	if info.ParsedAt.IsZero() {
		info.ParsedAt = time.Now().UTC()
	}

	return s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.deletePart(ctx, info.Part); err != nil {
			return err
		}
		if _, err := tx.q.ExecContext(ctx, `
			INSERT INTO documents (part, run_id, profile_id, source, source_hash, node_count, parsed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			info.Part, info.RunID, info.ProfileID, info.Source, info.SourceHash, info.NodeCount,
			info.ParsedAt.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}

		for i, n := range b.Nodes() {
			if err := tx.insertNode(ctx, n, i); err != nil {
				return err
			}
		}

		for _, edge := range extract.NewReferenceLookup(b).All() {
			if err := tx.insertRef(ctx, info.Part, edge); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertNode(ctx context.Context, n *tree.Node, ord int) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO nodes (part, id, type, parent_id, title, content, page, seq, ord, fallback, orphan)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.Part, n.ID, string(n.Type), n.ParentID, n.Title, n.Content, n.Page, n.Seq, ord, n.Fallback, n.Orphan)
	if err != nil {
		return fmt.Errorf("insert node %s: %w", n.ID, err)
	}

	if n.Title == "" && n.Content == "" {
		return nil
	}
	_, err = s.q.ExecContext(ctx, `INSERT INTO search_index (part, node_id, title, content) VALUES (?, ?, ?, ?)`,
		n.Part, n.ID, n.Title, n.Content)
	if err != nil {
		return fmt.Errorf("index node %s: %w", n.ID, err)
	}
	return nil
}

func (s *Store) insertRef(ctx context.Context, part int, edge extract.Edge) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO refs (part, source_id, kind, target, target_id, status, ord)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COUNT(*) FROM refs WHERE part = ? AND source_id = ?))`,
		part, edge.Source, string(edge.Kind), edge.Target, edge.NodeID, string(edge.Status), part, edge.Source)
	if err != nil {
		return fmt.Errorf("insert ref %s -> %s: %w", edge.Source, edge.Target, err)
	}
	return nil
}

func (s *Store) deletePart(ctx context.Context, part int) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM search_index WHERE part = ?`, part); err != nil {
		return fmt.Errorf("clear search index: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM refs WHERE part = ?`, part); err != nil {
		return fmt.Errorf("clear refs: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM nodes WHERE part = ?`, part); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM documents WHERE part = ?`, part); err != nil {
		return fmt.Errorf("clear document: %w", err)
	}
	return nil
}

// DeleteDocument removes a part and everything stored under it.
func (s *Store) DeleteDocument(ctx context.Context, part int) error {
	if _, err := s.Document(ctx, part); err != nil {
		return err
	}
	return s.WithTransaction(ctx, func(tx *Store) error {
		return tx.deletePart(ctx, part)
	})
}

// Document returns the stored document for part.
func (s *Store) Document(ctx context.Context, part int) (*DocumentInfo, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT part, run_id, profile_id, source, source_hash, node_count, parsed_at
		FROM documents WHERE part = ?`, part)
	info, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document part %d: %w", part, ErrNotFound)
	}
	return info, err
}

// Documents lists every stored document ordered by part.
func (s *Store) Documents(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT part, run_id, profile_id, source, source_hash, node_count, parsed_at
		FROM documents ORDER BY part`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentInfo
	for rows.Next() {
		info, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *info)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*DocumentInfo, error) {
	var info DocumentInfo
	var parsedAt string
	if err := row.Scan(&info.Part, &info.RunID, &info.ProfileID, &info.Source, &info.SourceHash,
		&info.NodeCount, &parsedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, parsedAt)
	if err != nil {
		return nil, fmt.Errorf("parse parsed_at %q: %w", parsedAt, err)
	}
	info.ParsedAt = t
	return &info, nil
}
