package library

import (
	"encoding/json"
	"fmt"

	"github.com/coolbeans/codetree/pkg/extract"
	"github.com/coolbeans/codetree/pkg/tree"
)

// serializedTree is the on-disk form of a part.
type serializedTree struct {
	Part  int           `json:"part"`
	Nodes []tree.Record `json:"nodes"`
}

// SerializeTree converts every node of a tree to a JSON byte slice.
func SerializeTree(b *tree.Builder) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("tree is nil")
	}
	return json.MarshalIndent(serializedTree{Part: b.Part(), Nodes: b.Records()}, "", "  ")
}

// DeserializeTree rebuilds a tree from a JSON byte slice. The result extracts references
// for any node added to it later.
func DeserializeTree(data []byte) (*tree.Builder, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var serialized serializedTree
	if err := json.Unmarshal(data, &serialized); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tree: %w", err)
	}
	if serialized.Part <= 0 {
		return nil, fmt.Errorf("tree has no part number")
	}

	return tree.Load(serialized.Part, serialized.Nodes, tree.WithReferences(extract.NewReferenceExtractor())), nil
}
