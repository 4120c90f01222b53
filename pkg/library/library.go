// Package library keeps a directory of parsed parts: a JSON manifest plus, per document,
// the page source, the serialized tree and its parse statistics.
package library

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/profile"
	"github.com/coolbeans/codetree/pkg/tree"
)

const (
	manifestFileName = "library.json"
	documentsDir     = "parts"
	sourceFileName   = "source.txt"
	treeFileName     = "tree.json"
	metadataFileName = "metadata.json"
	manifestVersion  = "1.0.0"
)

// Library manages a persistent collection of parsed documents.
type Library struct {
	mu       sync.RWMutex
	path     string
	manifest *LibraryManifest
}

// Init creates a new library at the given path.
func Init(libraryPath string) (*Library, error) {
	documentsPath := filepath.Join(libraryPath, documentsDir)
	if err := os.MkdirAll(documentsPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}

	now := time.Now().UTC()
	lib := &Library{
		path: libraryPath,
		manifest: &LibraryManifest{
			Version:   manifestVersion,
			CreatedAt: now,
			UpdatedAt: now,
			Documents: []*DocumentEntry{},
		},
	}

	if err := lib.saveManifest(); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}
	return lib, nil
}

// Open loads an existing library from disk.
func Open(libraryPath string) (*Library, error) {
	manifestPath := filepath.Join(libraryPath, manifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read library manifest: %w", err)
	}

	var manifest LibraryManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse library manifest: %w", err)
	}

	return &Library{
		path:     libraryPath,
		manifest: &manifest,
	}, nil
}

// OpenOrInit opens the library at libraryPath, creating it when no manifest exists.
func OpenOrInit(libraryPath string) (*Library, error) {
	if _, err := os.Stat(filepath.Join(libraryPath, manifestFileName)); os.IsNotExist(err) {
		return Init(libraryPath)
	}
	return Open(libraryPath)
}

// AddDocument parses source text and stores the tree in the library. A document whose
// source is unchanged is returned as is unless opts.Force is set.
func (lib *Library) AddDocument(documentID string, sourceText []byte, opts AddOptions, sinks ...diag.Sink) (*DocumentEntry, error) {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	if documentID == "" {
		return nil, fmt.Errorf("document ID is required")
	}

	contentHash := hashBytes(sourceText)
	existing := lib.findDocumentUnsafe(documentID)
	if existing != nil && !opts.Force && existing.Status == StatusReady && existing.ContentHash == contentHash {
		return existing, nil
	}

	p := opts.Profile
	if p == nil {
		p = profile.Default()
	}
	format := opts.Format
	if format == "" {
		format = FormatText
	}

	now := time.Now().UTC()
	entry := &DocumentEntry{
		ID:          documentID,
		Name:        opts.Name,
		Part:        p.Part.Number,
		ProfileID:   p.ProfileID,
		Format:      format,
		Tags:        opts.Tags,
		IngestedAt:  now,
		UpdatedAt:   now,
		SourceInfo:  opts.SourceInfo,
		StorageHash: hashBytes([]byte(documentID)),
		ContentHash: contentHash,
	}
	if existing != nil {
		entry.IngestedAt = existing.IngestedAt
	}

	result, err := IngestFromText(sourceText, p, format, sinks...)
	if err != nil {
		entry.Status = StatusFailed
		entry.Error = err.Error()
		lib.upsertEntry(entry)
		if saveErr := lib.saveManifest(); saveErr != nil {
			return nil, fmt.Errorf("ingestion failed (%v) and failed to save manifest: %w", err, saveErr)
		}
		return nil, fmt.Errorf("ingestion failed for %s: %w", documentID, err)
	}

	if err := lib.writeDocumentFile(entry.StorageHash, sourceFileName, sourceText); err != nil {
		return nil, fmt.Errorf("failed to save source: %w", err)
	}

	treeData, err := SerializeTree(result.Tree)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize tree: %w", err)
	}
	if err := lib.writeDocumentFile(entry.StorageHash, treeFileName, treeData); err != nil {
		return nil, fmt.Errorf("failed to save tree: %w", err)
	}

	metadataBytes, err := json.MarshalIndent(result.Stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := lib.writeDocumentFile(entry.StorageHash, metadataFileName, metadataBytes); err != nil {
		return nil, fmt.Errorf("failed to save metadata: %w", err)
	}

	entry.Status = StatusReady
	entry.Stats = result.Stats
	lib.upsertEntry(entry)

	if err := lib.saveManifest(); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}
	return entry, nil
}

// RemoveDocument deletes a document and its associated files from the library.
func (lib *Library) RemoveDocument(documentID string) error {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	entry := lib.findDocumentUnsafe(documentID)
	if entry == nil {
		return fmt.Errorf("document not found: %s", documentID)
	}

	if err := os.RemoveAll(lib.documentDir(entry.StorageHash)); err != nil {
		return fmt.Errorf("failed to remove document files: %w", err)
	}

	lib.removeEntry(documentID)

	if err := lib.saveManifest(); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

// GetDocument returns the entry for a specific document.
func (lib *Library) GetDocument(documentID string) *DocumentEntry {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	return lib.findDocumentUnsafe(documentID)
}

// ListDocuments returns all document entries, sorted by part then ID.
func (lib *Library) ListDocuments() []*DocumentEntry {
	lib.mu.RLock()
	defer lib.mu.RUnlock()

	result := make([]*DocumentEntry, len(lib.manifest.Documents))
	copy(result, lib.manifest.Documents)

	sort.Slice(result, func(i, j int) bool {
		if result[i].Part != result[j].Part {
			return result[i].Part < result[j].Part
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// LoadTree loads and deserializes a single document's tree.
func (lib *Library) LoadTree(documentID string) (*tree.Builder, error) {
	lib.mu.RLock()
	defer lib.mu.RUnlock()

	entry := lib.findDocumentUnsafe(documentID)
	if entry == nil {
		return nil, fmt.Errorf("document not found: %s", documentID)
	}
	if entry.Status != StatusReady {
		return nil, fmt.Errorf("document %s is not ready (status: %s)", documentID, entry.Status)
	}

	data, err := lib.readDocumentFile(entry.StorageHash, treeFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree for %s: %w", documentID, err)
	}
	return DeserializeTree(data)
}

// LoadSourceText returns the original page source for a document.
func (lib *Library) LoadSourceText(documentID string) ([]byte, error) {
	lib.mu.RLock()
	defer lib.mu.RUnlock()

	entry := lib.findDocumentUnsafe(documentID)
	if entry == nil {
		return nil, fmt.Errorf("document not found: %s", documentID)
	}
	return lib.readDocumentFile(entry.StorageHash, sourceFileName)
}

// Stats returns aggregate statistics across all documents.
func (lib *Library) Stats() *LibraryStats {
	lib.mu.RLock()
	defer lib.mu.RUnlock()

	libraryStats := &LibraryStats{
		ByType:   make(map[string]int),
		ByStatus: make(map[string]int),
	}

	for _, entry := range lib.manifest.Documents {
		libraryStats.TotalDocuments++
		libraryStats.ByStatus[string(entry.Status)]++

		if entry.Stats != nil {
			libraryStats.TotalNodes += entry.Stats.Nodes
			libraryStats.TotalReferences += entry.Stats.References
			for t, n := range entry.Stats.ByType {
				libraryStats.ByType[t] += n
			}
		}
	}
	return libraryStats
}

// Path returns the library's root directory.
func (lib *Library) Path() string {
	return lib.path
}

func (lib *Library) findDocumentUnsafe(documentID string) *DocumentEntry {
	for _, entry := range lib.manifest.Documents {
		if entry.ID == documentID {
			return entry
		}
	}
	return nil
}

func (lib *Library) upsertEntry(entry *DocumentEntry) {
	lib.manifest.UpdatedAt = time.Now().UTC()
	for i, existing := range lib.manifest.Documents {
		if existing.ID == entry.ID {
			lib.manifest.Documents[i] = entry
			return
		}
	}
	lib.manifest.Documents = append(lib.manifest.Documents, entry)
}

func (lib *Library) removeEntry(documentID string) {
	filtered := make([]*DocumentEntry, 0, len(lib.manifest.Documents))
	for _, entry := range lib.manifest.Documents {
		if entry.ID != documentID {
			filtered = append(filtered, entry)
		}
	}
	lib.manifest.Documents = filtered
	lib.manifest.UpdatedAt = time.Now().UTC()
}

func (lib *Library) saveManifest() error {
	manifestPath := filepath.Join(lib.path, manifestFileName)
	data, err := json.MarshalIndent(lib.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return os.WriteFile(manifestPath, data, 0644)
}

func (lib *Library) documentDir(storageHash string) string {
	return filepath.Join(lib.path, documentsDir, storageHash)
}

func (lib *Library) writeDocumentFile(storageHash string, fileName string, data []byte) error {
	dirPath := lib.documentDir(storageHash)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dirPath, fileName), data, 0644)
}

func (lib *Library) readDocumentFile(storageHash string, fileName string) ([]byte, error) {
	return os.ReadFile(filepath.Join(lib.documentDir(storageHash), fileName))
}

func hashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
