package library

import (
	"time"

	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/profile"
	"github.com/coolbeans/codetree/pkg/tree"
)

// DocumentStatus represents the state of a document in the library.
type DocumentStatus string

const (
	// StatusReady indicates the document has been parsed and its tree is available.
	StatusReady DocumentStatus = "ready"

	// StatusFailed indicates parsing failed for this document.
	StatusFailed DocumentStatus = "failed"
)

// Format names a page source format.
type Format string

const (
	// FormatText is pdftotext output with pages separated by form feeds.
	FormatText Format = "text"
	// FormatJSONL is one {"page": n, "line": "..."} record per line.
	FormatJSONL Format = "jsonl"
)

// LibraryManifest is the top-level index of all documents in the library.
type LibraryManifest struct {
	Version   string           `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Documents []*DocumentEntry `json:"documents"`
}

// DocumentEntry represents a single parsed part stored in the library.
type DocumentEntry struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Part        int            `json:"part"`
	ProfileID   string         `json:"profile_id"`
	Format      Format         `json:"format"`
	Tags        []string       `json:"tags,omitempty"`
	Status      DocumentStatus `json:"status"`
	IngestedAt  time.Time      `json:"ingested_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	SourceInfo  string         `json:"source_info,omitempty"`
	Stats       *DocumentStats `json:"stats,omitempty"`
	StorageHash string         `json:"storage_hash"`
	ContentHash string         `json:"content_hash"`
	Error       string         `json:"error,omitempty"`
}

// DocumentStats holds parse statistics for a single document.
type DocumentStats struct {
	Pages       int            `json:"pages"`
	Nodes       int            `json:"nodes"`
	ByType      map[string]int `json:"by_type"`
	References  int            `json:"references"`
	Diagnostics map[string]int `json:"diagnostics,omitempty"`
	SourceBytes int            `json:"source_bytes"`
}

// AddOptions configures how a document is added to the library.
type AddOptions struct {
	Name       string
	Format     Format
	Profile    *profile.Profile // nil uses the embedded default profile
	Tags       []string
	SourceInfo string
	Force      bool // re-parse even when the source is unchanged
}

// LibraryStats aggregates statistics across all documents in the library.
type LibraryStats struct {
	TotalDocuments  int            `json:"total_documents"`
	TotalNodes      int            `json:"total_nodes"`
	TotalReferences int            `json:"total_references"`
	ByType          map[string]int `json:"by_type"`
	ByStatus        map[string]int `json:"by_status"`
}

// SeedReport summarizes the results of a directory seeding operation.
type SeedReport struct {
	TotalAttempted int              `json:"total_attempted"`
	Succeeded      int              `json:"succeeded"`
	Skipped        int              `json:"skipped"`
	Failed         int              `json:"failed"`
	Entries        []SeedEntryState `json:"entries"`
}

// SeedEntryState records the outcome of seeding a single document.
type SeedEntryState struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "ingested", "skipped", "failed"
	Error  string `json:"error,omitempty"`
}

// IngestResult holds the output of a single document parse.
type IngestResult struct {
	Tree        *tree.Builder
	Diagnostics []diag.Diagnostic
	Stats       *DocumentStats
}
