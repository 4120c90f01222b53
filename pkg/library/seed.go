package library

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/coolbeans/codetree/pkg/profile"
)

// SeedFromDirectory scans a directory for page sources (.txt and .jsonl) and adds each
// one under an ID derived from its file name. Unchanged sources are skipped.
func SeedFromDirectory(lib *Library, dirPath string, p *profile.Profile) (*SeedReport, error) {
	var matches []string
	for _, pattern := range []string{"*.txt", "*.jsonl"} {
		found, err := filepath.Glob(filepath.Join(dirPath, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to glob directory: %w", err)
		}
		matches = append(matches, found...)
	}
	sort.Strings(matches)

	seedReport := &SeedReport{
		TotalAttempted: len(matches),
		Entries:        make([]SeedEntryState, 0, len(matches)),
	}

	for _, sourcePath := range matches {
		documentID := DeriveDocumentID(sourcePath)

		sourceText, err := os.ReadFile(sourcePath)
		if err != nil {
			seedReport.Failed++
			seedReport.Entries = append(seedReport.Entries, SeedEntryState{
				ID:     documentID,
				Status: "failed",
				Error:  err.Error(),
			})
			continue
		}

		if existing := lib.GetDocument(documentID); existing != nil && existing.Status == StatusReady &&
			existing.ContentHash == hashBytes(sourceText) {
			seedReport.Skipped++
			seedReport.Entries = append(seedReport.Entries, SeedEntryState{
				ID:     documentID,
				Status: "skipped",
			})
			continue
		}

		_, err = lib.AddDocument(documentID, sourceText, AddOptions{
			Name:       documentID,
			Format:     DetectFormat(sourcePath),
			Profile:    p,
			SourceInfo: sourcePath,
		})
		if err != nil {
			seedReport.Failed++
			seedReport.Entries = append(seedReport.Entries, SeedEntryState{
				ID:     documentID,
				Status: "failed",
				Error:  err.Error(),
			})
			continue
		}

		seedReport.Succeeded++
		seedReport.Entries = append(seedReport.Entries, SeedEntryState{
			ID:     documentID,
			Status: "ingested",
		})
	}

	return seedReport, nil
}
