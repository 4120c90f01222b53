package library

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/extract"
	"github.com/coolbeans/codetree/pkg/pages"
	"github.com/coolbeans/codetree/pkg/profile"
	"github.com/coolbeans/codetree/pkg/tree"
)

// IngestFromText runs the parse pipeline on source text and returns the tree with its
// diagnostics and statistics. A nil profile uses the embedded default. Extra sinks receive
// every diagnostic as it is reported.
func IngestFromText(sourceText []byte, p *profile.Profile, format Format, sinks ...diag.Sink) (*IngestResult, error) {
	if len(sourceText) == 0 {
		return nil, fmt.Errorf("source text is empty")
	}
	if p == nil {
		p = profile.Default()
	}

	doc, err := ReadPages(bytes.NewReader(sourceText), format, p.Pages.First)
	if err != nil {
		return nil, fmt.Errorf("failed to read pages: %w", err)
	}

	opts, err := p.DriverOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to configure profile %s: %w", p.ProfileID, err)
	}

	collector := diag.NewCollector()
	sink := diag.Tee(append([]diag.Sink{collector}, sinks...)...)

	builder := tree.New(p.Part.Number,
		tree.WithReferences(extract.NewReferenceExtractor()),
		tree.WithDiagnostics(sink))
	p.Seed(builder)

	opts = append(opts, extract.WithDriverDiagnostics(sink))
	extract.NewDriver(builder, opts...).Parse(doc)

	return &IngestResult{
		Tree:        builder,
		Diagnostics: collector.All(),
		Stats:       buildStats(builder, collector, len(doc), len(sourceText)),
	}, nil
}

// IngestFromFile reads a page source from disk and parses it, choosing the format from
// the file extension.
func IngestFromFile(filePath string, p *profile.Profile, sinks ...diag.Sink) (*IngestResult, error) {
	sourceText, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return IngestFromText(sourceText, p, DetectFormat(filePath), sinks...)
}

// ReadPages decodes a page source in the given format.
func ReadPages(r io.Reader, format Format, firstPage int) ([]pages.Page, error) {
	switch format {
	case FormatJSONL:
		return pages.ReadJSONL(r)
	case FormatText, "":
		return pages.ReadText(r, firstPage)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// DetectFormat picks the page source format from a file name.
func DetectFormat(filePath string) Format {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatText
	}
}

// DeriveDocumentID creates a document ID from a file path by taking the base name
// without extension and lowercasing it.
func DeriveDocumentID(filePath string) string {
	base := filepath.Base(filePath)
	ext := filepath.Ext(base)
	return strings.ToLower(strings.TrimSuffix(base, ext))
}

func buildStats(b *tree.Builder, collector *diag.Collector, pageCount, sourceBytes int) *DocumentStats {
	stats := &DocumentStats{
		Pages:       pageCount,
		Nodes:       b.Len(),
		ByType:      make(map[string]int),
		Diagnostics: make(map[string]int),
		SourceBytes: sourceBytes,
	}
	for t, n := range b.Stats() {
		stats.ByType[string(t)] = n
	}
	for _, n := range b.Nodes() {
		stats.References += n.Refs.Len()
	}
	for _, kind := range collector.Kinds() {
		stats.Diagnostics[string(kind)] = collector.Count(kind)
	}
	return stats
}
