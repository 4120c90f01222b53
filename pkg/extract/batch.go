package extract

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/pages"
	"github.com/coolbeans/codetree/pkg/tree"
)

// Job is one independent document to parse.
type Job struct {
	Name  string
	Part  int
	Pages []pages.Page

	// Seed, when set, adds nodes known ahead of parsing (part and sections).
	Seed    func(*tree.Builder)
	Options []DriverOption
}

// BatchResult is the outcome of one Job.
type BatchResult struct {
	Name        string
	Tree        *tree.Builder
	Diagnostics []diag.Diagnostic
}

// Batch parses jobs concurrently, at most limit at a time (limit <= 0 uses the CPU
// count). Each job gets its own builder and driver; results keep the order of jobs.
func Batch(ctx context.Context, jobs []Job, limit int) ([]BatchResult, error) {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	results := make([]BatchResult, len(jobs))
	refs := NewReferenceExtractor()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = parseJob(job, refs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func parseJob(job Job, refs *ReferenceExtractor) BatchResult {
	collector := diag.NewCollector()
	b := tree.New(job.Part, tree.WithReferences(refs), tree.WithDiagnostics(collector))
	if job.Seed != nil {
		job.Seed(b)
	}

	opts := append([]DriverOption{WithDriverDiagnostics(collector)}, job.Options...)
	NewDriver(b, opts...).Parse(job.Pages)

	return BatchResult{
		Name:        job.Name,
		Tree:        b,
		Diagnostics: collector.All(),
	}
}
