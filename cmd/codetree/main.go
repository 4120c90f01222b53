package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/library"
	"github.com/coolbeans/codetree/pkg/profile"
	"github.com/coolbeans/codetree/pkg/store"
	"github.com/coolbeans/codetree/pkg/validate"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "codetree",
		Short: "Building code structure parser",
		Long: `Codetree turns the extracted page text of a building code part into a
tree of parts, sections, subsections, articles, sentences and clauses,
together with the cross-references each provision makes.

It produces:
  - Node records as JSON, ready for indexing
  - A SQLite store with full-text search and reverse reference lookup
  - Validation reports on structural gaps and extraction noise
  - A persistent library of parsed parts`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			return setupLogging(cmd.ErrOrStderr(), level)
		},
	}
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(documentsCmd())
	rootCmd.AddCommand(profilesCmd())
	rootCmd.AddCommand(libraryCmd())
	rootCmd.AddCommand(diffCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <input>",
		Short: "Parse one part into a structure tree",
		Long: `Parse the extracted text of one building code part.

Input is either plain text with pages separated by form feeds, or JSONL
with one {"page": N, "line": "..."} object per line (.jsonl, .ndjson).
Diagnostics are logged at debug level; a validation summary is printed.

Examples:
  codetree parse part9.txt
  codetree parse part9.txt --output part9.json
  codetree parse part9.jsonl --db codetree.db --report part9-report.md
  codetree parse part3.txt --profile profiles/obc-part3.yaml
  codetree parse part9.txt --db codetree.db --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")
			outputPath, _ := cmd.Flags().GetString("output")
			dbPath, _ := cmd.Flags().GetString("db")
			reportPath, _ := cmd.Flags().GetString("report")
			failOnGap, _ := cmd.Flags().GetBool("fail-on-gap")
			failOnOrphan, _ := cmd.Flags().GetBool("fail-on-orphan")
			maxExamples, _ := cmd.Flags().GetInt("max-examples")
			watch, _ := cmd.Flags().GetBool("watch")
			profileRef, _ := cmd.Flags().GetString("profile")

			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}

			config := validate.DefaultConfig()
			config.FailOnGap = failOnGap
			config.FailOnOrphan = failOnOrphan
			config.MaxExamples = maxExamples

			run := &parseRun{
				input:      args[0],
				format:     library.Format(formatStr),
				output:     outputPath,
				dbPath:     dbPath,
				reportPath: reportPath,
				config:     config,
				resolve: func() (*profile.Profile, error) {
					return resolveProfile(registry, profileRef)
				},
				out: cmd.OutOrStdout(),
			}
			if outputPath == "-" {
				run.out = cmd.ErrOrStderr()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watch {
				return watchParse(ctx, run, registry)
			}

			result, err := run.run(ctx)
			if err != nil {
				return err
			}
			if !result.Passed() {
				return fmt.Errorf("validation failed: %d error(s)", result.Errors())
			}
			return nil
		},
	}

	cmd.Flags().String("format", "", "Input format: text or jsonl (detected from the extension if omitted)")
	cmd.Flags().StringP("output", "o", "", "Write node records as JSON to this file (- for stdout)")
	cmd.Flags().String("db", "", "Save the tree into this SQLite database")
	cmd.Flags().String("report", "", "Write the validation report to this file (.md for Markdown, otherwise JSON)")
	cmd.Flags().Bool("fail-on-gap", false, "Treat clause numbering gaps as errors")
	cmd.Flags().Bool("fail-on-orphan", false, "Treat orphaned lines as errors")
	cmd.Flags().Int("max-examples", validate.DefaultConfig().MaxExamples, "Examples kept per validation issue")
	cmd.Flags().Bool("watch", false, "Re-parse whenever the input or a profile changes")
	addProfileFlags(cmd)

	return cmd
}

// parseRun holds everything needed to parse one input, so watch mode can repeat it.
type parseRun struct {
	input      string
	format     library.Format
	output     string
	dbPath     string
	reportPath string
	config     validate.Config
	resolve    func() (*profile.Profile, error)
	out        io.Writer
}

func (r *parseRun) run(ctx context.Context) (*validate.ValidationResult, error) {
	p, err := r.resolve()
	if err != nil {
		return nil, err
	}

	sourceText, err := os.ReadFile(r.input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	format := r.format
	if format == "" {
		format = library.DetectFormat(r.input)
	}

	logger := slog.Default().With("input", r.input)
	result, err := library.IngestFromText(sourceText, p, format, diag.LogSink(logger))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.input, err)
	}
	logger.Info("parse.done", "part", result.Tree.Part(), "nodes", result.Tree.Len(),
		"diagnostics", len(result.Diagnostics))

	validation := validate.NewValidator(r.config).Validate(result.Tree, result.Diagnostics, p)

	if r.output != "" {
		data, err := library.SerializeTree(result.Tree)
		if err != nil {
			return nil, err
		}
		if err := writeOutput(r.output, data); err != nil {
			return nil, err
		}
	}

	if r.dbPath != "" {
		if err := saveToStore(ctx, r.dbPath, store.NewDocumentInfo(p.Part.Number, p.ProfileID, r.input, sourceText), result); err != nil {
			return nil, err
		}
	}

	if r.reportPath != "" {
		if err := writeReport(r.reportPath, validation); err != nil {
			return nil, err
		}
	}

	printIngestSummary(r.out, r.input, result)
	fmt.Fprintln(r.out)
	fmt.Fprint(r.out, validation.String())
	return validation, nil
}

func saveToStore(ctx context.Context, dbPath string, info store.DocumentInfo, result *library.IngestResult) error {
	st, err := store.OpenPath(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SaveTree(ctx, info, result.Tree); err != nil {
		return fmt.Errorf("failed to save part %d: %w", info.Part, err)
	}
	slog.Info("store.saved", "db", dbPath, "part", info.Part, "run", info.RunID)
	return nil
}

func printIngestSummary(w io.Writer, input string, result *library.IngestResult) {
	stats := result.Stats
	fmt.Fprintf(w, "Parsed %s: part %d, %d pages, %d nodes, %d references\n",
		input, result.Tree.Part(), stats.Pages, stats.Nodes, stats.References)

	types := make([]string, 0, len(stats.ByType))
	for t := range stats.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-14s %6d\n", t, stats.ByType[t])
	}

	if len(stats.Diagnostics) > 0 {
		fmt.Fprintln(w, "Diagnostics:")
		kinds := make([]string, 0, len(stats.Diagnostics))
		for k := range stats.Diagnostics {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-14s %6d\n", k, stats.Diagnostics[k])
		}
	}
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeReport(path string, result *validate.ValidationResult) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		data = []byte(result.ToMarkdown())
	default:
		jsonData, err := result.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		data = jsonData
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func addProfileFlags(cmd *cobra.Command) {
	cmd.Flags().String("profile", profile.DefaultID, "Profile id, or path to a profile YAML file")
	cmd.Flags().String("profiles-dir", "", "Directory of additional profile YAML files")
}

func loadRegistry(cmd *cobra.Command) (*profile.DefaultRegistry, error) {
	dir, _ := cmd.Flags().GetString("profiles-dir")
	if dir == "" {
		return profile.NewRegistryWithDefaults(), nil
	}
	registry, err := profile.NewRegistryWithDirectory(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles from %s: %w", dir, err)
	}
	registry.SetLogger(slog.Default())
	return registry, nil
}

func resolveProfile(registry profile.Registry, ref string) (*profile.Profile, error) {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("failed to read profile: %w", err)
		}
		p, err := profile.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", ref, err)
		}
		return p, nil
	}
	p, ok := registry.Get(ref)
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (see 'codetree profiles list')", ref)
	}
	return p, nil
}

func defaultLibraryPath() string {
	return ".codetree"
}

func defaultDBPath() string {
	return "codetree.db"
}

func truncateString(inputStr string, maxLength int) string {
	runes := []rune(inputStr)
	if len(runes) <= maxLength {
		return inputStr
	}
	return string(runes[:maxLength-3]) + "..."
}
