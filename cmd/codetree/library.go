package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coolbeans/codetree/pkg/analysis"
	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/grammar"
	"github.com/coolbeans/codetree/pkg/library"
	"github.com/coolbeans/codetree/pkg/store"
	"github.com/coolbeans/codetree/pkg/tree"
	"github.com/coolbeans/codetree/pkg/watch"
)

func libraryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage the parts library",
		Long: `Manage a persistent library of parsed building code parts.

The library keeps each page source next to its serialized tree and parse
statistics, so trees can be reloaded or exported without re-parsing.

Examples:
  codetree library init
  codetree library add --source part9.txt --id obc-part9
  codetree library seed --dir sources
  codetree library list
  codetree library status
  codetree library export --document obc-part9 --format outline
  codetree library sync --db codetree.db
  codetree library graph --format dot -o refs.dot
  codetree library watch --dir sources
  codetree library source obc-part9
  codetree library remove obc-part9`,
	}

	cmd.AddCommand(libraryInitCmd())
	cmd.AddCommand(libraryAddCmd())
	cmd.AddCommand(librarySeedCmd())
	cmd.AddCommand(libraryListCmd())
	cmd.AddCommand(libraryStatusCmd())
	cmd.AddCommand(libraryRemoveCmd())
	cmd.AddCommand(libraryExportCmd())
	cmd.AddCommand(librarySyncCmd())
	cmd.AddCommand(libraryGraphCmd())
	cmd.AddCommand(libraryWatchCmd())
	cmd.AddCommand(librarySourceCmd())

	return cmd
}

func libraryInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new parts library",
		RunE: func(cmd *cobra.Command, args []string) error {
			libraryPath, _ := cmd.Flags().GetString("path")

			lib, err := library.Init(libraryPath)
			if err != nil {
				return fmt.Errorf("failed to initialize library: %w", err)
			}

			fmt.Printf("Library initialized at: %s\n", lib.Path())
			fmt.Println("\nNext steps:")
			fmt.Println("  codetree library seed --dir sources")
			fmt.Println("  codetree library add --source path/to/part9.txt --id obc-part9")
			return nil
		},
	}

	cmd.Flags().String("path", defaultLibraryPath(), "Library directory path")

	return cmd
}

func libraryAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Parse a part and add it to the library",
		Long: `Parse a page source and store its tree in the library. An unchanged
source is not parsed again unless --force is given.

Examples:
  codetree library add --source part9.txt --id obc-part9
  codetree library add --source part3.jsonl --profile profiles/obc-part3.yaml --tags obc,fire`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sourcePath, _ := cmd.Flags().GetString("source")
			documentID, _ := cmd.Flags().GetString("id")
			documentName, _ := cmd.Flags().GetString("name")
			formatStr, _ := cmd.Flags().GetString("format")
			tags, _ := cmd.Flags().GetStringSlice("tags")
			force, _ := cmd.Flags().GetBool("force")
			libraryPath, _ := cmd.Flags().GetString("path")
			profileRef, _ := cmd.Flags().GetString("profile")

			if sourcePath == "" {
				return fmt.Errorf("--source flag is required")
			}

			sourceText, err := os.ReadFile(sourcePath)
			if err != nil {
				return fmt.Errorf("failed to read source: %w", err)
			}

			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			p, err := resolveProfile(registry, profileRef)
			if err != nil {
				return err
			}

			if documentID == "" {
				documentID = library.DeriveDocumentID(sourcePath)
			}
			if documentName == "" {
				documentName = documentID
			}
			format := library.Format(formatStr)
			if format == "" {
				format = library.DetectFormat(sourcePath)
			}

			lib, err := library.Open(libraryPath)
			if err != nil {
				return fmt.Errorf("library not found at %s (run 'codetree library init' first): %w", libraryPath, err)
			}

			fmt.Printf("Adding document: %s\n", documentID)
			fmt.Printf("  Source: %s (%d bytes)\n", sourcePath, len(sourceText))

			previous := lib.GetDocument(documentID)
			collector := diag.NewCollector()
			entry, err := lib.AddDocument(documentID, sourceText, library.AddOptions{
				Name:       documentName,
				Format:     format,
				Profile:    p,
				Tags:       tags,
				SourceInfo: sourcePath,
				Force:      force,
			}, collector)
			if err != nil {
				return fmt.Errorf("failed to add document: %w", err)
			}

			if previous != nil && entry == previous {
				fmt.Printf("  Status: %s (unchanged)\n", entry.Status)
			} else {
				fmt.Printf("  Status: %s\n", entry.Status)
			}
			if entry.Stats != nil {
				fmt.Printf("  Part: %d\n", entry.Part)
				fmt.Printf("  Nodes: %d\n", entry.Stats.Nodes)
				fmt.Printf("  Articles: %d\n", entry.Stats.ByType[string(grammar.TypeArticle)])
				fmt.Printf("  Clauses: %d\n", entry.Stats.ByType[string(grammar.TypeClause)])
				fmt.Printf("  References: %d\n", entry.Stats.References)
			}
			for _, kind := range collector.Kinds() {
				fmt.Printf("  Diagnostics (%s): %d\n", kind, collector.Count(kind))
			}
			return nil
		},
	}

	cmd.Flags().StringP("source", "s", "", "Source document path")
	cmd.Flags().String("id", "", "Document identifier (derived from filename if omitted)")
	cmd.Flags().String("name", "", "Human-readable name")
	cmd.Flags().String("format", "", "Input format: text or jsonl (detected from the extension if omitted)")
	cmd.Flags().StringSlice("tags", []string{}, "Tags for categorization")
	cmd.Flags().Bool("force", false, "Re-parse even when the source is unchanged")
	cmd.Flags().String("path", defaultLibraryPath(), "Library directory path")
	addProfileFlags(cmd)

	return cmd
}

func librarySeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Add every page source in a directory",
		Long: `Parse every .txt and .jsonl file in a directory into the library,
skipping documents whose source has not changed.

Example:
  codetree library seed --dir sources`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceDir, _ := cmd.Flags().GetString("dir")
			libraryPath, _ := cmd.Flags().GetString("path")
			profileRef, _ := cmd.Flags().GetString("profile")

			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			p, err := resolveProfile(registry, profileRef)
			if err != nil {
				return err
			}

			lib, err := library.Open(libraryPath)
			if err != nil {
				lib, err = library.Init(libraryPath)
				if err != nil {
					return fmt.Errorf("failed to initialize library: %w", err)
				}
				fmt.Printf("Library initialized at: %s\n\n", lib.Path())
			}

			fmt.Printf("Seeding library from %s\n\n", sourceDir)

			seedReport, err := library.SeedFromDirectory(lib, sourceDir, p)
			if err != nil {
				return fmt.Errorf("seeding failed: %w", err)
			}

			for _, entryState := range seedReport.Entries {
				switch entryState.Status {
				case "ingested":
					nodeCount := 0
					if entry := lib.GetDocument(entryState.ID); entry != nil && entry.Stats != nil {
						nodeCount = entry.Stats.Nodes
					}
					fmt.Printf("  [OK] %-20s %d nodes\n", entryState.ID, nodeCount)
				case "skipped":
					fmt.Printf("  [SKIP] %-18s unchanged\n", entryState.ID)
				case "failed":
					fmt.Printf("  [FAIL] %-18s %s\n", entryState.ID, entryState.Error)
				}
			}

			fmt.Printf("\nSeed complete: %d ingested, %d skipped, %d failed\n",
				seedReport.Succeeded, seedReport.Skipped, seedReport.Failed)

			libraryStats := lib.Stats()
			fmt.Printf("\nLibrary totals: %d documents, %d nodes\n",
				libraryStats.TotalDocuments, libraryStats.TotalNodes)
			return nil
		},
	}

	cmd.Flags().String("dir", "sources", "Directory of page sources")
	cmd.Flags().String("path", defaultLibraryPath(), "Library directory path")
	addProfileFlags(cmd)

	return cmd
}

func libraryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all documents in the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			libraryPath, _ := cmd.Flags().GetString("path")
			formatStr, _ := cmd.Flags().GetString("format")
			tag, _ := cmd.Flags().GetString("tag")

			lib, err := library.Open(libraryPath)
			if err != nil {
				return fmt.Errorf("library not found at %s: %w", libraryPath, err)
			}

			docs := lib.ListDocuments()
			if tag != "" {
				filtered := make([]*library.DocumentEntry, 0)
				for _, entry := range docs {
					for _, t := range entry.Tags {
						if t == tag {
							filtered = append(filtered, entry)
							break
						}
					}
				}
				docs = filtered
			}

			if formatStr == "json" {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(docs)
			}

			if len(docs) == 0 {
				fmt.Println("Library is empty. Run 'codetree library seed' to add page sources.")
				return nil
			}

			fmt.Printf("%-22s %5s %-14s %-8s %8s %8s %8s\n",
				"ID", "PART", "PROFILE", "STATUS", "NODES", "CLAUSES", "REFS")
			fmt.Println(strings.Repeat("-", 80))

			for _, entry := range docs {
				nodeCount, clauseCount, refCount := 0, 0, 0
				if entry.Stats != nil {
					nodeCount = entry.Stats.Nodes
					clauseCount = entry.Stats.ByType[string(grammar.TypeClause)]
					refCount = entry.Stats.References
				}
				fmt.Printf("%-22s %5d %-14s %-8s %8d %8d %8d\n",
					truncateString(entry.ID, 22), entry.Part, truncateString(entry.ProfileID, 14),
					entry.Status, nodeCount, clauseCount, refCount)
			}

			fmt.Printf("\n%d document(s)\n", len(docs))
			return nil
		},
	}

	cmd.Flags().String("path", defaultLibraryPath(), "Library directory path")
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().String("tag", "", "Only list documents with this tag")

	return cmd
}

func libraryStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show library statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			libraryPath, _ := cmd.Flags().GetString("path")

			lib, err := library.Open(libraryPath)
			if err != nil {
				return fmt.Errorf("library not found at %s: %w", libraryPath, err)
			}

			libraryStats := lib.Stats()

			fmt.Printf("Library: %s\n\n", lib.Path())
			fmt.Printf("Documents:        %d\n", libraryStats.TotalDocuments)
			fmt.Printf("Total nodes:      %d\n", libraryStats.TotalNodes)
			fmt.Printf("Total references: %d\n", libraryStats.TotalReferences)

			if len(libraryStats.ByType) > 0 {
				fmt.Println("\nBy Type:")
				for _, t := range grammar.AllTypes() {
					if count, ok := libraryStats.ByType[string(t)]; ok {
						fmt.Printf("  %-15s %d\n", t, count)
					}
				}
			}

			if len(libraryStats.ByStatus) > 0 {
				fmt.Println("\nBy Status:")
				statuses := make([]string, 0, len(libraryStats.ByStatus))
				for s := range libraryStats.ByStatus {
					statuses = append(statuses, s)
				}
				sort.Strings(statuses)
				for _, s := range statuses {
					fmt.Printf("  %-15s %d\n", s, libraryStats.ByStatus[s])
				}
			}
			return nil
		},
	}

	cmd.Flags().String("path", defaultLibraryPath(), "Library directory path")

	return cmd
}

func libraryRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <document-id>",
		Short: "Remove a document from the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			libraryPath, _ := cmd.Flags().GetString("path")
			documentID := args[0]

			lib, err := library.Open(libraryPath)
			if err != nil {
				return fmt.Errorf("library not found at %s: %w", libraryPath, err)
			}

			if err := lib.RemoveDocument(documentID); err != nil {
				return fmt.Errorf("failed to remove document: %w", err)
			}

			fmt.Printf("Removed document: %s\n", documentID)
			return nil
		},
	}

	cmd.Flags().String("path", defaultLibraryPath(), "Library directory path")

	return cmd
}

func libraryExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a document's tree",
		Long: `Export a stored tree as node records, an indented outline or a summary.

Examples:
  codetree library export --document obc-part9 --format json -o part9.json
  codetree library export --document obc-part9 --format outline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			libraryPath, _ := cmd.Flags().GetString("path")
			documentID, _ := cmd.Flags().GetString("document")
			formatStr, _ := cmd.Flags().GetString("format")
			outputPath, _ := cmd.Flags().GetString("output")

			if documentID == "" {
				return fmt.Errorf("--document flag is required")
			}

			lib, err := library.Open(libraryPath)
			if err != nil {
				return fmt.Errorf("library not found at %s: %w", libraryPath, err)
			}

			b, err := lib.LoadTree(documentID)
			if err != nil {
				return fmt.Errorf("failed to load document: %w", err)
			}

			var output string
			switch formatStr {
			case "json":
				data, marshalErr := library.SerializeTree(b)
				if marshalErr != nil {
					return fmt.Errorf("failed to serialize: %w", marshalErr)
				}
				output = string(data) + "\n"
			case "summary":
				output = fmt.Sprintf("Document: %s\n", documentID)
				output += fmt.Sprintf("Part: %d\n", b.Part())
				output += fmt.Sprintf("Total nodes: %d\n", b.Len())
				stats := b.Stats()
				for _, t := range grammar.AllTypes() {
					if count := stats[t]; count > 0 {
						output += fmt.Sprintf("  %-15s %d\n", t, count)
					}
				}
			default:
				output = renderOutline(b)
			}

			if outputPath != "" {
				if err := os.WriteFile(outputPath, []byte(output), 0644); err != nil {
					return fmt.Errorf("failed to write output: %w", err)
				}
				fmt.Printf("Exported %s to %s\n", documentID, outputPath)
			} else {
				fmt.Print(output)
			}
			return nil
		},
	}

	cmd.Flags().String("path", defaultLibraryPath(), "Library directory path")
	cmd.Flags().String("document", "", "Document ID to export")
	cmd.Flags().StringP("format", "f", "outline", "Output format (json, summary, outline)")
	cmd.Flags().StringP("output", "o", "", "Output file path")

	return cmd
}

func librarySyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy every ready document into the SQLite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			libraryPath, _ := cmd.Flags().GetString("path")
			dbPath, _ := cmd.Flags().GetString("db")
			ctx := cmd.Context()

			lib, err := library.Open(libraryPath)
			if err != nil {
				return fmt.Errorf("library not found at %s: %w", libraryPath, err)
			}

			st, err := store.OpenPath(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			synced := 0
			for _, entry := range lib.ListDocuments() {
				if entry.Status != library.StatusReady {
					fmt.Printf("  [SKIP] %-18s %s\n", entry.ID, entry.Status)
					continue
				}
				b, err := lib.LoadTree(entry.ID)
				if err != nil {
					return err
				}
				sourceText, err := lib.LoadSourceText(entry.ID)
				if err != nil {
					return fmt.Errorf("failed to load source of %s: %w", entry.ID, err)
				}
				info := store.NewDocumentInfo(entry.Part, entry.ProfileID, entry.ID, sourceText)
				if err := st.SaveTree(ctx, info, b); err != nil {
					return fmt.Errorf("failed to save %s: %w", entry.ID, err)
				}
				fmt.Printf("  [OK] %-20s part %d, %d nodes\n", entry.ID, entry.Part, b.Len())
				synced++
			}

			fmt.Printf("\nSynced %d document(s) to %s\n", synced, dbPath)
			return nil
		},
	}

	cmd.Flags().String("path", defaultLibraryPath(), "Library directory path")
	cmd.Flags().String("db", defaultDBPath(), "SQLite database path")

	return cmd
}

func libraryGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Analyze references across every ready document",
		Long: `Resolve the references of every ready document against each other and
report how the parts refer to one another. References to a part that is
not in the library stay unresolved.

Examples:
  codetree library graph
  codetree library graph --format json --top 20
  codetree library graph --format dot -o refs.dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			libraryPath, _ := cmd.Flags().GetString("path")
			formatStr, _ := cmd.Flags().GetString("format")
			outputPath, _ := cmd.Flags().GetString("output")
			topN, _ := cmd.Flags().GetInt("top")

			lib, err := library.Open(libraryPath)
			if err != nil {
				return fmt.Errorf("library not found at %s: %w", libraryPath, err)
			}

			analyzer := analysis.NewCrossRefAnalyzer()
			loaded := 0
			for _, entry := range lib.ListDocuments() {
				if entry.Status != library.StatusReady {
					continue
				}
				b, err := lib.LoadTree(entry.ID)
				if err != nil {
					return err
				}
				analyzer.AddTree(entry.ID, b)
				loaded++
			}
			if loaded == 0 {
				return fmt.Errorf("no ready documents in %s", libraryPath)
			}

			result := analyzer.Analyze(topN)

			var output string
			switch formatStr {
			case "json":
				data, err := result.ToJSON()
				if err != nil {
					return fmt.Errorf("failed to encode analysis: %w", err)
				}
				output = string(data) + "\n"
			case "dot":
				output = result.ToDOT()
			default:
				output = result.String()
			}

			if outputPath != "" {
				if err := os.WriteFile(outputPath, []byte(output), 0644); err != nil {
					return fmt.Errorf("failed to write output: %w", err)
				}
				fmt.Printf("Wrote %s analysis of %d document(s) to %s\n", formatStr, loaded, outputPath)
			} else {
				fmt.Print(output)
			}
			return nil
		},
	}

	cmd.Flags().String("path", defaultLibraryPath(), "Library directory path")
	cmd.Flags().StringP("format", "f", "text", "Output format (text, json, dot)")
	cmd.Flags().StringP("output", "o", "", "Output file path")
	cmd.Flags().Int("top", 10, "Most referenced provisions to list (0 lists all)")

	return cmd
}

func libraryWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the library in step with a directory of page sources",
		Long: `Parse every page source in a directory into the library, then keep
watching it: new and changed files are parsed again once they stop changing.

Examples:
  codetree library watch --dir sources
  codetree library watch --dir sources --remove-deleted --debounce 2s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceDir, _ := cmd.Flags().GetString("dir")
			libraryPath, _ := cmd.Flags().GetString("path")
			debounce, _ := cmd.Flags().GetDuration("debounce")
			removeDeleted, _ := cmd.Flags().GetBool("remove-deleted")
			profileRef, _ := cmd.Flags().GetString("profile")

			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			p, err := resolveProfile(registry, profileRef)
			if err != nil {
				return err
			}

			lib, err := library.OpenOrInit(libraryPath)
			if err != nil {
				return fmt.Errorf("failed to open library: %w", err)
			}

			w := watch.New(lib, watch.Config{
				Dir:           sourceDir,
				Debounce:      debounce,
				Profile:       p,
				RemoveDeleted: removeDeleted,
			})
			w.SetLogger(slog.Default())
			w.SetDiagnostics(diag.LogSink(slog.Default()))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			events, err := w.Scan(ctx)
			if err != nil {
				return err
			}
			for _, e := range events {
				printWatchEvent(e)
			}

			if err := w.Start(printWatchEvent); err != nil {
				return err
			}
			defer w.Stop()

			fmt.Printf("\nWatching %s for changes (Ctrl+C to stop)\n", sourceDir)
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().String("dir", "sources", "Directory of page sources")
	cmd.Flags().String("path", defaultLibraryPath(), "Library directory path")
	cmd.Flags().Duration("debounce", 500*time.Millisecond, "Quiet period before a changed file is parsed")
	cmd.Flags().Bool("remove-deleted", false, "Remove documents whose source file is deleted")
	addProfileFlags(cmd)

	return cmd
}

func printWatchEvent(e watch.Event) {
	switch e.Action {
	case watch.ActionIngested:
		nodeCount := 0
		if e.Entry != nil && e.Entry.Stats != nil {
			nodeCount = e.Entry.Stats.Nodes
		}
		fmt.Printf("  [OK] %-20s %d nodes\n", e.DocumentID, nodeCount)
	case watch.ActionSkipped:
		fmt.Printf("  [SKIP] %-18s unchanged\n", e.DocumentID)
	case watch.ActionRemoved:
		fmt.Printf("  [DEL] %-19s removed\n", e.DocumentID)
	case watch.ActionFailed:
		fmt.Printf("  [FAIL] %-18s %v\n", e.DocumentID, e.Err)
	}
}

func librarySourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source <document-id>",
		Short: "Display the original page source of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			libraryPath, _ := cmd.Flags().GetString("path")
			documentID := args[0]

			lib, err := library.Open(libraryPath)
			if err != nil {
				return fmt.Errorf("library not found at %s: %w", libraryPath, err)
			}

			sourceText, err := lib.LoadSourceText(documentID)
			if err != nil {
				return fmt.Errorf("failed to load source: %w", err)
			}

			fmt.Print(string(sourceText))
			return nil
		},
	}

	cmd.Flags().String("path", defaultLibraryPath(), "Library directory path")

	return cmd
}

func renderOutline(b *tree.Builder) string {
	var sb strings.Builder
	b.Walk(func(n *tree.Node, depth int) bool {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(n.ID)
		if text := firstLine(n); text != "" {
			sb.WriteString("  ")
			sb.WriteString(truncateString(text, 80))
		}
		sb.WriteString("\n")
		return true
	})
	return sb.String()
}
