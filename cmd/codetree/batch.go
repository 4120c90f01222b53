package main

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coolbeans/codetree/pkg/extract"
	"github.com/coolbeans/codetree/pkg/library"
	"github.com/coolbeans/codetree/pkg/profile"
	"github.com/coolbeans/codetree/pkg/store"
	"github.com/coolbeans/codetree/pkg/validate"
)

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <input[=profile]>...",
		Short: "Parse several parts concurrently",
		Long: `Parse several independent parts at once. Each input may name its own
profile after an equals sign; otherwise --profile applies.

Examples:
  codetree batch part9.txt
  codetree batch part9.txt part3.txt=profiles/obc-part3.yaml --db codetree.db
  codetree batch --profiles-dir profiles part9.txt part3.txt=obc-part3 --jobs 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobLimit, _ := cmd.Flags().GetInt("jobs")
			dbPath, _ := cmd.Flags().GetString("db")
			failOnGap, _ := cmd.Flags().GetBool("fail-on-gap")
			profileRef, _ := cmd.Flags().GetString("profile")

			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}

			jobs := make([]extract.Job, 0, len(args))
			profiles := make([]*profile.Profile, 0, len(args))
			sources := make([][]byte, 0, len(args))
			for _, arg := range args {
				path, ref := arg, profileRef
				if i := strings.LastIndex(arg, "="); i > 0 {
					path, ref = arg[:i], arg[i+1:]
				}

				p, err := resolveProfile(registry, ref)
				if err != nil {
					return err
				}
				sourceText, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				doc, err := library.ReadPages(bytes.NewReader(sourceText), library.DetectFormat(path), p.Pages.First)
				if err != nil {
					return fmt.Errorf("failed to read pages of %s: %w", path, err)
				}
				opts, err := p.DriverOptions()
				if err != nil {
					return fmt.Errorf("profile %s: %w", p.ProfileID, err)
				}

				jobs = append(jobs, extract.Job{
					Name:    path,
					Part:    p.Part.Number,
					Pages:   doc,
					Seed:    p.Seed,
					Options: opts,
				})
				profiles = append(profiles, p)
				sources = append(sources, sourceText)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			results, err := extract.Batch(ctx, jobs, jobLimit)
			if err != nil {
				return fmt.Errorf("batch parse failed: %w", err)
			}

			var st *store.Store
			if dbPath != "" {
				st, err = store.OpenPath(dbPath)
				if err != nil {
					return err
				}
				defer st.Close()
			}

			config := validate.DefaultConfig()
			config.FailOnGap = failOnGap
			validator := validate.NewValidator(config)

			fmt.Printf("%-30s %5s %8s %8s %8s %-6s\n", "INPUT", "PART", "NODES", "REFS", "DIAGS", "STATUS")
			fmt.Println(strings.Repeat("-", 72))

			failed := 0
			for i, result := range results {
				validation := validator.Validate(result.Tree, result.Diagnostics, profiles[i])
				if !validation.Passed() {
					failed++
				}

				fmt.Printf("%-30s %5d %8d %8d %8d %-6s\n",
					truncateString(result.Name, 30), result.Tree.Part(), result.Tree.Len(),
					validation.References.TotalReferences, len(result.Diagnostics), validation.Status)

				if st != nil {
					info := store.NewDocumentInfo(profiles[i].Part.Number, profiles[i].ProfileID, result.Name, sources[i])
					if err := st.SaveTree(ctx, info, result.Tree); err != nil {
						return fmt.Errorf("failed to save %s: %w", result.Name, err)
					}
				}
			}

			if st != nil {
				fmt.Printf("\nSaved %d part(s) to %s\n", len(results), dbPath)
			}
			if failed > 0 {
				return fmt.Errorf("validation failed for %d of %d input(s)", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().Int("jobs", 0, "Maximum concurrent parses (0 uses the CPU count)")
	cmd.Flags().String("db", "", "Save every tree into this SQLite database")
	cmd.Flags().Bool("fail-on-gap", false, "Treat clause numbering gaps as errors")
	addProfileFlags(cmd)

	return cmd
}
