package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coolbeans/codetree/pkg/analysis"
	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/library"
	"github.com/coolbeans/codetree/pkg/profile"
	"github.com/coolbeans/codetree/pkg/tree"
)

func diffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Compare two parses of the same part",
		Long: `Compare two structure trees of one part, such as two editions of the code.

Each input is either a tree written by 'codetree parse --output' (.json) or a
page source, which is parsed with the selected profile first.

Examples:
  codetree diff part9-2012.json part9-2024.json
  codetree diff part9-2012.txt part9-2024.txt --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")
			exitCode, _ := cmd.Flags().GetBool("exit-code")
			profileRef, _ := cmd.Flags().GetString("profile")

			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			p, err := resolveProfile(registry, profileRef)
			if err != nil {
				return err
			}

			before, err := loadDiffInput(args[0], p)
			if err != nil {
				return err
			}
			after, err := loadDiffInput(args[1], p)
			if err != nil {
				return err
			}

			result, err := analysis.CompareTrees(before, after)
			if err != nil {
				return err
			}

			switch formatStr {
			case "json":
				data, err := result.ToJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			default:
				fmt.Fprint(cmd.OutOrStdout(), result.String())
			}

			if exitCode && result.HasChanges() {
				return fmt.Errorf("trees differ")
			}
			return nil
		},
	}

	cmd.Flags().String("format", "text", "Output format: text or json")
	cmd.Flags().Bool("exit-code", false, "Fail when the trees differ")
	addProfileFlags(cmd)

	return cmd
}

func loadDiffInput(path string, p *profile.Profile) (*tree.Builder, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read tree: %w", err)
		}
		b, err := library.DeserializeTree(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return b, nil
	}

	result, err := library.IngestFromFile(path, p, diag.LogSink(slog.Default().With("input", path)))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return result.Tree, nil
}
