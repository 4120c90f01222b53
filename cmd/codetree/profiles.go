package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coolbeans/codetree/pkg/profile"
)

func profilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect document profiles",
		Long: `Inspect the document profiles that configure parsing: the part number,
known sections, page range and boilerplate lines of each source.

Examples:
  codetree profiles list
  codetree profiles list --profiles-dir profiles
  codetree profiles show obc-part9
  codetree profiles check profiles/obc-part3.yaml`,
	}

	cmd.AddCommand(profilesListCmd())
	cmd.AddCommand(profilesShowCmd())
	cmd.AddCommand(profilesCheckCmd())

	return cmd
}

func profilesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}

			fmt.Printf("%-16s %5s %8s %-8s %s\n", "ID", "PART", "SECTIONS", "VERSION", "NAME")
			fmt.Println(strings.Repeat("-", 70))
			for _, p := range registry.List() {
				fmt.Printf("%-16s %5d %8d %-8s %s\n", p.ProfileID, p.Part.Number, len(p.Sections), p.Version, p.Name)
			}
			return nil
		},
	}

	cmd.Flags().String("profiles-dir", "", "Directory of additional profile YAML files")

	return cmd
}

func profilesShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a profile as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			p, err := resolveProfile(registry, args[0])
			if err != nil {
				return err
			}

			encoder := yaml.NewEncoder(os.Stdout)
			encoder.SetIndent(2)
			defer encoder.Close()
			return encoder.Encode(p)
		},
	}

	cmd.Flags().String("profiles-dir", "", "Directory of additional profile YAML files")

	return cmd
}

func profilesCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Validate profile YAML files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err == nil {
					_, err = profile.Parse(data)
				}
				if err != nil {
					failed++
					fmt.Printf("  [FAIL] %s: %v\n", path, err)
					continue
				}
				fmt.Printf("  [OK]   %s\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d profile(s) invalid", failed, len(args))
			}
			return nil
		},
	}
}
