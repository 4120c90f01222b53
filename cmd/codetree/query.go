package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coolbeans/codetree/pkg/extract"
	"github.com/coolbeans/codetree/pkg/store"
	"github.com/coolbeans/codetree/pkg/tree"
)

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored node with its children and references",
		Long: `Show one node from the store: its record, its direct children, the
references it makes and the provisions that refer back to it.

Examples:
  codetree show 9.5.3.1
  codetree show "9.5.3.1.(2)" --db codetree.db --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			formatStr, _ := cmd.Flags().GetString("format")
			ctx := cmd.Context()

			st, err := store.OpenPath(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			node, err := st.Node(ctx, args[0])
			if err != nil {
				return err
			}
			children, err := st.Children(ctx, node.ID)
			if err != nil {
				return err
			}
			refsFrom, err := st.RefsFrom(ctx, node.ID)
			if err != nil {
				return err
			}
			refsTo, err := st.RefsTo(ctx, node.ID)
			if err != nil {
				return err
			}

			if formatStr == "json" {
				childRecords := make([]tree.Record, len(children))
				for i, c := range children {
					childRecords[i] = c.Record()
				}
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(struct {
					Node     tree.Record    `json:"node"`
					Children []tree.Record  `json:"children"`
					RefsFrom []extract.Edge `json:"refs_from"`
					RefsTo   []extract.Edge `json:"refs_to"`
				}{node.Record(), childRecords, refsFrom, refsTo})
			}

			fmt.Printf("%s  [%s]  part %d, page %d\n", node.ID, node.Type, node.Part, node.Page)
			if node.Title != "" {
				fmt.Printf("Title: %s\n", node.Title)
			}
			if node.ParentID != "" {
				fmt.Printf("Parent: %s\n", node.ParentID)
			}
			if node.Fallback {
				fmt.Println("Parent was inferred from context")
			}
			if node.Content != "" {
				fmt.Printf("\n%s\n", node.Content)
			}

			if len(children) > 0 {
				fmt.Printf("\nChildren (%d):\n", len(children))
				for _, c := range children {
					fmt.Printf("  %-22s %-12s %s\n", c.ID, c.Type, truncateString(firstLine(c), 60))
				}
			}

			if len(refsFrom) > 0 {
				fmt.Printf("\nReferences (%d):\n", len(refsFrom))
				for _, e := range refsFrom {
					fmt.Printf("  %-11s %-16s -> %-22s %s\n", e.Kind, e.Target, e.NodeID, e.Status)
				}
			}

			if len(refsTo) > 0 {
				fmt.Printf("\nReferenced by (%d):\n", len(refsTo))
				for _, e := range refsTo {
					fmt.Printf("  %-22s (%s %s)\n", e.Source, e.Kind, e.Target)
				}
			}
			return nil
		},
	}

	cmd.Flags().String("db", defaultDBPath(), "SQLite database path")
	cmd.Flags().String("format", "text", "Output format (text, json)")

	return cmd
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <terms>...",
		Short: "Full-text search over stored titles and content",
		Long: `Search every stored node for all of the given terms.

Examples:
  codetree search ceiling height
  codetree search "fire alarm" --part 3 --limit 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			part, _ := cmd.Flags().GetInt("part")
			limit, _ := cmd.Flags().GetInt("limit")
			formatStr, _ := cmd.Flags().GetString("format")

			st, err := store.OpenPath(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			results, err := st.Search(cmd.Context(), store.SearchParams{
				Query: strings.Join(args, " "),
				Part:  part,
				Limit: limit,
			})
			if err != nil {
				return err
			}

			if formatStr == "json" {
				records := make([]tree.Record, len(results))
				for i, n := range results {
					records[i] = n.Record()
				}
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(records)
			}

			if len(results) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, n := range results {
				fmt.Printf("%-22s %-12s p.%-5d %s\n", n.ID, n.Type, n.Page, truncateString(firstLine(n), 70))
			}
			fmt.Printf("\n%d match(es)\n", len(results))
			return nil
		},
	}

	cmd.Flags().String("db", defaultDBPath(), "SQLite database path")
	cmd.Flags().Int("part", 0, "Restrict to one part (0 searches all)")
	cmd.Flags().Int("limit", 20, "Maximum results")
	cmd.Flags().String("format", "text", "Output format (text, json)")

	return cmd
}

func documentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List or delete parts held in the store",
		Long: `List every part saved in the store, or delete one with --delete.

Examples:
  codetree documents
  codetree documents --delete 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			deletePart, _ := cmd.Flags().GetInt("delete")
			ctx := cmd.Context()

			st, err := store.OpenPath(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			if deletePart > 0 {
				if err := st.DeleteDocument(ctx, deletePart); err != nil {
					return err
				}
				fmt.Printf("Deleted part %d\n", deletePart)
				return nil
			}

			docs, err := st.Documents(ctx)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("Store is empty. Run 'codetree parse <input> --db " + dbPath + "' first.")
				return nil
			}

			fmt.Printf("%5s %-14s %8s %-20s %s\n", "PART", "PROFILE", "NODES", "PARSED", "SOURCE")
			fmt.Println(strings.Repeat("-", 80))
			for _, d := range docs {
				fmt.Printf("%5d %-14s %8d %-20s %s\n", d.Part, d.ProfileID, d.NodeCount,
					d.ParsedAt.Format("2006-01-02 15:04:05"), d.Source)
			}
			if st.FullText() {
				fmt.Println("\nFull-text index: fts5")
			} else {
				fmt.Println("\nFull-text index: unavailable (substring search)")
			}
			return nil
		},
	}

	cmd.Flags().String("db", defaultDBPath(), "SQLite database path")
	cmd.Flags().Int("delete", 0, "Delete this part from the store")

	return cmd
}

func firstLine(n *tree.Node) string {
	text := n.Title
	if text == "" {
		text = n.Content
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return text
}
