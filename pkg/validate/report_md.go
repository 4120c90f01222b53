package validate

import (
	"fmt"
	"sort"
	"strings"
)

// ToMarkdown generates a Markdown-formatted validation report suitable for
// PR comments and review checklists.
func (validationResult *ValidationResult) ToMarkdown() string {
	var markdownBuilder strings.Builder

	statusBadge := statusToMarkdownBadge(validationResult.Status)
	markdownBuilder.WriteString(fmt.Sprintf("# Validation Report %s\n\n", statusBadge))

	// Summary table
	markdownBuilder.WriteString("## Summary\n\n")
	markdownBuilder.WriteString("| Metric | Value |\n")
	markdownBuilder.WriteString("|--------|-------|\n")
	markdownBuilder.WriteString(fmt.Sprintf("| **Part** | %d |\n", validationResult.Part))
	markdownBuilder.WriteString(fmt.Sprintf("| **Status** | %s %s |\n", statusBadge, validationResult.Status))
	if validationResult.ProfileName != "" {
		markdownBuilder.WriteString(fmt.Sprintf("| **Profile** | %s |\n", escapeMarkdownTableCell(validationResult.ProfileName)))
	}
	markdownBuilder.WriteString(fmt.Sprintf("| **Errors** | %d |\n", len(validationResult.Issues)))
	markdownBuilder.WriteString(fmt.Sprintf("| **Warnings** | %d |\n", len(validationResult.Warnings)))
	markdownBuilder.WriteString("\n")

	// Structure
	if structure := validationResult.Structure; structure != nil {
		markdownBuilder.WriteString("## Structure\n\n")
		markdownBuilder.WriteString("| Node Type | Count |\n")
		markdownBuilder.WriteString("|-----------|-------|\n")
		for _, nodeType := range sortedKeys(structure.ByType) {
			markdownBuilder.WriteString(fmt.Sprintf("| %s | %d |\n", nodeType, structure.ByType[nodeType]))
		}
		markdownBuilder.WriteString(fmt.Sprintf("| **Total** | %d |\n", structure.TotalNodes))
		markdownBuilder.WriteString("\n")
		markdownBuilder.WriteString(fmt.Sprintf("Articles with content: %d/%d (%.1f%%)\n\n",
			structure.ArticlesWithContent, structure.Articles, structure.ContentRate*100))
	}

	// Reference Resolution
	if references := validationResult.References; references != nil {
		markdownBuilder.WriteString("## Reference Resolution\n\n")
		markdownBuilder.WriteString("| Metric | Value |\n")
		markdownBuilder.WriteString("|--------|-------|\n")
		markdownBuilder.WriteString(fmt.Sprintf("| Total References | %d |\n", references.TotalReferences))
		markdownBuilder.WriteString(fmt.Sprintf("| Resolved | %d |\n", references.Resolved))
		markdownBuilder.WriteString(fmt.Sprintf("| Self References | %d |\n", references.SelfRefs))
		markdownBuilder.WriteString(fmt.Sprintf("| Not Found | %d |\n", references.NotFound))
		markdownBuilder.WriteString(fmt.Sprintf("| Tables | %d |\n", references.External))
		markdownBuilder.WriteString(fmt.Sprintf("| **Resolution Rate** | %.1f%% |\n", references.ResolutionRate*100))
		markdownBuilder.WriteString("\n")

		if len(references.UnresolvedExamples) > 0 {
			markdownBuilder.WriteString("<details>\n<summary>Unresolved examples</summary>\n\n")
			for _, example := range references.UnresolvedExamples {
				markdownBuilder.WriteString(fmt.Sprintf("- `%s`\n", example))
			}
			markdownBuilder.WriteString("\n</details>\n\n")
		}
	}

	// Issues
	if len(validationResult.Issues) > 0 {
		markdownBuilder.WriteString("## Issues\n\n")
		writeIssueTable(&markdownBuilder, validationResult.Issues)
	}

	// Warnings
	if len(validationResult.Warnings) > 0 {
		markdownBuilder.WriteString("## Warnings\n\n")
		writeIssueTable(&markdownBuilder, validationResult.Warnings)
	}

	return markdownBuilder.String()
}

func writeIssueTable(markdownBuilder *strings.Builder, issues []ValidationIssue) {
	markdownBuilder.WriteString("| Severity | Category | Message | Count | Examples |\n")
	markdownBuilder.WriteString("|----------|----------|---------|-------|----------|\n")
	for _, issue := range issues {
		countStr := ""
		if issue.Count > 0 {
			countStr = fmt.Sprintf("%d", issue.Count)
		}
		markdownBuilder.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			issue.Severity, issue.Category, escapeMarkdownTableCell(issue.Message), countStr,
			escapeMarkdownTableCell(strings.Join(issue.Examples, ", "))))
	}
	markdownBuilder.WriteString("\n")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// statusToMarkdownBadge returns a text badge for the given validation status.
func statusToMarkdownBadge(status ValidationStatus) string {
	switch status {
	case StatusPass:
		return "`PASS`"
	case StatusFail:
		return "`FAIL`"
	case StatusWarn:
		return "`WARN`"
	default:
		return fmt.Sprintf("`%s`", status)
	}
}

// escapeMarkdownTableCell escapes pipe characters that would break a table row.
func escapeMarkdownTableCell(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	return strings.ReplaceAll(content, "|", "\\|")
}
