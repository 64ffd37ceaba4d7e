package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pbip-tools/tentacles/internal/cli/output"
	"github.com/pbip-tools/tentacles/internal/project"
)

// CheckIssue is one finding of the check command.
type CheckIssue struct {
	Category string `json:"category"`
	Detail   string `json:"detail"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the project for consistency problems",
		Long: `Check the semantic model for problems that Power BI Desktop would
surface as broken organization: tables missing from the query order,
query order entries without a table file, tables assigned to query
groups the model does not declare, and duplicate measure names.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}

			issues := checkProject(p)
			r := cmdCtx.Renderer

			if r.EffectiveMode() == output.ModeJSON {
				if err := r.JSON(issues); err != nil {
					return err
				}
			} else {
				reportIssues(r, issues)
			}

			if strict && len(issues) > 0 {
				return fmt.Errorf("%d problems found", len(issues))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when problems are found")
	return cmd
}

func checkProject(p *project.Project) []CheckIssue {
	var issues []CheckIssue
	add := func(category, format string, args ...interface{}) {
		issues = append(issues, CheckIssue{Category: category, Detail: fmt.Sprintf(format, args...)})
	}

	if p.Order == nil {
		add("query order", "model.tmdl has no readable PBI_QueryOrder annotation")
	}

	byName := make(map[string]bool, len(p.Tables))
	for _, t := range p.Tables {
		byName[strings.ToLower(t.Name)] = true
	}
	ordered := make(map[string]bool, len(p.Order))
	for _, name := range p.Order {
		ordered[strings.ToLower(name)] = true
		if !byName[strings.ToLower(name)] {
			add("query order", "%q is listed in the query order but has no table file", name)
		}
	}
	for _, t := range p.Tables {
		if !t.Calculated() && p.Order != nil && !ordered[strings.ToLower(t.Name)] {
			add("query order", "table %q is missing from the query order", t.Name)
		}
	}

	for _, t := range p.Tables {
		if t.QueryGroup == "" {
			continue
		}
		if _, ok := p.Groups[t.QueryGroup]; !ok {
			add("query groups", "table %q uses query group %q, which model.tmdl does not declare", t.Name, t.QueryGroup)
		}
	}

	// Measure names must be unique across the whole model
	measureOwner := make(map[string]string)
	for _, t := range p.Tables {
		seen := make(map[string]bool)
		for _, m := range t.Measures {
			key := strings.ToLower(strings.TrimSpace(m.Name))
			if seen[key] {
				add("measures", "table %q defines measure %q more than once", t.Name, m.Name)
				continue
			}
			seen[key] = true
			if owner, ok := measureOwner[key]; ok {
				add("measures", "measure %q exists in both %q and %q", m.Name, owner, t.Name)
				continue
			}
			measureOwner[key] = t.Name
		}
	}

	for _, w := range p.LoadWarnings {
		add("files", "%s", w)
	}

	return issues
}

func reportIssues(r *output.Renderer, issues []CheckIssue) {
	if len(issues) == 0 {
		r.Success("No problems found")
		return
	}

	title := cases.Title(language.English)
	byCategory := make(map[string][]CheckIssue)
	var order []string
	for _, issue := range issues {
		if _, ok := byCategory[issue.Category]; !ok {
			order = append(order, issue.Category)
		}
		byCategory[issue.Category] = append(byCategory[issue.Category], issue)
	}

	for _, category := range order {
		r.Header(title.String(category))
		for _, issue := range byCategory[category] {
			r.Println("  " + issue.Detail)
		}
	}
	r.Printf("\n%d problems found\n", len(issues))
}
