package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/pipeline"
	"github.com/matzehuels/stackpip/pkg/plan"
)

func (c *CLI) planCommand() *cobra.Command {
	var (
		flags   runFlags
		install bool
	)
	cmd := &cobra.Command{
		Use:   "plan <requirements>...",
		Short: "Show what sync would change, without changing anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reqs, err := readRequirements(args)
			if err != nil {
				return err
			}
			runner, _, err := c.newRunner(cmd)
			if err != nil {
				return err
			}
			defer runner.Close()

			mode := plan.ModeSync
			if install {
				mode = plan.ModeInstall
			}
			preview, err := spin(ctx, "Planning", func() (*pipeline.Preview, error) {
				return runner.Plan(ctx, flags.options(reqs, mode))
			})
			if err != nil {
				return err
			}

			if preview.Plan.IsEmpty() {
				printSuccess("Environment already up to date (%d reused)", len(preview.Plan.Reuse))
				return nil
			}
			fmt.Fprintln(out, renderPlan(preview.Plan))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&install, "install", false, "plan an install instead of a sync (keep unrelated distributions)")
	return cmd
}

// planRows lists every action of p: removals first, then installs in the
// order they would be fetched. Reused distributions are omitted.
func planRows(p *plan.Plan) [][]string {
	var rows [][]string
	for _, rm := range p.Extraneous {
		action := "remove"
		if rm.Replaced {
			action = "replace"
		}
		rows = append(rows, []string{action, string(rm.Distribution.Name), rm.Distribution.Version, "", rm.Reason})
	}
	for _, ch := range p.Cached {
		rows = append(rows, []string{"install", string(ch.Requirement.Name), installed(p, ch.Requirement.Name), ch.Wheel.Version(), "cached wheel"})
	}
	for _, req := range p.Remote {
		action := "download"
		switch req.Source.Kind {
		case dist.SourceDirectory, dist.SourceEditable:
			action = "build"
		}
		target := req.Version()
		if target == "" {
			target = req.Source.Kind.String()
		}
		rows = append(rows, []string{action, string(req.Name), installed(p, req.Name), target, reason(p, req.Name)})
	}
	return rows
}

func installed(p *plan.Plan, name dist.PackageName) string {
	if prev := p.Predecessors(name); len(prev) > 0 {
		return prev[0].Version
	}
	return ""
}

func reason(p *plan.Plan, name dist.PackageName) string {
	if r, ok := p.Reasons[name]; ok {
		return r.String()
	}
	return "not installed"
}

// renderPlan draws the plan as a table.
func renderPlan(p *plan.Plan) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers("Action", "Package", "Installed", "Target", "Reason").
		Rows(planRows(p)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			if col == 4 {
				return StyleDim
			}
			return lipgloss.NewStyle()
		}).
		Render()
}
