package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpip/pkg/sitepackages"
)

func (c *CLI) listCommand() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed distributions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			site, err := c.sitePackages()
			if err != nil {
				return err
			}
			sp, err := spin(ctx, "Scanning "+site, func() (*sitepackages.SitePackages, error) {
				return sitepackages.Scan(ctx, site)
			})
			if err != nil {
				return err
			}

			if sp.Len() == 0 {
				printInfo("No distributions installed in %s", site)
			} else {
				fmt.Fprintln(out, renderInventory(sp.Distributions()))
			}

			diags := sp.Diagnostics()
			if check {
				diags = append(diags, sp.Check(pythonVersion(site))...)
			}
			for _, d := range diags {
				printWarning("%s", d.String())
			}
			if check && len(diags) == 0 {
				printSuccess("No problems found")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "also check Requires-Python and declared dependencies")
	return cmd
}

// inventoryRows renders one row per distribution.
func inventoryRows(dists []*sitepackages.Distribution) [][]string {
	rows := make([][]string, 0, len(dists))
	for _, d := range dists {
		requested := ""
		if d.Requested {
			requested = "✓"
		}
		rows = append(rows, []string{string(d.Name), d.Version, origin(d), d.Installer, requested})
	}
	return rows
}

// origin describes where a distribution was installed from.
func origin(d *sitepackages.Distribution) string {
	switch {
	case !d.Usable():
		return "unreadable"
	case d.DirectURL == nil:
		return "registry"
	case d.IsEditable():
		if p, ok := d.DirectURL.LocalPath(); ok {
			return "editable " + p
		}
		return "editable " + d.DirectURL.URL
	}
	return d.DirectURL.URL
}

func renderInventory(dists []*sitepackages.Distribution) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers("Package", "Version", "Source", "Installer", "Requested").
		Rows(inventoryRows(dists)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			if col == 2 || col == 3 {
				return StyleDim
			}
			return lipgloss.NewStyle()
		}).
		Render()
}
