package cli

import (
	stderrors "errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
	"github.com/matzehuels/stackpip/pkg/uninstall"
)

func (c *CLI) uninstallCommand() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "uninstall [package]...",
		Short: "Remove installed distributions",
		Long: `Uninstall removes the files listed in each distribution's RECORD. Files
that were modified since install are left in place and reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !interactive && len(args) == 0 {
				return errors.New(errors.ErrCodeInvalidRequirement, "name at least one package, or pass --interactive")
			}
			site, err := c.sitePackages()
			if err != nil {
				return err
			}
			sp, err := sitepackages.Scan(ctx, site)
			if err != nil {
				return err
			}

			var targets []*sitepackages.Distribution
			if interactive {
				if targets, err = pick(sp.Distributions()); err != nil {
					return err
				}
			} else {
				targets = selectByName(sp, args)
			}
			if len(targets) == 0 {
				printInfo("Nothing to uninstall")
				return nil
			}

			logger := loggerFromContext(ctx)
			var errs []error
			for _, d := range targets {
				res, err := uninstall.Uninstall(ctx, d, uninstall.Options{Prefix: c.flags.prefix, Logger: logger})
				if err != nil {
					printError("%s: %s", d.ID(), errors.UserMessage(err))
					errs = append(errs, err)
					continue
				}
				printSuccess("Uninstalled %s", d.ID())
				for _, s := range res.Skipped {
					printDetail("kept %s (%s)", s.Path, s.Reason)
				}
			}
			return stderrors.Join(errs...)
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "choose packages from a list")
	return cmd
}

// selectByName returns every installed copy of each named package and
// warns about names that are not installed.
func selectByName(sp *sitepackages.SitePackages, names []string) []*sitepackages.Distribution {
	var out []*sitepackages.Distribution
	for _, raw := range names {
		name := dist.NormalizeName(raw)
		d, ok := sp.Get(name)
		if !ok {
			printWarning("%s is not installed", raw)
			continue
		}
		out = append(out, d)
		out = append(out, sp.Duplicates(name)...)
	}
	return out
}

func pick(dists []*sitepackages.Distribution) ([]*sitepackages.Distribution, error) {
	if len(dists) == 0 {
		return nil, nil
	}
	final, err := tea.NewProgram(NewPickerModel(dists)).Run()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "interactive picker")
	}
	return final.(PickerModel).Selection(), nil
}
