package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/pipeline"
	"github.com/matzehuels/stackpip/pkg/plan"
	"github.com/matzehuels/stackpip/pkg/requirements"
)

// runFlags are shared by sync, install and plan.
type runFlags struct {
	reinstall         bool
	reinstallPackages []string
	failFast          bool
	noProgress        bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.reinstall, "reinstall", false, "reinstall every requirement even if it is satisfied")
	cmd.Flags().StringSliceVar(&f.reinstallPackages, "reinstall-package", nil, "reinstall the named package (repeatable)")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "stop fetching after the first failure")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "disable the progress bar")
}

func (f *runFlags) options(reqs []dist.Requirement, mode plan.Mode) pipeline.Options {
	opts := pipeline.Options{
		Requirements: reqs,
		Mode:         mode,
		Reinstall:    f.reinstall,
		FailFast:     f.failFast,
	}
	for _, name := range f.reinstallPackages {
		opts.ReinstallPackages = append(opts.ReinstallPackages, dist.NormalizeName(name))
	}
	return opts
}

// readRequirements concatenates the requirement files in order.
func readRequirements(paths []string) ([]dist.Requirement, error) {
	var reqs []dist.Requirement
	for _, p := range paths {
		r, err := requirements.ParseFile(p)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r...)
	}
	return reqs, nil
}

func (c *CLI) syncCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "sync <requirements>...",
		Short: "Make the environment match the requirements exactly",
		Long: `Sync installs, upgrades and removes distributions until the environment
holds exactly the given requirements. Requirement files are requirements.txt
style files or pylock.toml lock files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSync(cmd, args, &flags, plan.ModeSync)
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *CLI) installCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "install <requirements>...",
		Short: "Install the requirements, leaving other distributions in place",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSync(cmd, args, &flags, plan.ModeInstall)
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *CLI) runSync(cmd *cobra.Command, args []string, flags *runFlags, mode plan.Mode) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	reqs, err := readRequirements(args)
	if err != nil {
		return err
	}
	runner, cfg, err := c.newRunner(cmd)
	if err != nil {
		return err
	}
	defer runner.Close()

	opts := flags.options(reqs, mode)
	opts.FailFast = opts.FailFast || cfg.FailFast

	var bar *barReporter
	if !flags.noProgress {
		bar = newBarReporter(os.Stderr)
		runner.SetReporter(bar)
	}

	prog := newProgress(logger)
	report, err := runner.Sync(ctx, opts)
	if bar != nil {
		bar.Finish()
	}
	if report == nil {
		return err
	}

	printReport(report)
	if err != nil {
		code := errors.GetCode(err)
		if code == "" {
			code = errors.ErrCodeInstall
		}
		return errors.Wrap(code, err, "%d of %d requirements failed", len(report.Failed), len(reqs))
	}
	prog.done(fmt.Sprintf("%s %d packages", verb(mode), len(reqs)))
	return nil
}

func verb(mode plan.Mode) string {
	if mode == plan.ModeInstall {
		return "Installed"
	}
	return "Synced"
}

// printReport prints the changes, then everything that needs attention.
func printReport(r *pipeline.Report) {
	changes := r.Changes()
	if len(changes) == 0 && len(r.Failed) == 0 {
		printSuccess("Environment already up to date (%d reused)", len(r.Reused))
	}
	for _, ch := range changes {
		printChange(ch)
	}
	for _, d := range r.Kept {
		printWarning("kept %s: its replacement could not be prepared", d.ID())
	}
	for _, f := range r.Failed {
		printError("%s", f.Error())
	}
	for _, ce := range r.CompileErrors {
		printWarning("could not compile %s: %v", ce.Path, ce.Err)
	}
	for _, d := range r.Diagnostics {
		printWarning("%s", d.String())
	}
	if s := r.Stats; len(changes) > 0 {
		printDetail("reused %d · cached %d · fetched %d · run %s", s.Reused, s.Cached, s.Fetched, r.RunID[:8])
	}
}
