package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/djencks/isogit/internal/checkout"
	"github.com/djencks/isogit/internal/gitconfig"
	"github.com/djencks/isogit/internal/index"
	"github.com/djencks/isogit/internal/object"
)

var (
	checkoutDir        string
	checkoutGitdir     string
	checkoutPattern    string
	checkoutRemote     string
	checkoutNoCheckout bool
	checkoutDryRun     bool
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <ref> [path...]",
	Short: "Switch the working tree and index to a ref",
	Long: `Move the working tree and index to the given branch or commit-ish.

The transition is planned first: any path whose local changes would be
lost aborts the whole operation before a single file is touched, and
every conflicting path is reported. Optional path arguments restrict the
checkout to those prefixes; --pattern further selects files by glob.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := args[0]
		gitdir := checkoutGitdir
		if gitdir == "" {
			gitdir = filepath.Join(checkoutDir, ".git")
		}
		dotgit := osfs.New(gitdir)

		opts := checkout.Options{
			FS:         osfs.New(checkoutDir),
			Store:      object.NewLooseStore(dotgit),
			Index:      index.NewStore(dotgit),
			Config:     gitconfig.NewIniConfig(dotgit),
			Ref:        ref,
			Filepaths:  args[1:],
			Pattern:    checkoutPattern,
			Remote:     checkoutRemote,
			NoCheckout: checkoutNoCheckout,
			DryRun:     checkoutDryRun,
		}

		res, err := checkout.Checkout(context.Background(), opts)
		if err != nil {
			var conflict *checkout.ConflictError
			if errors.As(err, &conflict) {
				PrintSection("Conflicts Detected")
				for _, path := range conflict.Paths {
					PrintError(fmt.Sprintf("%s: local changes would be overwritten", path))
				}
				fmt.Println()
				PrintWarning("Commit or discard the local changes, then retry.")
			}
			return err
		}

		if jsonOutput {
			out := struct {
				Ref      string   `json:"ref,omitempty"`
				Oid      string   `json:"oid"`
				DryRun   bool     `json:"dryRun,omitempty"`
				Plan     []string `json:"plan,omitempty"`
				Warnings []string `json:"warnings,omitempty"`
			}{
				Ref:      res.Ref,
				Oid:      res.Hash.String(),
				DryRun:   checkoutDryRun,
				Warnings: res.Warnings,
			}
			for _, op := range res.Plan {
				out.Plan = append(out.Plan, fmt.Sprintf("%s %s", op.Kind, op.Path))
			}
			return outputJSON(out)
		}

		if checkoutDryRun {
			PrintSection("Dry Run")
			PrintInfo(fmt.Sprintf("Would apply %s", PrintCount(len(res.Plan), "operation", "operations")))
			ops := make([]string, 0, len(res.Plan))
			for _, op := range res.Plan {
				ops = append(ops, fmt.Sprintf("%s: %s", op.Kind, op.Path))
			}
			PrintList(ops, 1)
			return nil
		}

		for _, warning := range res.Warnings {
			PrintWarning(warning)
		}
		if res.Ref != "" {
			PrintSuccess(fmt.Sprintf("Switched to %s", res.Ref))
		} else {
			PrintSuccess(fmt.Sprintf("HEAD is now detached at %s", res.Hash))
		}
		PrintLabelValue("Commit", res.Hash.String())
		return nil
	},
}

func init() {
	checkoutCmd.Flags().StringVar(&checkoutDir, "dir", ".", "Working tree root")
	checkoutCmd.Flags().StringVar(&checkoutGitdir, "gitdir", "", "Repository metadata root (defaults to <dir>/.git)")
	checkoutCmd.Flags().StringVarP(&checkoutPattern, "pattern", "p", "", "Glob restricting checked out files")
	checkoutCmd.Flags().StringVar(&checkoutRemote, "remote", "origin", "Remote consulted when the ref only exists remotely")
	checkoutCmd.Flags().BoolVar(&checkoutNoCheckout, "no-checkout", false, "Update HEAD only, leaving tree and index alone")
	checkoutCmd.Flags().BoolVar(&checkoutDryRun, "dry-run", false, "Show the plan without applying it")
}
