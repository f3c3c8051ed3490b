package cli

import (
	"context"

	"github.com/jaa/tbprep/internal/workflow"
	"github.com/spf13/cobra"
)

func newRigidCommand(app *AppContext) *cobra.Command {
	var opts workflow.RigidOptions

	cmd := &cobra.Command{
		Use:   "rigid",
		Short: "Register the moving volume to the atlas with elastix",
		Long: "rigid runs elastix between the side's atlas and the moving volume and reports " +
			"progress from its output. Press Ctrl-C once to cancel the registration; the step " +
			"is recorded as cancelled.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.Rigid(ctx, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.ParameterFile, "parameters", "p", "", "elastix parameter file (defaults to elastix.parameter_file or the built-in rigid set)")
	return cmd
}
