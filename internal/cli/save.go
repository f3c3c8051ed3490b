package cli

import (
	"context"

	"github.com/jaa/tbprep/internal/workflow"
	"github.com/spf13/cobra"
)

func newSaveCommand(app *AppContext) *cobra.Command {
	var opts workflow.SaveOptions

	cmd := &cobra.Command{
		Use:   "save [OUTPUT]",
		Short: "Write the moving volume to disk",
		Long: "save writes the moving volume in the configured format. The format extension " +
			"is appended to the output path unless the path already ends with it, so " +
			"\"out.nii\" stays \"out.nii\" rather than becoming \"out.nii.nii\".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Output == "" && len(args) == 1 {
				opts.Output = args[0]
			}
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.Save(ctx, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format nii or nrrd (defaults to save.format)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output path (defaults to the moving volume name in the working directory)")
	return cmd
}
