package cli

import (
	"context"
	"strings"

	"github.com/jaa/tbprep/internal/resample"
	"github.com/jaa/tbprep/internal/workflow"
	"github.com/spf13/cobra"
)

func newResampleCommand(app *AppContext) *cobra.Command {
	var opts workflow.ResampleOptions

	cmd := &cobra.Command{
		Use:   "resample",
		Short: "Resample the moving volume to a preset or custom spacing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.Resample(ctx, opts)
			})
		},
	}

	cmd.Flags().IntVar(&opts.PresetMicrometers, "preset", 0, "Isotropic preset in micrometers (defaults to resample.preset_um)")
	cmd.Flags().StringVar(&opts.Spacing, "spacing", "", "Custom spacing in micrometers as X,Y,Z or a single value")
	cmd.Flags().StringVar(&opts.Interpolation, "interpolation", "", "Interpolation: "+interpolationNames()+" (defaults to resample.interpolation)")
	return cmd
}

func interpolationNames() string {
	names := make([]string, 0, len(resample.Interpolations))
	for _, info := range resample.Interpolations {
		names = append(names, string(info.Name))
	}
	return strings.Join(names, ", ")
}
