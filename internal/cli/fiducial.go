package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jaa/tbprep/internal/exitcode"
	"github.com/jaa/tbprep/internal/workflow"
	"github.com/spf13/cobra"
)

func newFiducialCommand(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fiducial",
		Aliases: []string{"fid"},
		Short:   "Place atlas landmarks on the input and apply the fiducial registration",
	}
	cmd.AddCommand(newFiducialListCommand(app))
	cmd.AddCommand(newFiducialSetCommand(app))
	cmd.AddCommand(newFiducialClearCommand(app))
	cmd.AddCommand(newFiducialImportCommand(app))
	cmd.AddCommand(newFiducialExportCommand(app))
	cmd.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Fit the rigid transform from placed fiducials and apply it to the moving volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.ApplyFiducials(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revert",
		Short: "Drop the fiducial transform and go back to the previous moving volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.RevertFiducials(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "harden",
		Short: "Bake the fiducial transform into the volume geometry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.HardenFiducials(ctx)
			})
		},
	})
	return cmd
}

func newFiducialListCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List atlas labels and their placements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, closeLogger, err := openWorkflow(app)
			if err != nil {
				return err
			}
			defer closeLogger()

			set, err := wf.Fiducials()
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			if set == nil {
				return withExitCode(exitcode.NotReady, fmt.Errorf("no session started (run tbprep start)"))
			}
			if app.Opts.JSON {
				return json.NewEncoder(app.IO.Out).Encode(set)
			}
			for _, entry := range set.Entries {
				if entry.Placed {
					fmt.Fprintf(app.IO.Out, "%-20s %s\n", entry.Label, entry.Input)
				} else {
					fmt.Fprintf(app.IO.Out, "%-20s -\n", entry.Label)
				}
			}
			fmt.Fprintf(app.IO.Out, "%d of %d placed\n", set.PlacedCount(), len(set.Entries))
			return nil
		},
	}
}

func newFiducialSetCommand(app *AppContext) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "set LABEL --at X,Y,Z",
		Short: "Place an atlas label at an input position (RAS, mm)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := parseVec3(at)
			if err != nil {
				return withExitCode(exitcode.InvalidUsage, fmt.Errorf("--at: %w", err))
			}
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.PlaceFiducial(ctx, args[0], position)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Input position as X,Y,Z in RAS millimeters")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newFiducialClearCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear LABEL",
		Short: "Remove the placement of an atlas label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.ClearFiducial(ctx, args[0])
			})
		},
	}
}

func newFiducialImportCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE.fcsv",
		Short: "Place fiducials from a markups file, matching labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.ImportFiducials(ctx, args[0])
			})
		},
	}
}

func newFiducialExportCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE.fcsv",
		Short: "Write the placed fiducials as a markups file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.ExportFiducials(ctx, args[0])
			})
		},
	}
}
