package cli

import (
	"context"
	"fmt"

	"github.com/jaa/tbprep/internal/exitcode"
	"github.com/jaa/tbprep/internal/geom"
	"github.com/jaa/tbprep/internal/workflow"
	"github.com/spf13/cobra"
)

func newCropCommand(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crop",
		Short: "Define a region of interest and crop the moving volume to it",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Create a region of interest covering the moving volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.CropStart(ctx)
			})
		},
	})
	cmd.AddCommand(newCropROICommand(app))
	cmd.AddCommand(&cobra.Command{
		Use:   "accept",
		Short: "Crop the moving volume to the region of interest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.CropAccept(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "cancel",
		Short: "Discard the region of interest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.CropCancel(ctx)
			})
		},
	})
	return cmd
}

func newCropROICommand(app *AppContext) *cobra.Command {
	var center, radius string

	cmd := &cobra.Command{
		Use:   "roi",
		Short: "Move or resize the region of interest (RAS, mm)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			centerVec, err := optionalVec3("--center", center)
			if err != nil {
				return err
			}
			radiusVec, err := optionalVec3("--radius", radius)
			if err != nil {
				return err
			}
			if centerVec == nil && radiusVec == nil {
				return withExitCode(exitcode.InvalidUsage, fmt.Errorf("give --center, --radius or both"))
			}
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.CropAdjust(ctx, centerVec, radiusVec)
			})
		},
	}
	cmd.Flags().StringVar(&center, "center", "", "ROI center as X,Y,Z")
	cmd.Flags().StringVar(&radius, "radius", "", "ROI half-size as X,Y,Z")
	return cmd
}

func optionalVec3(flag, raw string) (*geom.Vec3, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := parseVec3(raw)
	if err != nil {
		return nil, withExitCode(exitcode.InvalidUsage, fmt.Errorf("%s: %w", flag, err))
	}
	return &v, nil
}
