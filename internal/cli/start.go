package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jaa/tbprep/internal/exitcode"
	"github.com/jaa/tbprep/internal/workflow"
	"github.com/spf13/cobra"
)

func newStartCommand(app *AppContext) *cobra.Command {
	var opts workflow.StartOptions

	cmd := &cobra.Command{
		Use:   "start --input FILE",
		Short: "Select the input volume and side and load the atlas",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Input == "" && len(args) == 1 {
				opts.Input = args[0]
			}
			return runStep(app, func(ctx context.Context, wf *workflow.Workflow) error {
				return wf.Start(ctx, opts)
			})
		},
		Args: cobra.MaximumNArgs(1),
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Input volume (.nii, .nii.gz, .nrrd, .mha)")
	cmd.Flags().StringVar(&opts.Side, "side", "", "Ear side L or R (detected from the file name when empty)")
	cmd.Flags().BoolVar(&opts.ClearFiducials, "clear-fiducials", false, "Drop placed fiducials even when the side is unchanged")
	return cmd
}

func newStatusCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and which steps can run",
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, closeLogger, err := openWorkflow(app)
			if err != nil {
				return err
			}
			defer closeLogger()

			status, err := wf.Status()
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			if app.Opts.JSON {
				return json.NewEncoder(app.IO.Out).Encode(status)
			}
			printStatus(app, status)
			return nil
		},
	}
}

func printStatus(app *AppContext, status workflow.Status) {
	out := app.IO.Out
	fmt.Fprintf(out, "Workspace: %s\n", status.Workspace)
	if status.Busy != "" {
		fmt.Fprintf(out, "Busy: %s\n", status.Busy)
	}
	session := status.Session
	if session.Started() {
		fmt.Fprintf(out, "Input: %s (side %s)\n", session.Input.Path, session.Side)
		fmt.Fprintf(out, "Input spacing: X:%dum, Y:%dum, Z:%dum\n", session.InputSpacingUm[0], session.InputSpacingUm[1], session.InputSpacingUm[2])
	} else {
		fmt.Fprintln(out, "Input: none (run tbprep start)")
	}
	if session.Moving != nil {
		fmt.Fprintf(out, "Moving: %s\n", session.Moving.Name)
	}
	if session.Intermediate != nil {
		fmt.Fprintf(out, "Intermediate: %s\n", session.Intermediate.Name)
	}
	if session.Fiducials != nil {
		fmt.Fprintf(out, "Fiducials: %d of %d placed\n", session.Fiducials.PlacedCount(), len(session.Fiducials.Entries))
	}
	if session.Rigid != nil {
		fmt.Fprintf(out, "Rigid: %s at %d%%", session.Rigid.Status, session.Rigid.Percent)
		if session.Rigid.LastStatus != "" {
			fmt.Fprintf(out, " (%s)", session.Rigid.LastStatus)
		}
		fmt.Fprintln(out)
	}
	if session.ROI != nil {
		fmt.Fprintf(out, "ROI: center %s radius %s\n", session.ROI.Center, session.ROI.Radius)
	}

	fmt.Fprintln(out, "Steps:")
	for _, step := range status.Steps {
		if step.Ready {
			fmt.Fprintf(out, "  %-16s ready\n", step.Step)
			continue
		}
		fmt.Fprintf(out, "  %-16s %s\n", step.Step, step.Reason)
	}
}
