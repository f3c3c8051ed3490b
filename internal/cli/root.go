package cli

import (
	"fmt"
	"os"

	"github.com/jaa/tbprep/internal/exitcode"
	"github.com/spf13/cobra"
)

func Execute(build BuildInfo, streams IOStreams) int {
	app := &AppContext{Build: build, IO: streams}
	root := newRootCommand(app)

	if err := root.Execute(); err != nil {
		if !alreadyReported(err) {
			fmt.Fprintln(streams.ErrOut, "ERROR:", err)
		}
		return mapExitCode(err)
	}
	return exitcode.Success
}

func newRootCommand(app *AppContext) *cobra.Command {
	showVersion := false

	root := &cobra.Command{
		Use:   "tbprep",
		Short: "Prepare temporal bone CT volumes for atlas-based analysis",
		Long: "tbprep resamples a temporal bone CT volume, registers it to the side's atlas " +
			"with fiducials and elastix, crops it to a region of interest and saves the result. " +
			"Steps share state through a workspace directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(app)
				return nil
			}
			return cmd.Help()
		},
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	defaultConfigPath := os.Getenv("TBPREP_CONFIG")
	root.PersistentFlags().StringVarP(&app.Opts.ConfigPath, "config", "c", defaultConfigPath, "Path to config file")
	root.PersistentFlags().StringVarP(&app.Opts.Workspace, "workspace", "w", "", "Workspace directory (overrides defaults.workspace)")
	root.PersistentFlags().BoolVar(&app.Opts.JSON, "json", false, "Emit newline-delimited JSON events")
	root.PersistentFlags().BoolVarP(&app.Opts.Quiet, "quiet", "q", false, "Reduce output to errors and results")
	root.PersistentFlags().BoolVarP(&app.Opts.Verbose, "verbose", "v", false, "Show every tool line and debug logs")
	root.PersistentFlags().BoolVar(&app.Opts.NoInput, "no-input", false, "Disable interactive prompts")
	root.PersistentFlags().StringVar(&app.Opts.EventLog, "event-log", os.Getenv("TBPREP_EVENT_LOG"), "Append JSON events to this file")
	root.PersistentFlags().StringVar(&app.Opts.Progress, "progress", "auto", "Progress line mode: auto, always, or never")
	root.Flags().BoolVar(&showVersion, "version", false, "Print version info")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(exitcode.InvalidUsage, err)
	})

	root.AddCommand(newInitCommand(app))
	root.AddCommand(newValidateCommand(app))
	root.AddCommand(newDoctorCommand(app))
	root.AddCommand(newStartCommand(app))
	root.AddCommand(newStatusCommand(app))
	root.AddCommand(newResampleCommand(app))
	root.AddCommand(newFiducialCommand(app))
	root.AddCommand(newRigidCommand(app))
	root.AddCommand(newCropCommand(app))
	root.AddCommand(newSaveCommand(app))
	root.AddCommand(newProgressCommand(app))
	root.AddCommand(newVersionCommand(app))

	return root
}

func printVersion(app *AppContext) {
	version := app.Build.Version
	if version == "" {
		version = "dev"
	}
	commit := app.Build.Commit
	if commit == "" {
		commit = "unknown"
	}
	date := app.Build.Date
	if date == "" {
		date = "unknown"
	}

	fmt.Fprintf(app.IO.Out, "tbprep version %s\ncommit: %s\nbuild_date: %s\n", version, commit, date)
}
