package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jaa/tbprep/internal/exitcode"
	"github.com/jaa/tbprep/internal/progress"
	"github.com/spf13/cobra"
)

func newProgressCommand(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect how registration output maps to progress",
	}
	cmd.AddCommand(newProgressReplayCommand(app))
	cmd.AddCommand(&cobra.Command{
		Use:   "rules",
		Short: "List the status prefixes and the percentage each one reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Opts.JSON {
				return json.NewEncoder(app.IO.Out).Encode(progress.Rules)
			}
			for _, rule := range progress.Rules {
				fmt.Fprintf(app.IO.Out, "%3d%%  %s\n", rule.Percent, rule.Prefix)
			}
			return nil
		},
	})
	return cmd
}

type replayLine struct {
	Line    string `json:"line"`
	Matched bool   `json:"matched"`
	Percent int    `json:"percent"`
}

func newProgressReplayCommand(app *AppContext) *cobra.Command {
	all := false

	cmd := &cobra.Command{
		Use:   "replay LOG",
		Short: "Feed a saved elastix log through the progress tracker (- reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = app.IO.In
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("open log: %w", err))
				}
				defer f.Close()
				in = f
			}

			tracker := progress.NewTracker()
			tracker.Begin()
			encoder := json.NewEncoder(app.IO.Out)
			scanner := bufio.NewScanner(in)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				// Live runs trim every tool line and drop blank ones before the tracker.
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				update := tracker.Observe(line)
				if !update.Matched && !all {
					continue
				}
				if app.Opts.JSON {
					if err := encoder.Encode(replayLine{Line: update.Line, Matched: update.Matched, Percent: update.Percent}); err != nil {
						return withExitCode(exitcode.RuntimeFailure, err)
					}
					continue
				}
				fmt.Fprintf(app.IO.Out, "%3d%%  %s\n", update.Percent, update.Status)
			}
			if err := scanner.Err(); err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("read log: %w", err))
			}

			state := tracker.Snapshot()
			if !app.Opts.JSON && !app.Opts.Quiet {
				outcome := "incomplete"
				if state.Finished {
					outcome = "completed"
				}
				fmt.Fprintf(app.IO.Out, "Final: %d%% (%s)\n", state.Percent, outcome)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Also print lines that do not move the percentage")
	return cmd
}
