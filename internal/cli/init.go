package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaa/tbprep/internal/atlas"
	"github.com/jaa/tbprep/internal/config"
	"github.com/jaa/tbprep/internal/exitcode"
	"github.com/spf13/cobra"
)

func newInitCommand(app *AppContext) *cobra.Command {
	force := false

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter config and the workspace directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(app.Opts.ConfigPath)
			if path == "" {
				userPath, err := config.UserConfigPath()
				if err != nil {
					return withExitCode(exitcode.RuntimeFailure, err)
				}
				path = userPath
			}

			if err := config.EnsureConfigDir(path); err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}

			if _, err := os.Stat(path); err == nil && !force {
				if app.Opts.NoInput || !stdinIsTTY(app) {
					return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("config already exists at %s (rerun with --force)", path))
				}
				confirmed, confirmErr := promptYesNo(app, fmt.Sprintf("Config already exists at %s. Overwrite?", path))
				if confirmErr != nil {
					return withExitCode(exitcode.RuntimeFailure, confirmErr)
				}
				if !confirmed {
					fmt.Fprintln(app.IO.Out, "Initialization canceled.")
					return nil
				}
			}

			if err := os.WriteFile(path, []byte(config.DefaultTemplate()), 0o644); err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("write config file: %w", err))
			}

			defaults := config.DefaultConfig()
			workspace := defaults.Defaults.Workspace
			if app.Opts.Workspace != "" {
				workspace = app.Opts.Workspace
			}
			workspace, err := config.ExpandPath(workspace)
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("resolve workspace: %w", err))
			}
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("create workspace %s: %w", workspace, err))
			}

			fmt.Fprintf(app.IO.Out, "Wrote config: %s\n", path)
			fmt.Fprintf(app.IO.Out, "Ensured workspace: %s\n", workspace)
			fmt.Fprintf(app.IO.Out, "Atlas files are read from %s:\n", defaults.Atlas.Dir)
			for _, side := range []atlas.Side{atlas.Left, atlas.Right} {
				for _, file := range atlas.Resolve(defaults.Atlas.Dir, side).Files() {
					fmt.Fprintf(app.IO.Out, "  %s\n", filepath.Base(file))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	return cmd
}

func promptYesNo(app *AppContext, prompt string) (bool, error) {
	fmt.Fprintf(app.IO.Out, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(app.IO.In)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes", nil
}
