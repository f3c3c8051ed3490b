package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaa/tbprep/internal/config"
	"github.com/jaa/tbprep/internal/engine"
	"github.com/jaa/tbprep/internal/exitcode"
	"github.com/jaa/tbprep/internal/geom"
	"github.com/jaa/tbprep/internal/output"
	"github.com/jaa/tbprep/internal/progress"
	"github.com/jaa/tbprep/internal/workflow"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func loadConfig(app *AppContext) (config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return config.Config{}, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.Load(config.LoadOptions{
		ExplicitPath: strings.TrimSpace(app.Opts.ConfigPath),
		WorkingDir:   wd,
	})
	if err != nil {
		return config.Config{}, err
	}
	if workspace := strings.TrimSpace(app.Opts.Workspace); workspace != "" {
		expanded, err := config.ExpandPath(workspace)
		if err != nil {
			return config.Config{}, err
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return config.Config{}, fmt.Errorf("resolve workspace: %w", err)
		}
		cfg.Defaults.Workspace = abs
	}
	return cfg, nil
}

// newLogger returns a development logger on stderr with --verbose and a no-op logger
// otherwise. Events stay the user-facing channel; the logger carries diagnostics.
func newLogger(app *AppContext) *zap.SugaredLogger {
	if !app.Opts.Verbose {
		return zap.NewNop().Sugar()
	}
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(app.IO.ErrOut), zapcore.DebugLevel)
	return zap.New(core, zap.AddCaller()).Sugar()
}

func newEmitter(app *AppContext) (output.EventEmitter, func(), error) {
	emitter := consoleEmitter(app)
	path := strings.TrimSpace(app.Opts.EventLog)
	if path == "" {
		return emitter, func() {}, nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(expanded, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}
	multi := output.NewMultiEmitter(emitter, output.NewJSONEmitter(file))
	return multi, func() { _ = file.Close() }, nil
}

func consoleEmitter(app *AppContext) output.EventEmitter {
	if app.Opts.JSON {
		return output.NewJSONEmitter(app.IO.Out)
	}
	human := output.NewHumanEmitter(app.IO.Out, app.IO.ErrOut, app.Opts.Quiet, app.Opts.Verbose)
	if app.Opts.Quiet || app.Opts.Verbose {
		return human
	}
	switch app.Opts.Progress {
	case "always":
		return output.NewProgressEmitterWithOptions(app.IO.Out, human, output.ProgressOptions{Interactive: true})
	case "never":
		return output.NewProgressEmitterWithOptions(app.IO.Out, human, output.ProgressOptions{Interactive: false})
	}
	return output.NewProgressEmitter(app.IO.Out, human)
}

func parseProgressMode(raw string) (string, error) {
	mode := strings.TrimSpace(strings.ToLower(raw))
	switch mode {
	case "":
		return "auto", nil
	case "auto", "always", "never":
		return mode, nil
	default:
		return "", fmt.Errorf("invalid --progress mode %q (expected: auto, always, never)", raw)
	}
}

// openWorkflow loads and validates the config and builds a workflow wired to the
// app's output streams. The returned func flushes the logger and closes the event log.
func openWorkflow(app *AppContext) (*workflow.Workflow, func(), error) {
	mode, err := parseProgressMode(app.Opts.Progress)
	if err != nil {
		return nil, nil, withExitCode(exitcode.InvalidUsage, err)
	}
	app.Opts.Progress = mode

	cfg, err := loadConfig(app)
	if err != nil {
		return nil, nil, withExitCode(exitcode.InvalidConfig, err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, withExitCode(exitcode.InvalidConfig, err)
	}

	var toolOut io.Writer
	if app.Opts.Verbose && !app.Opts.JSON {
		toolOut = app.IO.ErrOut
	}
	emitter, closeEvents, err := newEmitter(app)
	if err != nil {
		return nil, nil, withExitCode(exitcode.RuntimeFailure, err)
	}
	logger := newLogger(app)
	wf, err := workflow.New(cfg, engine.NewSubprocessRunner(toolOut, toolOut), emitter, logger)
	if err != nil {
		closeEvents()
		return nil, nil, withExitCode(exitcode.InvalidConfig, err)
	}
	return wf, func() {
		_ = logger.Sync()
		closeEvents()
	}, nil
}

// runStep opens the workflow and runs one step under interrupt handling.
func runStep(app *AppContext, fn func(ctx context.Context, wf *workflow.Workflow) error) error {
	wf, closeLogger, err := openWorkflow(app)
	if err != nil {
		return err
	}
	defer closeLogger()

	ctx, stop := withInterrupts(context.Background(), wf.Tracker)
	defer stop()
	return stepError(fn(ctx, wf))
}

// withInterrupts turns the first interrupt during a registration into a cancel request
// on the tracker, which lets the external tool stop and the step report a cancellation.
// Any other interrupt cancels the context.
func withInterrupts(parent context.Context, tracker *progress.Tracker) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, interruptSignals()...)
	done := make(chan struct{})

	go func() {
		requested := false
		for {
			select {
			case <-signals:
				state := tracker.Snapshot()
				if !requested && state.Known && !state.Finished {
					requested = true
					tracker.RequestCancel()
					continue
				}
				cancel()
				return
			case <-done:
				return
			}
		}
	}()

	return ctx, func() {
		signal.Stop(signals)
		close(done)
		cancel()
	}
}

// parseVec3 reads "X,Y,Z" in millimeters.
func parseVec3(raw string) (geom.Vec3, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return geom.Vec3{}, fmt.Errorf("expected X,Y,Z, got %q", raw)
	}
	var v geom.Vec3
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return geom.Vec3{}, fmt.Errorf("invalid coordinate %q in %q", part, raw)
		}
		v[i] = value
	}
	return v, nil
}

func isTTY(file *os.File) bool {
	stat, err := file.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func stdinIsTTY(app *AppContext) bool {
	file, ok := app.IO.In.(*os.File)
	return ok && isTTY(file)
}
