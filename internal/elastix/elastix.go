// Package elastix drives the external elastix and transformix tools for intensity-based
// rigid registration and reads back the transform they estimate.
package elastix

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jaa/tbprep/internal/engine"
	"github.com/jaa/tbprep/internal/geom"
)

const (
	MinVersion          = "4.9.0"
	TransformFileName   = "TransformParameters.0.txt"
	transformixSubdir   = "transformix"
	transformixInputTP  = "TransformParameters.resample.txt"
	transformixOutImage = "result.nii"
)

type Tools struct {
	Elastix     string
	Transformix string
	Threads     int
	Timeout     time.Duration
}

// Request names the files of one registration run. Paths must be readable by ITK.
type Request struct {
	Fixed         string
	Moving        string
	FixedMask     string
	MovingMask    string
	ParameterFile string
	OutputDir     string
}

func (r Request) Validate() error {
	missing := []string{}
	for name, value := range map[string]string{
		"fixed image":    r.Fixed,
		"moving image":   r.Moving,
		"parameter file": r.ParameterFile,
		"output dir":     r.OutputDir,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("registration request is missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (t Tools) RegisterSpec(req Request) (engine.ExecSpec, error) {
	if err := req.Validate(); err != nil {
		return engine.ExecSpec{}, err
	}
	bin := t.Elastix
	if bin == "" {
		bin = "elastix"
	}
	args := []string{"-f", req.Fixed, "-m", req.Moving}
	if req.FixedMask != "" {
		args = append(args, "-fMask", req.FixedMask)
	}
	if req.MovingMask != "" {
		args = append(args, "-mMask", req.MovingMask)
	}
	args = append(args, "-p", req.ParameterFile, "-out", req.OutputDir)
	if t.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(t.Threads))
	}
	return engine.ExecSpec{
		Bin:            bin,
		Args:           args,
		Dir:            req.OutputDir,
		Timeout:        t.Timeout,
		DisplayCommand: formatCommand(bin, args),
	}, nil
}

func (t Tools) TransformSpec(transformFile, input, outputDir string) engine.ExecSpec {
	bin := t.Transformix
	if bin == "" {
		bin = "transformix"
	}
	args := []string{"-tp", transformFile, "-in", input, "-out", outputDir}
	if t.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(t.Threads))
	}
	return engine.ExecSpec{
		Bin:            bin,
		Args:           args,
		Dir:            outputDir,
		Timeout:        t.Timeout,
		DisplayCommand: formatCommand(bin, args),
	}
}

func formatCommand(bin string, args []string) string {
	parts := []string{bin}
	parts = append(parts, args...)
	return strings.Join(parts, " ")
}

// ToolError reports a failed external tool run.
type ToolError struct {
	Tool   string
	Result engine.ExecResult
}

func (e *ToolError) Error() string {
	return e.Result.Failure(e.Tool)
}

func (e *ToolError) Unwrap() error {
	return e.Result.Err
}

type Registration struct {
	Tools  Tools
	Runner engine.ExecRunner
}

// Stream carries the per-run hooks: every output line goes to OnLine and closing Cancel
// stops the running tool.
type Stream struct {
	OnLine func(line string)
	Cancel <-chan struct{}
}

type Result struct {
	// Transform maps fixed (atlas) points to moving points, in LPS.
	Transform     geom.Rigid
	TransformFile string
	Duration      time.Duration
}

// Register runs elastix and parses the transform it writes.
func (r *Registration) Register(ctx context.Context, req Request, stream Stream) (Result, error) {
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create registration output dir: %w", err)
	}
	spec, err := r.Tools.RegisterSpec(req)
	if err != nil {
		return Result{}, err
	}
	spec.OnLine = stream.OnLine
	spec.Cancel = stream.Cancel

	run := r.Runner.Run(ctx, spec)
	if err := checkResult("elastix", run); err != nil {
		return Result{}, err
	}

	transformFile := filepath.Join(req.OutputDir, TransformFileName)
	params, err := ReadParameterFile(transformFile)
	if err != nil {
		return Result{}, fmt.Errorf("read elastix transform: %w", err)
	}
	transform, err := params.Transform(req.OutputDir)
	if err != nil {
		return Result{}, fmt.Errorf("read elastix transform: %w", err)
	}
	return Result{Transform: transform, TransformFile: transformFile, Duration: run.Duration}, nil
}

// Resample runs transformix to warp input onto the fixed grid of a finished registration
// and returns the path of the written image.
func (r *Registration) Resample(ctx context.Context, transformFile, input string, stream Stream) (string, error) {
	params, err := ReadParameterFile(transformFile)
	if err != nil {
		return "", err
	}
	params.Set("WriteResultImage", "true")
	params.Set("ResultImageFormat", "nii")
	params.Set("CompressResultImage", "false")

	outDir := filepath.Join(filepath.Dir(transformFile), transformixSubdir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create transformix output dir: %w", err)
	}
	tpPath := filepath.Join(outDir, transformixInputTP)
	f, err := os.Create(tpPath)
	if err != nil {
		return "", fmt.Errorf("write transformix parameters: %w", err)
	}
	if _, err := params.WriteTo(f); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write transformix parameters: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write transformix parameters: %w", err)
	}

	spec := r.Tools.TransformSpec(tpPath, input, outDir)
	spec.OnLine = stream.OnLine
	spec.Cancel = stream.Cancel
	if err := checkResult("transformix", r.Runner.Run(ctx, spec)); err != nil {
		return "", err
	}
	result := filepath.Join(outDir, transformixOutImage)
	if _, err := os.Stat(result); err != nil {
		return "", fmt.Errorf("transformix did not write %s: %w", result, err)
	}
	return result, nil
}

func checkResult(tool string, run engine.ExecResult) error {
	switch {
	case run.Cancelled:
		return fmt.Errorf("%s: %w", tool, engine.ErrCancelled)
	case run.Interrupted:
		return fmt.Errorf("%s interrupted: %w", tool, context.Canceled)
	case run.TimedOut:
		return fmt.Errorf("%s: %w", tool, engine.ErrTimedOut)
	case run.ExitCode != 0 || run.Err != nil:
		return &ToolError{Tool: tool, Result: run}
	}
	return nil
}

// IsCancelled reports whether err comes from a user cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, engine.ErrCancelled)
}
