package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jaa/tbprep/internal/atlas"
	"github.com/jaa/tbprep/internal/config"
	"github.com/jaa/tbprep/internal/elastix"
	"github.com/jaa/tbprep/internal/workflow"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

type Check struct {
	Severity Severity `json:"severity"`
	Name     string   `json:"name"`
	Message  string   `json:"message"`
}

type Report struct {
	Checks []Check `json:"checks"`
}

func (r Report) HasErrors() bool {
	return r.ErrorCount() > 0
}

func (r Report) ErrorCount() int {
	count := 0
	for _, check := range r.Checks {
		if check.Severity == SeverityError {
			count++
		}
	}
	return count
}

func (r *Report) add(severity Severity, name, format string, args ...any) {
	r.Checks = append(r.Checks, Check{Severity: severity, Name: name, Message: fmt.Sprintf(format, args...)})
}

type Checker struct {
	LookPath      func(string) (string, error)
	ReadVersion   func(context.Context, string) (string, error)
	CheckWritable func(string) error
	Stat          func(string) (os.FileInfo, error)
	Matrix        map[string]dependencyMatrixRule
}

func NewChecker() *Checker {
	return &Checker{
		LookPath:      exec.LookPath,
		ReadVersion:   defaultReadVersion,
		CheckWritable: checkDirWritable,
		Stat:          os.Stat,
		Matrix:        defaultDependencyMatrix(),
	}
}

func (c *Checker) Check(ctx context.Context, cfg config.Config) Report {
	report := Report{Checks: []Check{}}

	for _, dep := range requiredBinaries(cfg, c.matrix()) {
		c.checkDependency(ctx, &report, dep)
	}
	c.checkAtlas(&report, cfg)
	c.checkParameterFile(&report, cfg)
	c.checkWorkspace(&report, cfg)
	return report
}

func (c *Checker) checkDependency(ctx context.Context, report *Report, dep dependency) {
	missingSeverity := SeverityError
	if dep.Optional {
		missingSeverity = SeverityWarn
	}
	location, err := c.LookPath(dep.Binary)
	if err != nil {
		report.add(missingSeverity, "dependency", "%s not found in PATH", dep.Binary)
		return
	}
	report.add(SeverityInfo, "dependency", "%s found at %s", dep.Binary, location)

	output, err := c.ReadVersion(ctx, location)
	if err != nil {
		report.add(SeverityWarn, "dependency", "%s version could not be read: %v", dep.Binary, err)
		return
	}
	version, err := extractVersion(output)
	if err != nil {
		report.add(SeverityWarn, "dependency", "%s version output is unrecognized: %q", dep.Binary, strings.TrimSpace(output))
		return
	}
	if compareVersions(version, dep.MinVersion) < 0 {
		report.add(missingSeverity, "dependency", "%s version %s is below minimum %s", dep.Binary, version, dep.MinVersion)
		return
	}
	if dep.Matrix != nil {
		if reason, knownBad := dep.Matrix.KnownBad[version]; knownBad {
			report.add(missingSeverity, "dependency", "%s version %s is blocked by compatibility matrix: %s", dep.Binary, version, reason)
			return
		}
		if upper := dep.Matrix.MaxVersionExclusive; upper != "" && compareVersions(version, upper) >= 0 {
			report.add(SeverityWarn, "dependency", "%s version %s is newer than the tested range >=%s and <%s", dep.Binary, version, dep.MinVersion, upper)
			return
		}
	}
	report.add(SeverityInfo, "dependency", "%s version %s is compatible", dep.Binary, version)
}

// checkAtlas needs at least one complete side; a missing side is only a warning.
func (c *Checker) checkAtlas(report *Report, cfg config.Config) {
	dir, err := config.ExpandPath(cfg.Atlas.Dir)
	if err != nil || dir == "" {
		report.add(SeverityError, "atlas", "atlas.dir is invalid: %v", err)
		return
	}
	complete := 0
	for _, side := range []atlas.Side{atlas.Left, atlas.Right} {
		missing := []string{}
		for _, path := range atlas.Resolve(dir, side).Files() {
			if _, err := c.Stat(path); err != nil {
				missing = append(missing, filepath.Base(path))
			}
		}
		if len(missing) > 0 {
			report.add(SeverityWarn, "atlas", "%s side atlas incomplete in %s, missing: %s", side.Title(), dir, strings.Join(missing, ", "))
			continue
		}
		complete++
		report.add(SeverityInfo, "atlas", "%s side atlas found in %s", side.Title(), dir)
	}
	if complete == 0 {
		report.add(SeverityError, "atlas", "no complete atlas side in %s", dir)
	}
}

func (c *Checker) checkParameterFile(report *Report, cfg config.Config) {
	if strings.TrimSpace(cfg.Elastix.ParameterFile) == "" {
		report.add(SeverityInfo, "registration", "using the built-in rigid parameter file")
		return
	}
	path, err := config.ResolveInWorkspace(cfg.Defaults.Workspace, cfg.Elastix.ParameterFile)
	if err != nil {
		report.add(SeverityError, "registration", "elastix.parameter_file is invalid: %v", err)
		return
	}
	if _, err := c.Stat(path); err != nil {
		report.add(SeverityError, "registration", "parameter file %s is not readable: %v", path, err)
		return
	}
	report.add(SeverityInfo, "registration", "parameter file %s found", path)
}

func (c *Checker) checkWorkspace(report *Report, cfg config.Config) {
	workspace, err := config.ExpandPath(cfg.Defaults.Workspace)
	if err != nil || workspace == "" {
		report.add(SeverityError, "filesystem", "defaults.workspace is invalid: %v", err)
		return
	}
	if err := c.CheckWritable(workspace); err != nil {
		report.add(SeverityError, "filesystem", "workspace %s is not writable: %v", workspace, err)
		return
	}
	report.add(SeverityInfo, "filesystem", "workspace %s is writable", workspace)
	if holder, busy := workflow.LockHolder(workspace); busy {
		report.add(SeverityWarn, "filesystem", "workspace is locked (%s); remove the lock file if no step is running", strings.TrimSpace(holder))
	}
}

type dependency struct {
	Binary     string
	MinVersion string
	Optional   bool
	Matrix     *dependencyMatrixRule
}

type dependencyMatrixRule struct {
	MinVersion          string
	MaxVersionExclusive string
	KnownBad            map[string]string
}

func defaultDependencyMatrix() map[string]dependencyMatrixRule {
	return map[string]dependencyMatrixRule{
		"elastix": {
			MinVersion:          elastix.MinVersion,
			MaxVersionExclusive: "6.0.0",
			KnownBad:            map[string]string{},
		},
	}
}

func (c *Checker) matrix() map[string]dependencyMatrixRule {
	if len(c.Matrix) == 0 {
		return defaultDependencyMatrix()
	}
	return c.Matrix
}

// requiredBinaries lists elastix and transformix. transformix is optional when the
// registered volume is produced by hardening.
func requiredBinaries(cfg config.Config, matrix map[string]dependencyMatrixRule) []dependency {
	minVersion := elastix.MinVersion
	var rule *dependencyMatrixRule
	if found, ok := matrix["elastix"]; ok {
		rule = &found
		if found.MinVersion != "" {
			minVersion = found.MinVersion
		}
	}
	minVersion = maxVersion(minVersion, minVersionOrDefault(cfg.Elastix.MinVersion, minVersion))

	return []dependency{
		{Binary: cfg.Elastix.Elastix, MinVersion: minVersion, Matrix: rule},
		{Binary: cfg.Elastix.Transformix, MinVersion: minVersion, Matrix: rule, Optional: cfg.Elastix.Output == config.OutputHarden},
	}
}

func maxVersion(lhs string, rhs string) string {
	if compareVersions(lhs, rhs) >= 0 {
		return lhs
	}
	return rhs
}

func minVersionOrDefault(candidate string, fallback string) string {
	if strings.TrimSpace(candidate) == "" {
		return fallback
	}
	return candidate
}

func defaultReadVersion(ctx context.Context, binary string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// checkDirWritable probes path, or its closest existing parent when path does not exist
// yet, by creating and removing a temp file.
func checkDirWritable(path string) error {
	dir := path
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return err
		}
		dir = parent
	}

	file, err := os.CreateTemp(dir, ".tbprep-write-check-*")
	if err != nil {
		return err
	}
	name := file.Name()
	_ = file.Close()
	_ = os.Remove(name)
	return nil
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// extractVersion finds "major.minor[.patch]"; elastix prints "elastix version: 5.1".
func extractVersion(raw string) (string, error) {
	matches := versionPattern.FindStringSubmatch(raw)
	if matches == nil {
		return "", fmt.Errorf("no version found")
	}
	patch := matches[3]
	if patch == "" {
		patch = "0"
	}
	return fmt.Sprintf("%s.%s.%s", matches[1], matches[2], patch), nil
}

func compareVersions(lhs string, rhs string) int {
	leftParts := strings.Split(lhs, ".")
	rightParts := strings.Split(rhs, ".")
	for i := 0; i < 3; i++ {
		leftValue := 0
		rightValue := 0
		if i < len(leftParts) {
			leftValue, _ = strconv.Atoi(leftParts[i])
		}
		if i < len(rightParts) {
			rightValue, _ = strconv.Atoi(rightParts[i])
		}
		if leftValue > rightValue {
			return 1
		}
		if leftValue < rightValue {
			return -1
		}
	}
	return 0
}
