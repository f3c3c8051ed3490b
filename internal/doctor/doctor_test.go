package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jaa/tbprep/internal/atlas"
	"github.com/jaa/tbprep/internal/config"
	"github.com/jaa/tbprep/internal/workflow"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Defaults.Workspace = filepath.Join(t.TempDir(), "workspace")
	cfg.Atlas.Dir = t.TempDir()
	return cfg
}

func writeSide(t *testing.T, dir string, side atlas.Side) {
	t.Helper()
	for _, path := range atlas.Resolve(dir, side).Files() {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func healthyChecker() *Checker {
	checker := NewChecker()
	checker.LookPath = func(name string) (string, error) { return "/usr/local/bin/" + name, nil }
	checker.ReadVersion = func(ctx context.Context, binary string) (string, error) {
		return "elastix version: 5.1.0\n", nil
	}
	return checker
}

func TestDoctorHealthySetup(t *testing.T) {
	cfg := baseConfig(t)
	writeSide(t, cfg.Atlas.Dir, atlas.Left)
	writeSide(t, cfg.Atlas.Dir, atlas.Right)

	report := healthyChecker().Check(context.Background(), cfg)
	if report.HasErrors() {
		t.Fatalf("expected no errors, got %+v", report.Checks)
	}
	if !hasInfoContaining(report, "workspace") || !hasInfoContaining(report, "built-in rigid parameter file") {
		t.Fatalf("expected workspace and parameter checks, got %+v", report.Checks)
	}
}

func TestDoctorMissingBinary(t *testing.T) {
	cfg := baseConfig(t)
	writeSide(t, cfg.Atlas.Dir, atlas.Left)
	checker := healthyChecker()
	checker.LookPath = func(name string) (string, error) { return "", fmt.Errorf("not found") }

	report := checker.Check(context.Background(), cfg)
	if !hasErrorContaining(report, "elastix not found") || !hasErrorContaining(report, "transformix not found") {
		t.Fatalf("expected missing binaries, got %+v", report.Checks)
	}
}

func TestDoctorTransformixOptionalWhenHardening(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Elastix.Output = config.OutputHarden
	writeSide(t, cfg.Atlas.Dir, atlas.Left)
	checker := healthyChecker()
	checker.LookPath = func(name string) (string, error) {
		if name == "transformix" {
			return "", fmt.Errorf("not found")
		}
		return "/usr/local/bin/" + name, nil
	}

	report := checker.Check(context.Background(), cfg)
	if report.HasErrors() {
		t.Fatalf("expected no errors, got %+v", report.Checks)
	}
	if !hasWarnContaining(report, "transformix not found") {
		t.Fatalf("expected transformix warning, got %+v", report.Checks)
	}
}

func TestDoctorBadVersion(t *testing.T) {
	cfg := baseConfig(t)
	writeSide(t, cfg.Atlas.Dir, atlas.Left)
	checker := healthyChecker()
	checker.ReadVersion = func(ctx context.Context, binary string) (string, error) { return "elastix version: 4.8", nil }

	report := checker.Check(context.Background(), cfg)
	if !hasErrorContaining(report, "4.8.0 is below minimum 4.9.0") {
		t.Fatalf("expected version incompatibility error, got %+v", report.Checks)
	}
}

func TestDoctorAtlasSides(t *testing.T) {
	cfg := baseConfig(t)
	report := healthyChecker().Check(context.Background(), cfg)
	if !hasErrorContaining(report, "no complete atlas side") {
		t.Fatalf("expected atlas error, got %+v", report.Checks)
	}

	writeSide(t, cfg.Atlas.Dir, atlas.Right)
	report = healthyChecker().Check(context.Background(), cfg)
	if report.HasErrors() {
		t.Fatalf("one side is enough, got %+v", report.Checks)
	}
	if !hasWarnContaining(report, "left side atlas incomplete") {
		t.Fatalf("expected warning for the missing left side, got %+v", report.Checks)
	}
}

func TestDoctorMissingParameterFile(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Elastix.ParameterFile = "/does/not/exist.txt"
	writeSide(t, cfg.Atlas.Dir, atlas.Left)

	report := healthyChecker().Check(context.Background(), cfg)
	if !hasErrorContaining(report, "parameter file /does/not/exist.txt is not readable") {
		t.Fatalf("expected parameter file error, got %+v", report.Checks)
	}
}

func TestDoctorUnwritableWorkspace(t *testing.T) {
	cfg := baseConfig(t)
	writeSide(t, cfg.Atlas.Dir, atlas.Left)
	checker := healthyChecker()
	checker.CheckWritable = func(path string) error { return fmt.Errorf("permission denied") }

	report := checker.Check(context.Background(), cfg)
	if !hasErrorContaining(report, "is not writable") {
		t.Fatalf("expected filesystem error, got %+v", report.Checks)
	}
}

func TestDoctorReportsStaleLock(t *testing.T) {
	cfg := baseConfig(t)
	writeSide(t, cfg.Atlas.Dir, atlas.Left)
	if _, err := workflow.AcquireLock(cfg.Defaults.Workspace, "rigid", time.Now()); err != nil {
		t.Fatalf("lock: %v", err)
	}

	report := healthyChecker().Check(context.Background(), cfg)
	if !hasWarnContaining(report, "workspace is locked (rigid by pid") {
		t.Fatalf("expected lock warning, got %+v", report.Checks)
	}
}

func TestCheckDirWritableUsesExistingParent(t *testing.T) {
	if err := checkDirWritable(filepath.Join(t.TempDir(), "not", "yet")); err != nil {
		t.Fatalf("expected parent probe to succeed, got %v", err)
	}
}

func TestExtractVersion(t *testing.T) {
	for raw, want := range map[string]string{
		"elastix version: 5.1":   "5.1.0",
		"transformix 4.9.0\n":    "4.9.0",
		"elastix version: 5.2.1": "5.2.1",
	} {
		got, err := extractVersion(raw)
		if err != nil || got != want {
			t.Fatalf("extractVersion(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := extractVersion("unknown"); err == nil {
		t.Fatalf("expected error for missing version")
	}
}

func hasErrorContaining(report Report, snippet string) bool {
	return hasCheck(report, SeverityError, snippet)
}

func hasWarnContaining(report Report, snippet string) bool {
	return hasCheck(report, SeverityWarn, snippet)
}

func hasInfoContaining(report Report, snippet string) bool {
	return hasCheck(report, SeverityInfo, snippet)
}

func hasCheck(report Report, severity Severity, snippet string) bool {
	for _, check := range report.Checks {
		if check.Severity == severity && strings.Contains(check.Message, snippet) {
			return true
		}
	}
	return false
}
