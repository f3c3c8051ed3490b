package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "tbprep"

func UserConfigPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); strings.TrimSpace(xdg) != "" {
		return filepath.Join(xdg, appName, "config.yaml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName, "config.yaml"), nil
}

func ProjectConfigPath(cwd string) string {
	return filepath.Join(cwd, appName+".yaml")
}

func defaultWorkspace() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); strings.TrimSpace(xdg) != "" {
		return filepath.Join(xdg, appName, "workspace")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./.tbprep-workspace"
	}
	return filepath.Join(home, ".local", "state", appName, "workspace")
}

func defaultAtlasDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); strings.TrimSpace(xdg) != "" {
		return filepath.Join(xdg, appName, "atlas")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./atlas"
	}
	return filepath.Join(home, ".local", "share", appName, "atlas")
}

func defaultThreads() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

func ExpandPath(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}

	expanded := os.ExpandEnv(strings.TrimSpace(raw))
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~/"))
	}

	return filepath.Clean(expanded), nil
}

// ResolveInWorkspace expands path and anchors it under workspace when it is relative.
func ResolveInWorkspace(workspace string, path string) (string, error) {
	expandedPath, err := ExpandPath(path)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(expandedPath) {
		return expandedPath, nil
	}

	expandedWorkspace, err := ExpandPath(workspace)
	if err != nil {
		return "", err
	}

	return filepath.Clean(filepath.Join(expandedWorkspace, expandedPath)), nil
}
