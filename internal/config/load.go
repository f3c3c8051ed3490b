package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type LoadOptions struct {
	ExplicitPath string
	WorkingDir   string
	Env          map[string]string
}

type fileConfig struct {
	Version  *int         `yaml:"version"`
	Defaults fileDefaults `yaml:"defaults"`
	Atlas    fileAtlas    `yaml:"atlas"`
	Elastix  fileElastix  `yaml:"elastix"`
	Resample fileResample `yaml:"resample"`
	Crop     fileCrop     `yaml:"crop"`
	Save     fileSave     `yaml:"save"`
}

type fileDefaults struct {
	Workspace             *string `yaml:"workspace"`
	Threads               *int    `yaml:"threads"`
	CommandTimeoutSeconds *int    `yaml:"command_timeout_seconds"`
}

type fileAtlas struct {
	Dir *string `yaml:"dir"`
}

type fileElastix struct {
	Elastix       *string `yaml:"elastix"`
	Transformix   *string `yaml:"transformix"`
	ParameterFile *string `yaml:"parameter_file"`
	Output        *string `yaml:"output"`
	MinVersion    *string `yaml:"min_version"`
}

type fileResample struct {
	PresetMicrometers *int    `yaml:"preset_um"`
	Interpolation     *string `yaml:"interpolation"`
}

type fileCrop struct {
	FillValue *float64 `yaml:"fill_value"`
}

type fileSave struct {
	Format *string `yaml:"format"`
}

func Load(opts LoadOptions) (Config, error) {
	cfg := DefaultConfig()

	cwd := opts.WorkingDir
	if strings.TrimSpace(cwd) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("resolve working directory: %w", err)
		}
		cwd = wd
	}

	env := opts.Env
	if env == nil {
		env = osEnvMap()
	}

	if explicit := strings.TrimSpace(opts.ExplicitPath); explicit != "" {
		if err := mergeFile(&cfg, explicit, true); err != nil {
			return Config{}, err
		}
	} else {
		userPath, err := UserConfigPath()
		if err != nil {
			return Config{}, err
		}
		if err := mergeFile(&cfg, userPath, false); err != nil {
			return Config{}, err
		}

		if err := mergeFile(&cfg, ProjectConfigPath(cwd), false); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg, env); err != nil {
		return Config{}, err
	}

	normalize(&cfg)
	return cfg, nil
}

func mergeFile(cfg *Config, path string, required bool) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file does not exist: %s", path)
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(payload, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Version != nil {
		cfg.Version = *fc.Version
	}
	mergeString(&cfg.Defaults.Workspace, fc.Defaults.Workspace)
	mergeInt(&cfg.Defaults.Threads, fc.Defaults.Threads)
	mergeInt(&cfg.Defaults.CommandTimeoutSeconds, fc.Defaults.CommandTimeoutSeconds)

	mergeString(&cfg.Atlas.Dir, fc.Atlas.Dir)

	mergeString(&cfg.Elastix.Elastix, fc.Elastix.Elastix)
	mergeString(&cfg.Elastix.Transformix, fc.Elastix.Transformix)
	mergeString(&cfg.Elastix.ParameterFile, fc.Elastix.ParameterFile)
	mergeString(&cfg.Elastix.MinVersion, fc.Elastix.MinVersion)
	if fc.Elastix.Output != nil {
		cfg.Elastix.Output = RegistrationOutput(strings.TrimSpace(*fc.Elastix.Output))
	}

	mergeInt(&cfg.Resample.PresetMicrometers, fc.Resample.PresetMicrometers)
	mergeString(&cfg.Resample.Interpolation, fc.Resample.Interpolation)

	if fc.Crop.FillValue != nil {
		cfg.Crop.FillValue = *fc.Crop.FillValue
	}
	mergeString(&cfg.Save.Format, fc.Save.Format)

	return nil
}

func mergeString(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}

func mergeInt(dst *int, value *int) {
	if value != nil {
		*dst = *value
	}
}

func applyEnvOverrides(cfg *Config, env map[string]string) error {
	if value := strings.TrimSpace(env["TBPREP_WORKSPACE"]); value != "" {
		cfg.Defaults.Workspace = value
	}
	if value := strings.TrimSpace(env["TBPREP_ATLAS_DIR"]); value != "" {
		cfg.Atlas.Dir = value
	}
	if value := strings.TrimSpace(env["TBPREP_ELASTIX"]); value != "" {
		cfg.Elastix.Elastix = value
	}
	if value := strings.TrimSpace(env["TBPREP_TRANSFORMIX"]); value != "" {
		cfg.Elastix.Transformix = value
	}
	if value := strings.TrimSpace(env["TBPREP_PARAMETER_FILE"]); value != "" {
		cfg.Elastix.ParameterFile = value
	}
	if value := strings.TrimSpace(env["TBPREP_THREADS"]); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid TBPREP_THREADS value %q: %w", value, err)
		}
		cfg.Defaults.Threads = parsed
	}
	if value := strings.TrimSpace(env["TBPREP_COMMAND_TIMEOUT_SECONDS"]); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid TBPREP_COMMAND_TIMEOUT_SECONDS value %q: %w", value, err)
		}
		cfg.Defaults.CommandTimeoutSeconds = parsed
	}
	return nil
}

func normalize(cfg *Config) {
	if cfg.Elastix.Output == "" {
		cfg.Elastix.Output = OutputResample
	}
	cfg.Elastix.Output = RegistrationOutput(strings.ToLower(string(cfg.Elastix.Output)))
	if strings.TrimSpace(cfg.Elastix.Elastix) == "" {
		cfg.Elastix.Elastix = "elastix"
	}
	if strings.TrimSpace(cfg.Elastix.Transformix) == "" {
		cfg.Elastix.Transformix = "transformix"
	}
	cfg.Save.Format = strings.TrimPrefix(strings.ToLower(cfg.Save.Format), ".")
}

func osEnvMap() map[string]string {
	result := map[string]string{}
	for _, pair := range os.Environ() {
		pieces := strings.SplitN(pair, "=", 2)
		if len(pieces) == 2 {
			result[pieces[0]] = pieces[1]
		}
	}
	return result
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}
	return nil
}
