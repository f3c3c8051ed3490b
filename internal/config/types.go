package config

import "github.com/jaa/tbprep/internal/elastix"

// RegistrationOutput selects how the rigid step turns the elastix transform into the
// registered volume.
type RegistrationOutput string

const (
	// OutputResample runs transformix and resamples the moving volume onto the atlas grid.
	OutputResample RegistrationOutput = "resample"
	// OutputHarden keeps the moving voxels and bakes the transform into the geometry.
	OutputHarden RegistrationOutput = "harden"
)

type Config struct {
	Version  int            `yaml:"version"`
	Defaults Defaults       `yaml:"defaults"`
	Atlas    AtlasConfig    `yaml:"atlas"`
	Elastix  ElastixConfig  `yaml:"elastix"`
	Resample ResampleConfig `yaml:"resample"`
	Crop     CropConfig     `yaml:"crop"`
	Save     SaveConfig     `yaml:"save"`
}

type Defaults struct {
	Workspace             string `yaml:"workspace"`
	Threads               int    `yaml:"threads"`
	CommandTimeoutSeconds int    `yaml:"command_timeout_seconds"`
}

type AtlasConfig struct {
	Dir string `yaml:"dir"`
}

type ElastixConfig struct {
	Elastix       string             `yaml:"elastix"`
	Transformix   string             `yaml:"transformix"`
	ParameterFile string             `yaml:"parameter_file,omitempty"`
	Output        RegistrationOutput `yaml:"output"`
	MinVersion    string             `yaml:"min_version,omitempty"`
}

type ResampleConfig struct {
	PresetMicrometers int    `yaml:"preset_um"`
	Interpolation     string `yaml:"interpolation"`
}

type CropConfig struct {
	FillValue float64 `yaml:"fill_value"`
}

type SaveConfig struct {
	Format string `yaml:"format"`
}

func DefaultConfig() Config {
	return Config{
		Version: 1,
		Defaults: Defaults{
			Workspace:             defaultWorkspace(),
			Threads:               defaultThreads(),
			CommandTimeoutSeconds: 3600,
		},
		Atlas: AtlasConfig{
			Dir: defaultAtlasDir(),
		},
		Elastix: ElastixConfig{
			Elastix:     "elastix",
			Transformix: "transformix",
			Output:      OutputResample,
			MinVersion:  elastix.MinVersion,
		},
		Resample: ResampleConfig{
			PresetMicrometers: 154,
			Interpolation:     "linear",
		},
		Crop: CropConfig{
			FillValue: -3000,
		},
		Save: SaveConfig{
			Format: "nii",
		},
	}
}
