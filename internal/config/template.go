package config

import "fmt"

func DefaultTemplate() string {
	cfg := DefaultConfig()
	return fmt.Sprintf(`version: 1
defaults:
  workspace: %q
  threads: %d
  command_timeout_seconds: %d
atlas:
  # Atlas_L.mha, Fiducial_L.fcsv, CochleaRegistrationMask_L.nrrd and the _R variants.
  dir: %q
elastix:
  elastix: "elastix"
  transformix: "transformix"
  # Leave empty to use the built-in rigid parameter file.
  parameter_file: ""
  # resample: transformix onto the atlas grid; harden: keep voxels, move geometry.
  output: "resample"
resample:
  preset_um: 154
  interpolation: "linear"
crop:
  fill_value: -3000
save:
  format: "nii"
`, cfg.Defaults.Workspace, cfg.Defaults.Threads, cfg.Defaults.CommandTimeoutSeconds, cfg.Atlas.Dir)
}
