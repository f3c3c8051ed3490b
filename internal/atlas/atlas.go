// Package atlas locates and loads the side-specific reference data: the atlas volume,
// its fiducial list and the cochlea registration mask.
package atlas

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jaa/tbprep/internal/fiducial"
	"github.com/jaa/tbprep/internal/volume"
)

type Side string

const (
	Left  Side = "L"
	Right Side = "R"
)

func ParseSide(raw string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "L", "LEFT":
		return Left, nil
	case "R", "RIGHT":
		return Right, nil
	default:
		return "", fmt.Errorf("invalid side %q (expected L or R)", raw)
	}
}

func (s Side) String() string {
	return string(s)
}

func (s Side) Title() string {
	if s == Right {
		return "right"
	}
	return "left"
}

var sideFromName = regexp.MustCompile(`\d+([A-Za-z])_`)

// DetectSide guesses the side from volume names such as "1234R_scan": digits, a side
// letter, then an underscore.
func DetectSide(name string) (Side, bool) {
	match := sideFromName.FindStringSubmatch(name)
	if match == nil {
		return "", false
	}
	switch match[1] {
	case "L":
		return Left, true
	case "R":
		return Right, true
	default:
		return "", false
	}
}

// Paths names the three resource files of one side.
type Paths struct {
	Side      Side   `yaml:"side" json:"side"`
	Volume    string `yaml:"volume" json:"volume"`
	Fiducials string `yaml:"fiducials" json:"fiducials"`
	Mask      string `yaml:"mask" json:"mask"`
}

func Resolve(dir string, side Side) Paths {
	return Paths{
		Side:      side,
		Volume:    filepath.Join(dir, "Atlas_"+string(side)+".mha"),
		Fiducials: filepath.Join(dir, "Fiducial_"+string(side)+".fcsv"),
		Mask:      filepath.Join(dir, "CochleaRegistrationMask_"+string(side)+".nrrd"),
	}
}

// Files lists the resource paths in load order.
func (p Paths) Files() []string {
	return []string{p.Volume, p.Fiducials, p.Mask}
}

// Missing returns the resource files that do not exist.
func (p Paths) Missing() []string {
	missing := []string{}
	for _, path := range p.Files() {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			missing = append(missing, path)
		}
	}
	return missing
}

// Atlas is the loaded reference data for one side.
type Atlas struct {
	Paths     Paths
	Volume    *volume.Volume
	Fiducials []fiducial.Point
	Mask      *volume.Volume
}

// Load reads all three resources of a side.
func Load(dir string, side Side) (*Atlas, error) {
	paths := Resolve(dir, side)
	if missing := paths.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("atlas files missing for side %s: %s", side, strings.Join(missing, ", "))
	}

	vol, err := volume.Read(paths.Volume)
	if err != nil {
		return nil, fmt.Errorf("load atlas volume: %w", err)
	}
	points, err := fiducial.ReadFile(paths.Fiducials)
	if err != nil {
		return nil, fmt.Errorf("load atlas fiducials: %w", err)
	}
	mask, err := volume.Read(paths.Mask)
	if err != nil {
		return nil, fmt.Errorf("load registration mask: %w", err)
	}
	return &Atlas{Paths: paths, Volume: vol, Fiducials: points, Mask: mask}, nil
}
