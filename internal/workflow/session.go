package workflow

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/jaa/tbprep/internal/atlas"
	"github.com/jaa/tbprep/internal/fileops"
	"github.com/jaa/tbprep/internal/fiducial"
	"github.com/jaa/tbprep/internal/geom"
	"github.com/jaa/tbprep/internal/roi"
	"github.com/jaa/tbprep/internal/volume"
	"gopkg.in/yaml.v3"
)

const (
	sessionFileName = "session.yaml"
	sessionVersion  = 1
	volumesDir      = "volumes"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// VolumeRef points at a volume file. Transform, when set, is a rigid map (LPS) that is
// attached to the volume but not hardened into its geometry.
type VolumeRef struct {
	Name      string      `yaml:"name" json:"name"`
	Path      string      `yaml:"path" json:"path"`
	Transform *geom.Rigid `yaml:"transform,omitempty" json:"transform,omitempty"`
}

type RigidStatus string

const (
	RigidRunning   RigidStatus = "running"
	RigidFinished  RigidStatus = "finished"
	RigidCancelled RigidStatus = "cancelled"
	RigidFailed    RigidStatus = "failed"
)

// RigidRun records the last intensity-based registration.
type RigidRun struct {
	Status        RigidStatus `yaml:"status" json:"status"`
	Percent       int         `yaml:"percent" json:"percent"`
	LastStatus    string      `yaml:"last_status,omitempty" json:"last_status,omitempty"`
	OutputDir     string      `yaml:"output_dir" json:"output_dir"`
	TransformFile string      `yaml:"transform_file,omitempty" json:"transform_file,omitempty"`
	// Transform maps atlas points to moving points (LPS), as elastix reports it.
	Transform *geom.Rigid `yaml:"transform,omitempty" json:"transform,omitempty"`
	Output    string      `yaml:"output,omitempty" json:"output,omitempty"`
	Started   time.Time   `yaml:"started" json:"started"`
	Finished  time.Time   `yaml:"finished,omitempty" json:"finished,omitempty"`
}

// Session is the state that carries over between steps.
type Session struct {
	Version        int           `yaml:"version" json:"version"`
	Input          *VolumeRef    `yaml:"input,omitempty" json:"input,omitempty"`
	Side           atlas.Side    `yaml:"side,omitempty" json:"side,omitempty"`
	Atlas          *atlas.Paths  `yaml:"atlas,omitempty" json:"atlas,omitempty"`
	InputSpacingUm [3]int        `yaml:"input_spacing_um" json:"input_spacing_um"`
	Moving         *VolumeRef    `yaml:"moving,omitempty" json:"moving,omitempty"`
	Intermediate   *VolumeRef    `yaml:"intermediate,omitempty" json:"intermediate,omitempty"`
	FiducialRMS    float64       `yaml:"fiducial_rms,omitempty" json:"fiducial_rms,omitempty"`
	Fiducials      *fiducial.Set `yaml:"fiducials,omitempty" json:"fiducials,omitempty"`
	ROI            *roi.ROI      `yaml:"roi,omitempty" json:"roi,omitempty"`
	Rigid          *RigidRun     `yaml:"rigid,omitempty" json:"rigid,omitempty"`
	History        []VolumeRef   `yaml:"history,omitempty" json:"history,omitempty"`
	UpdatedAt      time.Time     `yaml:"updated_at" json:"updated_at"`
}

func NewSession() *Session {
	return &Session{Version: sessionVersion}
}

func SessionPath(workspace string) string {
	return filepath.Join(workspace, sessionFileName)
}

// LoadSession reads the workspace session; a missing file yields an empty session.
func LoadSession(workspace string) (*Session, error) {
	path := SessionPath(workspace)
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewSession(), nil
		}
		return nil, fmt.Errorf("read session %s: %w", path, err)
	}
	session := NewSession()
	if err := yaml.Unmarshal(payload, session); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	if session.Version != sessionVersion {
		return nil, fmt.Errorf("session %s has unsupported version %d", path, session.Version)
	}
	return session, nil
}

func SaveSession(workspace string, session *Session) error {
	return fileops.WriteFileAtomic(SessionPath(workspace), func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(session); err != nil {
			return err
		}
		return enc.Close()
	})
}

// Started reports whether an input and a side were selected.
func (s *Session) Started() bool {
	return s.Input != nil && s.Side != "" && s.Atlas != nil && s.Fiducials != nil
}

func (s *Session) setMoving(ref VolumeRef) {
	moving := ref
	s.Moving = &moving
	s.History = append(s.History, ref)
}

// volumePath names the workspace file a produced volume is written to.
func volumePath(workspace, name string) string {
	safe := unsafeNameChars.ReplaceAllString(name, "_")
	if safe == "" {
		safe = "volume"
	}
	return filepath.Join(workspace, volumesDir, safe+".nrrd")
}

func loadVolume(ref *VolumeRef) (*volume.Volume, error) {
	v, err := volume.Read(ref.Path)
	if err != nil {
		return nil, err
	}
	v.Name = ref.Name
	return v, nil
}
