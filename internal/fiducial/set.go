package fiducial

import (
	"fmt"
	"strings"

	"github.com/jaa/tbprep/internal/geom"
)

// MinimumPairs is the number of placed landmarks a rigid fit needs.
const MinimumPairs = 3

// Entry pairs one atlas landmark with its counterpart on the input volume.
type Entry struct {
	Label  string    `yaml:"label" json:"label"`
	Atlas  geom.Vec3 `yaml:"atlas" json:"atlas"`
	Input  geom.Vec3 `yaml:"input" json:"input"`
	Placed bool      `yaml:"placed" json:"placed"`
}

// Set holds one entry per atlas label, in atlas order.
type Set struct {
	Entries []Entry `yaml:"entries" json:"entries"`
}

// NewSet builds an empty set from the atlas fiducial list. Labels must be unique.
func NewSet(atlas []Point) (*Set, error) {
	if len(atlas) == 0 {
		return nil, fmt.Errorf("atlas fiducial list is empty")
	}
	seen := map[string]bool{}
	set := &Set{Entries: make([]Entry, 0, len(atlas))}
	for _, p := range atlas {
		label := strings.TrimSpace(p.Label)
		if label == "" {
			return nil, fmt.Errorf("atlas fiducial without label at %s", p.Position)
		}
		if seen[label] {
			return nil, fmt.Errorf("duplicate atlas fiducial label %q", label)
		}
		seen[label] = true
		set.Entries = append(set.Entries, Entry{Label: label, Atlas: p.Position})
	}
	return set, nil
}

func (s *Set) find(label string) (*Entry, error) {
	needle := strings.TrimSpace(label)
	for i := range s.Entries {
		if s.Entries[i].Label == needle {
			return &s.Entries[i], nil
		}
	}
	return nil, fmt.Errorf("unknown fiducial label %q (expected one of: %s)", label, strings.Join(s.Labels(), ", "))
}

func (s *Set) Labels() []string {
	labels := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		labels = append(labels, e.Label)
	}
	return labels
}

// Place records the input position (RAS) for label, replacing any earlier placement.
func (s *Set) Place(label string, position geom.Vec3) error {
	entry, err := s.find(label)
	if err != nil {
		return err
	}
	entry.Input = position
	entry.Placed = true
	return nil
}

func (s *Set) Clear(label string) error {
	entry, err := s.find(label)
	if err != nil {
		return err
	}
	entry.Input = geom.Vec3{}
	entry.Placed = false
	return nil
}

// Import places every point whose label matches an atlas label and returns the labels
// that did not match.
func (s *Set) Import(points []Point) (int, []string) {
	placed := 0
	ignored := []string{}
	for _, p := range points {
		if err := s.Place(p.Label, p.Position); err != nil {
			ignored = append(ignored, p.Label)
			continue
		}
		placed++
	}
	return placed, ignored
}

func (s *Set) PlacedCount() int {
	count := 0
	for _, e := range s.Entries {
		if e.Placed {
			count++
		}
	}
	return count
}

func (s *Set) Ready() bool {
	return s != nil && s.PlacedCount() >= MinimumPairs
}

// InputPoints returns the placed input landmarks, for export.
func (s *Set) InputPoints() []Point {
	points := []Point{}
	for _, e := range s.Entries {
		if e.Placed {
			points = append(points, Point{Label: e.Label, Position: e.Input})
		}
	}
	return points
}

// Fit estimates the rigid transform, in LPS, that carries the input landmarks onto the
// atlas landmarks. Only labels placed on the input take part.
func (s *Set) Fit() (geom.Rigid, float64, error) {
	if !s.Ready() {
		return geom.Rigid{}, 0, fmt.Errorf("at least %d placed fiducials are required, have %d", MinimumPairs, s.PlacedCount())
	}
	moving := []geom.Vec3{}
	fixed := []geom.Vec3{}
	for _, e := range s.Entries {
		if !e.Placed {
			continue
		}
		moving = append(moving, geom.RASToLPS(e.Input))
		fixed = append(fixed, geom.RASToLPS(e.Atlas))
	}
	return geom.FitRigid(moving, fixed)
}
