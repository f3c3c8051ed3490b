package resample

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jaa/tbprep/internal/geom"
)

type Interpolation string

const (
	Linear       Interpolation = "linear"
	Nearest      Interpolation = "nearest"
	BSpline      Interpolation = "bspline"
	Gaussian     Interpolation = "gaussian"
	HammingSinc  Interpolation = "hamming-sinc"
	BlackmanSinc Interpolation = "blackman-sinc"
	CosineSinc   Interpolation = "cosine-sinc"
	WelchSinc    Interpolation = "welch-sinc"
	LanczosSinc  Interpolation = "lanczos-sinc"
)

const DefaultMethod = Linear

type InterpolationInfo struct {
	Name  Interpolation
	Title string
}

// Interpolations is ordered as offered to the user.
var Interpolations = []InterpolationInfo{
	{Name: Linear, Title: "Linear"},
	{Name: Nearest, Title: "Nearest neighbour"},
	{Name: BSpline, Title: "B-spline"},
	{Name: Gaussian, Title: "Gaussian"},
	{Name: HammingSinc, Title: "Hamming windowed sinc"},
	{Name: BlackmanSinc, Title: "Blackman windowed sinc"},
	{Name: CosineSinc, Title: "Cosine windowed sinc"},
	{Name: WelchSinc, Title: "Welch windowed sinc"},
	{Name: LanczosSinc, Title: "Lanczos windowed sinc"},
}

// ParseInterpolation accepts a method name or its display title, case-insensitively.
func ParseInterpolation(raw string) (Interpolation, error) {
	needle := strings.ToLower(strings.TrimSpace(raw))
	if needle == "" {
		return DefaultMethod, nil
	}
	for _, info := range Interpolations {
		if needle == string(info.Name) || needle == strings.ToLower(info.Title) {
			return info.Name, nil
		}
	}
	names := make([]string, 0, len(Interpolations))
	for _, info := range Interpolations {
		names = append(names, string(info.Name))
	}
	return "", fmt.Errorf("unknown interpolation %q (expected one of: %s)", raw, strings.Join(names, ", "))
}

func (i Interpolation) Title() string {
	for _, info := range Interpolations {
		if info.Name == i {
			return info.Title
		}
	}
	return string(i)
}

type Preset struct {
	Micrometers [3]int
	Title       string
}

var Presets = []Preset{
	{Micrometers: [3]int{154, 154, 154}, Title: "X:154um, Y:154um, Z:154um"},
	{Micrometers: [3]int{50, 50, 50}, Title: "X:50um, Y:50um, Z:50um"},
}

// LookupPreset finds an isotropic preset by its micrometer value.
func LookupPreset(um int) (Preset, error) {
	for _, p := range Presets {
		if p.Micrometers[0] == um {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("unknown resample preset %dum (expected 154 or 50)", um)
}

// SpacingFromMicrometers converts a per-axis spacing in micrometers to millimeters.
func SpacingFromMicrometers(um [3]float64) geom.Vec3 {
	return geom.Vec3{um[0] / 1000, um[1] / 1000, um[2] / 1000}
}

// ParseMicrometers reads "X,Y,Z" or a single isotropic value.
func ParseMicrometers(raw string) ([3]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) == 1 {
		parts = []string{parts[0], parts[0], parts[0]}
	}
	if len(parts) != 3 {
		return [3]float64{}, fmt.Errorf("spacing must be X,Y,Z in micrometers, got %q", raw)
	}
	var out [3]float64
	for axis, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return [3]float64{}, fmt.Errorf("invalid spacing %q: %w", part, err)
		}
		if !(value > 0) {
			return [3]float64{}, fmt.Errorf("spacing must be positive, got %q", part)
		}
		out[axis] = value
	}
	return out, nil
}

// OutputSize keeps the physical extent: round(size * oldSpacing / newSpacing) per axis,
// with the old spacing first rounded to three decimals.
func OutputSize(size [3]int, oldSpacing, newSpacing geom.Vec3) ([3]int, error) {
	var out [3]int
	for axis := 0; axis < 3; axis++ {
		if !(newSpacing[axis] > 0) {
			return out, fmt.Errorf("target spacing must be positive, got %v", newSpacing)
		}
		old := math.Round(oldSpacing[axis]*1000) / 1000
		n := int(math.Round(float64(size[axis]) * old / newSpacing[axis]))
		if n < 1 {
			n = 1
		}
		out[axis] = n
	}
	return out, nil
}

// ResampledName labels a resampled volume with its spacing in micrometers.
func ResampledName(name string, spacing geom.Vec3) string {
	um := [3]int{}
	for axis := 0; axis < 3; axis++ {
		um[axis] = int(math.Round(spacing[axis] * 1000))
	}
	if um[0] == um[1] && um[1] == um[2] {
		return fmt.Sprintf("%s_Resampled%dum", name, um[0])
	}
	return fmt.Sprintf("%s_Resampled%dx%dx%dum", name, um[0], um[1], um[2])
}
