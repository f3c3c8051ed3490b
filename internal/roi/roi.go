// Package roi models the axis-aligned crop box and extracts the region it covers.
package roi

import (
	"context"
	"fmt"
	"math"

	"github.com/jaa/tbprep/internal/geom"
	"github.com/jaa/tbprep/internal/resample"
	"github.com/jaa/tbprep/internal/volume"
)

const DefaultFillValue = -3000

// ROI is a box aligned with the RAS axes. Radius is the half-size along each axis.
type ROI struct {
	Center geom.Vec3 `yaml:"center" json:"center"`
	Radius geom.Vec3 `yaml:"radius" json:"radius"`
}

func (r ROI) Validate() error {
	for axis := 0; axis < 3; axis++ {
		if !(r.Radius[axis] > 0) {
			return fmt.Errorf("roi radius must be positive on every axis, got %s", r.Radius)
		}
	}
	return nil
}

// Bounds returns the RAS corners of the box.
func (r ROI) Bounds() (geom.Vec3, geom.Vec3) {
	return r.Center.Sub(r.Radius), r.Center.Add(r.Radius)
}

// FitToVolume returns the smallest RAS-aligned box enclosing every voxel of v,
// voxel edges included.
func FitToVolume(v *volume.Volume) ROI {
	lo := geom.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := geom.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, k := range []float64{-0.5, float64(v.Size[2]) - 0.5} {
		for _, j := range []float64{-0.5, float64(v.Size[1]) - 0.5} {
			for _, i := range []float64{-0.5, float64(v.Size[0]) - 0.5} {
				p := geom.LPSToRAS(v.IndexToPhysical(geom.Vec3{i, j, k}))
				for axis := 0; axis < 3; axis++ {
					lo[axis] = math.Min(lo[axis], p[axis])
					hi[axis] = math.Max(hi[axis], p[axis])
				}
			}
		}
	}
	return ROI{Center: lo.Add(hi).Scale(0.5), Radius: hi.Sub(lo).Scale(0.5)}
}

// Grid allocates the output volume for a crop of src: RAS-aligned, src spacing, first
// voxel centre half a voxel inside the lower box corner.
func (r ROI) Grid(src *volume.Volume) (*volume.Volume, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var size [3]int
	for axis := 0; axis < 3; axis++ {
		size[axis] = int(math.Round(2 * r.Radius[axis] / src.Spacing[axis]))
		if size[axis] < 1 {
			size[axis] = 1
		}
	}

	lo, _ := r.Bounds()
	firstRAS := lo.Add(src.Spacing.Scale(0.5))

	out := volume.New(size, src.Spacing, src.Type)
	out.Name = src.Name + "_Crop"
	out.Origin = geom.RASToLPS(firstRAS)
	out.Direction = geom.Mat3{{-1, 0, 0}, {0, -1, 0}, {0, 0, 1}}
	return out, nil
}

// Crop resamples src inside the box with linear interpolation; voxels outside src get fill.
func Crop(ctx context.Context, src *volume.Volume, r ROI, fill float64, threads int) (*volume.Volume, error) {
	out, err := r.Grid(src)
	if err != nil {
		return nil, err
	}
	if err := resample.ToGrid(ctx, src, out, resample.Linear, threads, fill); err != nil {
		return nil, fmt.Errorf("crop %s: %w", src.Name, err)
	}
	return out, nil
}
