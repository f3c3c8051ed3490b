// Package volume holds the scalar volume model shared by every pipeline step and the
// codecs for the file formats the pipeline reads and writes.
//
// Geometry is stored in LPS physical space, the convention of ITK-based tools: a voxel
// index (i, j, k) maps to Origin + Direction * diag(Spacing) * (i, j, k).
package volume

import (
	"fmt"
	"math"

	"github.com/jaa/tbprep/internal/geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type DataType string

const (
	Uint8   DataType = "uint8"
	Int8    DataType = "int8"
	Uint16  DataType = "uint16"
	Int16   DataType = "int16"
	Uint32  DataType = "uint32"
	Int32   DataType = "int32"
	Float32 DataType = "float32"
	Float64 DataType = "float64"
)

func (t DataType) Size() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (t DataType) IsInteger() bool {
	switch t {
	case Float32, Float64:
		return false
	default:
		return t.Size() > 0
	}
}

func (t DataType) Range() (float64, float64) {
	switch t {
	case Uint8:
		return 0, math.MaxUint8
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Uint16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Float32:
		return -math.MaxFloat32, math.MaxFloat32
	default:
		return -math.MaxFloat64, math.MaxFloat64
	}
}

type Volume struct {
	Name      string
	Size      [3]int
	Spacing   geom.Vec3
	Origin    geom.Vec3
	Direction geom.Mat3
	Type      DataType
	Data      []float32
}

func New(size [3]int, spacing geom.Vec3, dataType DataType) *Volume {
	return &Volume{
		Size:      size,
		Spacing:   spacing,
		Direction: geom.Identity(),
		Type:      dataType,
		Data:      make([]float32, size[0]*size[1]*size[2]),
	}
}

// MaxVoxels bounds the voxel count a header may declare.
const MaxVoxels = 1 << 31

// CheckSize rejects non-positive axis lengths and grids above MaxVoxels, and returns
// the voxel count.
func CheckSize(size [3]int) (int, error) {
	count := 1
	for axis := 0; axis < 3; axis++ {
		if size[axis] <= 0 {
			return 0, fmt.Errorf("volume size must be positive, got %v", size)
		}
		if size[axis] > MaxVoxels/count {
			return 0, fmt.Errorf("volume size %v exceeds %d voxels", size, MaxVoxels)
		}
		count *= size[axis]
	}
	return count, nil
}

func (v *Volume) Len() int {
	return v.Size[0] * v.Size[1] * v.Size[2]
}

func (v *Volume) Offset(i, j, k int) int {
	return i + v.Size[0]*(j+v.Size[1]*k)
}

func (v *Volume) At(i, j, k int) float32 {
	return v.Data[v.Offset(i, j, k)]
}

func (v *Volume) Set(i, j, k int, value float32) {
	v.Data[v.Offset(i, j, k)] = value
}

func (v *Volume) Inside(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < v.Size[0] && j < v.Size[1] && k < v.Size[2]
}

func (v *Volume) Validate() error {
	for axis := 0; axis < 3; axis++ {
		if v.Size[axis] <= 0 {
			return fmt.Errorf("volume size must be positive, got %v", v.Size)
		}
		if !(v.Spacing[axis] > 0) {
			return fmt.Errorf("volume spacing must be positive, got %v", v.Spacing)
		}
	}
	if len(v.Data) != v.Len() {
		return fmt.Errorf("volume holds %d voxels, size %v needs %d", len(v.Data), v.Size, v.Len())
	}
	if v.Type.Size() == 0 {
		return fmt.Errorf("unsupported voxel type %q", v.Type)
	}
	return nil
}

// IndexToPhysical maps a (possibly fractional) voxel index to LPS coordinates.
func (v *Volume) IndexToPhysical(index geom.Vec3) geom.Vec3 {
	scaled := geom.Vec3{index[0] * v.Spacing[0], index[1] * v.Spacing[1], index[2] * v.Spacing[2]}
	return v.Origin.Add(v.Direction.MulVec(scaled))
}

// PhysicalToIndexMapper returns the inverse of IndexToPhysical.
func (v *Volume) PhysicalToIndexMapper() (func(geom.Vec3) geom.Vec3, error) {
	inv, err := v.Direction.Inverse()
	if err != nil {
		return nil, fmt.Errorf("volume %q direction: %w", v.Name, err)
	}
	origin := v.Origin
	spacing := v.Spacing
	return func(p geom.Vec3) geom.Vec3 {
		local := inv.MulVec(p.Sub(origin))
		return geom.Vec3{local[0] / spacing[0], local[1] / spacing[1], local[2] / spacing[2]}
	}, nil
}

// Corners returns the physical positions of the eight corner voxel centres.
func (v *Volume) Corners() []geom.Vec3 {
	corners := make([]geom.Vec3, 0, 8)
	for _, k := range []int{0, v.Size[2] - 1} {
		for _, j := range []int{0, v.Size[1] - 1} {
			for _, i := range []int{0, v.Size[0] - 1} {
				corners = append(corners, v.IndexToPhysical(geom.Vec3{float64(i), float64(j), float64(k)}))
			}
		}
	}
	return corners
}

// Bounds returns the axis-aligned physical box around the voxel centres.
func (v *Volume) Bounds() (geom.Vec3, geom.Vec3) {
	corners := v.Corners()
	lo, hi := corners[0], corners[0]
	for _, c := range corners[1:] {
		for axis := 0; axis < 3; axis++ {
			lo[axis] = math.Min(lo[axis], c[axis])
			hi[axis] = math.Max(hi[axis], c[axis])
		}
	}
	return lo, hi
}

// Harden bakes a rigid transform (LPS, moving to fixed) into the geometry. Voxel data
// is untouched.
func (v *Volume) Harden(t geom.Rigid) {
	v.Origin = t.Apply(v.Origin)
	v.Direction = t.Rotation.Mul(v.Direction)
}

func (v *Volume) Clone() *Volume {
	out := *v
	out.Data = append([]float32(nil), v.Data...)
	return &out
}

// Like allocates an empty volume sharing v's voxel type.
func (v *Volume) Like(size [3]int, spacing geom.Vec3) *Volume {
	out := New(size, spacing, v.Type)
	out.Name = v.Name
	out.Origin = v.Origin
	out.Direction = v.Direction
	return out
}

// ClampToType rounds and clamps value into the representable range of the voxel type.
func (v *Volume) ClampToType(value float64) float32 {
	lo, hi := v.Type.Range()
	if v.Type.IsInteger() {
		value = math.Round(value)
	}
	if value < lo {
		value = lo
	}
	if value > hi {
		value = hi
	}
	return float32(value)
}

// SpacingMicrometers reports spacing rounded to whole micrometers.
func (v *Volume) SpacingMicrometers() [3]int {
	var out [3]int
	for axis := 0; axis < 3; axis++ {
		out[axis] = int(math.Round(v.Spacing[axis] * 1000))
	}
	return out
}

type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

func (v *Volume) Stats() Stats {
	if len(v.Data) == 0 {
		return Stats{}
	}
	values := make([]float64, len(v.Data))
	for i, value := range v.Data {
		values[i] = float64(value)
	}
	mean, std := stat.MeanStdDev(values, nil)
	return Stats{
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
	}
}
