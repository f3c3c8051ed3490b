package roi

import (
	"context"
	"testing"

	"github.com/jaa/tbprep/internal/geom"
	"github.com/jaa/tbprep/internal/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cube() *volume.Volume {
	v := volume.New([3]int{4, 4, 4}, geom.Vec3{1, 1, 1}, volume.Int16)
	v.Name = "moving"
	for k := 0; k < 4; k++ {
		for j := 0; j < 4; j++ {
			for i := 0; i < 4; i++ {
				v.Set(i, j, k, float32(i+10*j+100*k))
			}
		}
	}
	return v
}

func TestFitToVolumeCoversVoxelEdges(t *testing.T) {
	r := FitToVolume(cube())
	assert.Equal(t, geom.Vec3{-1.5, -1.5, 1.5}, r.Center)
	assert.Equal(t, geom.Vec3{2, 2, 2}, r.Radius)
}

func TestCropWithFittedROIKeepsEveryVoxel(t *testing.T) {
	src := cube()

	out, err := Crop(context.Background(), src, FitToVolume(src), DefaultFillValue, 1)
	require.NoError(t, err)
	assert.Equal(t, "moving_Crop", out.Name)
	assert.Equal(t, [3]int{4, 4, 4}, out.Size)
	assert.Equal(t, src.Spacing, out.Spacing)
	// The output grid runs along +R,+A,+S so x and y are mirrored against the LPS source.
	assert.Equal(t, src.At(3, 3, 0), out.At(0, 0, 0))
	assert.Equal(t, src.At(0, 1, 2), out.At(3, 2, 2))
}

func TestCropSubRegion(t *testing.T) {
	src := cube()
	r := ROI{Center: geom.Vec3{-1.5, -1.5, 1.5}, Radius: geom.Vec3{1, 1, 1}}

	out, err := Crop(context.Background(), src, r, DefaultFillValue, 2)
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 2}, out.Size)
	assert.Equal(t, src.At(2, 2, 1), out.At(0, 0, 0))
	assert.Equal(t, src.At(1, 1, 2), out.At(1, 1, 1))
}

func TestCropOutsideVolumeUsesFill(t *testing.T) {
	src := cube()
	r := ROI{Center: geom.Vec3{50, 50, 50}, Radius: geom.Vec3{1, 1, 1}}

	out, err := Crop(context.Background(), src, r, DefaultFillValue, 1)
	require.NoError(t, err)
	for _, value := range out.Data {
		assert.Equal(t, float32(DefaultFillValue), value)
	}
}

func TestValidateRejectsFlatBox(t *testing.T) {
	r := ROI{Center: geom.Vec3{}, Radius: geom.Vec3{1, 0, 1}}
	require.Error(t, r.Validate())

	_, err := Crop(context.Background(), cube(), r, DefaultFillValue, 1)
	require.Error(t, err)
}
