package volume

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaa/tbprep/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obliqueVolume(t *testing.T, dataType DataType) *Volume {
	t.Helper()
	v := New([3]int{4, 3, 2}, geom.Vec3{0.5, 0.25, 1.5}, dataType)
	v.Name = "TemporalBone"
	v.Origin = geom.Vec3{-12.5, 30.25, 7}
	v.Direction = geom.EulerZXY(0.1, -0.2, 0.3)
	for i := range v.Data {
		v.Data[i] = float32(i*7 - 40)
	}
	return v
}

func assertGeometry(t *testing.T, want, got *Volume, delta float64) {
	t.Helper()
	assert.Equal(t, want.Size, got.Size)
	for axis := 0; axis < 3; axis++ {
		assert.InDelta(t, want.Spacing[axis], got.Spacing[axis], delta, "spacing[%d]", axis)
		assert.InDelta(t, want.Origin[axis], got.Origin[axis], delta, "origin[%d]", axis)
		for c := 0; c < 3; c++ {
			assert.InDelta(t, want.Direction[axis][c], got.Direction[axis][c], delta, "direction[%d][%d]", axis, c)
		}
	}
}

func TestNIfTIRoundTripKeepsGeometryAndVoxels(t *testing.T) {
	v := obliqueVolume(t, Int16)

	var buf bytes.Buffer
	require.NoError(t, EncodeNIfTI(&buf, v))

	got, err := DecodeNIfTI(&buf)
	require.NoError(t, err)
	assertGeometry(t, v, got, 1e-4)
	assert.Equal(t, Int16, got.Type)
	assert.Equal(t, v.Data, got.Data)
}

func TestNIfTIFallsBackToQformWithoutSform(t *testing.T) {
	v := obliqueVolume(t, Float32)

	var buf bytes.Buffer
	require.NoError(t, EncodeNIfTI(&buf, v))
	raw := buf.Bytes()
	// sform_code lives at byte offset 254.
	binary.LittleEndian.PutUint16(raw[254:], 0)

	got, err := DecodeNIfTI(bytes.NewReader(raw))
	require.NoError(t, err)
	assertGeometry(t, v, got, 1e-4)
}

func TestNIfTIAppliesScaleSlope(t *testing.T) {
	v := New([3]int{2, 1, 1}, geom.Vec3{1, 1, 1}, Int16)
	v.Data = []float32{10, 20}

	var buf bytes.Buffer
	require.NoError(t, EncodeNIfTI(&buf, v))
	raw := buf.Bytes()
	// scl_slope and scl_inter follow vox_offset at offset 108.
	binary.LittleEndian.PutUint32(raw[112:], math.Float32bits(2))
	binary.LittleEndian.PutUint32(raw[116:], math.Float32bits(-1))

	got, err := DecodeNIfTI(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, Float32, got.Type)
	assert.Equal(t, []float32{19, 39}, got.Data)
}

func TestNRRDRoundTripKeepsGeometryAndVoxels(t *testing.T) {
	v := obliqueVolume(t, Float32)

	var buf bytes.Buffer
	require.NoError(t, EncodeNRRD(&buf, v))

	got, err := DecodeNRRD(&buf, t.TempDir())
	require.NoError(t, err)
	assertGeometry(t, v, got, 1e-9)
	assert.Equal(t, v.Data, got.Data)
}

func TestNRRDConvertsRASHeaderToLPS(t *testing.T) {
	header := "NRRD0004\n" +
		"type: uchar\n" +
		"dimension: 3\n" +
		"space: right-anterior-superior\n" +
		"sizes: 2 1 1\n" +
		"space directions: (0.5,0,0) (0,0.5,0) (0,0,2)\n" +
		"kinds: domain domain domain\n" +
		"encoding: raw\n" +
		"space origin: (10,20,30)\n" +
		"\n"
	payload := append([]byte(header), 3, 9)

	got, err := DecodeNRRD(bytes.NewReader(payload), "")
	require.NoError(t, err)
	assert.Equal(t, geom.Vec3{-10, -20, 30}, got.Origin)
	assert.Equal(t, geom.Vec3{0.5, 0.5, 2}, got.Spacing)
	assert.Equal(t, -1.0, got.Direction[0][0])
	assert.Equal(t, -1.0, got.Direction[1][1])
	assert.Equal(t, []float32{3, 9}, got.Data)
}

func TestNRRDReadsDetachedDataFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "atlas.raw"), []byte{0, 1, 0, 2}, 0o644))
	header := "NRRD0004\n" +
		"type: short\n" +
		"dimension: 3\n" +
		"sizes: 2 1 1\n" +
		"spacings: 0.1 0.1 0.1\n" +
		"endian: big\n" +
		"encoding: raw\n" +
		"data file: atlas.raw\n" +
		"\n"

	got, err := DecodeNRRD(bytes.NewReader([]byte(header)), dir)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got.Data)
	assert.Equal(t, geom.Vec3{0.1, 0.1, 0.1}, got.Spacing)
}

func TestMetaImageReadsLocalPayload(t *testing.T) {
	header := "ObjectType = Image\n" +
		"NDims = 3\n" +
		"BinaryData = True\n" +
		"BinaryDataByteOrderMSB = False\n" +
		"TransformMatrix = 0 1 0 -1 0 0 0 0 1\n" +
		"Offset = 1 2 3\n" +
		"ElementSpacing = 0.154 0.154 0.2\n" +
		"DimSize = 2 1 1\n" +
		"ElementType = MET_SHORT\n" +
		"ElementDataFile = LOCAL\n"
	payload := []byte(header)
	payload = binary.LittleEndian.AppendUint16(payload, uint16(0xFFFF)) // -1
	payload = binary.LittleEndian.AppendUint16(payload, 1200)

	got, err := DecodeMetaImage(bytes.NewReader(payload), "")
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 1, 1}, got.Size)
	assert.Equal(t, geom.Vec3{1, 2, 3}, got.Origin)
	assert.Equal(t, geom.Vec3{0, 1, 0}, got.Direction.Column(0))
	assert.Equal(t, geom.Vec3{-1, 0, 0}, got.Direction.Column(1))
	assert.Equal(t, []float32{-1, 1200}, got.Data)
}

func TestMetaImageRejectsVectorImages(t *testing.T) {
	header := "NDims = 3\nElementNumberOfChannels = 3\nDimSize = 1 1 1\nElementType = MET_UCHAR\nElementDataFile = LOCAL\n"
	_, err := DecodeMetaImage(bytes.NewReader([]byte(header)), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scalar")
}

func TestWriteAndReadChooseCodecByExtension(t *testing.T) {
	dir := t.TempDir()
	v := obliqueVolume(t, Int16)

	for _, name := range []string{"out.nii", "out.nii.gz", "out.nrrd"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Write(path, v), name)

		got, err := Read(path)
		require.NoError(t, err, name)
		assertGeometry(t, v, got, 1e-4)
		assert.Equal(t, v.Data, got.Data, name)
	}

	require.Error(t, Write(filepath.Join(dir, "out.png"), v))
	_, err := Read(filepath.Join(dir, "missing.mha"))
	require.Error(t, err)
}

func TestLookupSaveTypeAndExtension(t *testing.T) {
	nii, err := LookupSaveType(".NII")
	require.NoError(t, err)
	assert.Equal(t, FormatNIfTI, nii.Format)
	assert.Equal(t, "case_Crop.nii", nii.WithExtension("case_Crop"))
	assert.Equal(t, "case_Crop.nii", nii.WithExtension("case_Crop.nii"))

	nrrd, err := LookupSaveType("nrrd")
	require.NoError(t, err)
	assert.Equal(t, "case.nrrd", nrrd.WithExtension("case"))

	_, err = LookupSaveType("dicom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nii, nrrd")
}

func TestNameFromPath(t *testing.T) {
	assert.Equal(t, "Atlas_L", NameFromPath("/atlases/Atlas_L.mha"))
	assert.Equal(t, "scan", NameFromPath("scan.nii.gz"))
	assert.Equal(t, "scan.v2", NameFromPath("scan.v2.nrrd"))
}

func TestIndexToPhysicalInverse(t *testing.T) {
	v := obliqueVolume(t, Int16)
	toIndex, err := v.PhysicalToIndexMapper()
	require.NoError(t, err)

	index := geom.Vec3{1.5, 2, 0.25}
	back := toIndex(v.IndexToPhysical(index))
	for axis := 0; axis < 3; axis++ {
		assert.InDelta(t, index[axis], back[axis], 1e-9)
	}
}

func TestHardenMovesGeometryOnly(t *testing.T) {
	v := obliqueVolume(t, Int16)
	before := v.Clone()
	transform := geom.Rigid{Rotation: geom.EulerZXY(0, 0, math.Pi/2), Translation: geom.Vec3{5, 0, -1}}

	v.Harden(transform)

	assert.Equal(t, before.Data, v.Data)
	probe := geom.Vec3{2, 1, 1}
	want := transform.Apply(before.IndexToPhysical(probe))
	got := v.IndexToPhysical(probe)
	for axis := 0; axis < 3; axis++ {
		assert.InDelta(t, want[axis], got[axis], 1e-9)
	}
}

func TestClampToTypeAndStats(t *testing.T) {
	v := New([3]int{4, 1, 1}, geom.Vec3{1, 1, 1}, Uint8)
	assert.Equal(t, float32(255), v.ClampToType(300.2))
	assert.Equal(t, float32(0), v.ClampToType(-5))
	assert.Equal(t, float32(3), v.ClampToType(2.6))

	v.Data = []float32{1, 2, 3, 4}
	stats := v.Stats()
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 4.0, stats.Max)
	assert.InDelta(t, 2.5, stats.Mean, 1e-12)
}

func TestSpacingMicrometers(t *testing.T) {
	v := New([3]int{1, 1, 1}, geom.Vec3{0.154, 0.05, 0.3125}, Int16)
	assert.Equal(t, [3]int{154, 50, 313}, v.SpacingMicrometers())
}

func TestDecodersRejectBadSizes(t *testing.T) {
	nrrd := func(sizes string) []byte {
		return []byte("NRRD0004\ntype: uchar\ndimension: 3\nsizes: " + sizes + "\nencoding: raw\n\n")
	}
	meta := func(dims string) []byte {
		return []byte("NDims = 3\nDimSize = " + dims + "\nElementType = MET_UCHAR\nElementDataFile = LOCAL\n")
	}

	for name, decode := range map[string]func() (*Volume, error){
		"nrrd negative":      func() (*Volume, error) { return DecodeNRRD(bytes.NewReader(nrrd("-2 3 4")), "") },
		"nrrd zero":          func() (*Volume, error) { return DecodeNRRD(bytes.NewReader(nrrd("2 0 4")), "") },
		"nrrd overflow":      func() (*Volume, error) { return DecodeNRRD(bytes.NewReader(nrrd("4294967296 4294967296 4")), "") },
		"metaimage negative": func() (*Volume, error) { return DecodeMetaImage(bytes.NewReader(meta("2 -1 1")), "") },
		"metaimage fraction": func() (*Volume, error) { return DecodeMetaImage(bytes.NewReader(meta("2.5 1 1")), "") },
		"metaimage huge":     func() (*Volume, error) { return DecodeMetaImage(bytes.NewReader(meta("1e30 1 1")), "") },
		"metaimage too many": func() (*Volume, error) { return DecodeMetaImage(bytes.NewReader(meta("100000 100000 100000")), "") },
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decode()
			require.Error(t, err)
		})
	}
}

func TestNIfTIRejectsNegativeDim(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeNIfTI(&buf, obliqueVolume(t, Int16)))
	payload := buf.Bytes()
	// dim[1] sits right after dim[0] at byte 40 of the header.
	binary.LittleEndian.PutUint16(payload[42:], uint16(0xFFFE)) // -2

	_, err := DecodeNIfTI(bytes.NewReader(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size must be positive")
}

func TestNIfTIEncodeRejectsAxesBeyondInt16(t *testing.T) {
	v := New([3]int{40000, 1, 1}, geom.Vec3{0.01, 1, 1}, Int16)

	var buf bytes.Buffer
	err := EncodeNIfTI(&buf, v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 32767")
	assert.Zero(t, buf.Len())
}

func TestCheckSize(t *testing.T) {
	count, err := CheckSize([3]int{4, 3, 2})
	require.NoError(t, err)
	assert.Equal(t, 24, count)

	_, err = CheckSize([3]int{1 << 16, 1 << 16, 1 << 16})
	require.Error(t, err)
	_, err = CheckSize([3]int{1, -1, 1})
	require.Error(t, err)
}
