package volume

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/jaa/tbprep/internal/geom"
)

const (
	niftiHeaderSize = 348
	niftiVoxOffset  = 352

	niftiUnitsMM = 2

	niftiXformScanner = 1
	niftiXformAligned = 2
)

var niftiTypeCodes = map[int16]DataType{
	2:   Uint8,
	4:   Int16,
	8:   Int32,
	16:  Float32,
	64:  Float64,
	256: Int8,
	512: Uint16,
	768: Uint32,
}

func niftiCode(t DataType) (int16, error) {
	for code, candidate := range niftiTypeCodes {
		if candidate == t {
			return code, nil
		}
	}
	return 0, fmt.Errorf("nifti: unsupported voxel type %q", t)
}

type niftiHeader struct {
	SizeofHdr    int32
	DataType     [10]byte
	DBName       [18]byte
	Extents      int32
	SessionError int16
	Regular      byte
	DimInfo      byte
	Dim          [8]int16
	IntentP1     float32
	IntentP2     float32
	IntentP3     float32
	IntentCode   int16
	Datatype     int16
	Bitpix       int16
	SliceStart   int16
	Pixdim       [8]float32
	VoxOffset    float32
	SclSlope     float32
	SclInter     float32
	SliceEnd     int16
	SliceCode    byte
	XYZTUnits    byte
	CalMax       float32
	CalMin       float32
	SliceDur     float32
	Toffset      float32
	Glmax        int32
	Glmin        int32
	Descrip      [80]byte
	AuxFile      [24]byte
	QformCode    int16
	SformCode    int16
	QuaternB     float32
	QuaternC     float32
	QuaternD     float32
	QoffsetX     float32
	QoffsetY     float32
	QoffsetZ     float32
	SrowX        [4]float32
	SrowY        [4]float32
	SrowZ        [4]float32
	IntentName   [16]byte
	Magic        [4]byte
}

// DecodeNIfTI reads a single-file NIfTI-1 stream (already decompressed).
func DecodeNIfTI(r io.Reader) (*Volume, error) {
	raw := make([]byte, niftiHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("nifti: read header: %w", err)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if int32(binary.LittleEndian.Uint32(raw[:4])) != niftiHeaderSize {
		if int32(binary.BigEndian.Uint32(raw[:4])) != niftiHeaderSize {
			return nil, errors.New("nifti: bad header size")
		}
		order = binary.BigEndian
	}

	var hdr niftiHeader
	if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
		return nil, fmt.Errorf("nifti: decode header: %w", err)
	}
	if string(hdr.Magic[:3]) != "n+1" {
		return nil, fmt.Errorf("nifti: only single-file n+1 images are supported, magic %q", string(hdr.Magic[:3]))
	}

	ndim := int(hdr.Dim[0])
	if ndim < 1 || ndim > 7 {
		return nil, fmt.Errorf("nifti: invalid dimension count %d", ndim)
	}
	for d := 4; d <= ndim; d++ {
		if hdr.Dim[d] > 1 {
			return nil, fmt.Errorf("nifti: only scalar 3D volumes are supported (dim[%d]=%d)", d, hdr.Dim[d])
		}
	}
	size := [3]int{1, 1, 1}
	for axis := 0; axis < 3 && axis < ndim; axis++ {
		size[axis] = int(hdr.Dim[axis+1])
	}
	if _, err := CheckSize(size); err != nil {
		return nil, fmt.Errorf("nifti: %w", err)
	}

	dataType, ok := niftiTypeCodes[hdr.Datatype]
	if !ok {
		return nil, fmt.Errorf("nifti: unsupported datatype code %d", hdr.Datatype)
	}

	skip := int(hdr.VoxOffset) - niftiHeaderSize
	if skip < 0 {
		return nil, fmt.Errorf("nifti: invalid vox_offset %v", hdr.VoxOffset)
	}
	if _, err := io.CopyN(io.Discard, r, int64(skip)); err != nil {
		return nil, fmt.Errorf("nifti: skip to voxel data: %w", err)
	}

	v := &Volume{Size: size, Type: dataType}
	data, err := decodeRaw(r, dataType, order, v.Len())
	if err != nil {
		return nil, fmt.Errorf("nifti: %w", err)
	}
	v.Data = data

	if hdr.SclSlope != 0 && !(hdr.SclSlope == 1 && hdr.SclInter == 0) {
		for i, value := range v.Data {
			v.Data[i] = value*hdr.SclSlope + hdr.SclInter
		}
		v.Type = Float32
	}

	niftiGeometry(&hdr, v)
	return v, nil
}

func niftiGeometry(hdr *niftiHeader, v *Volume) {
	switch {
	case hdr.SformCode > 0:
		rows := [3][4]float32{hdr.SrowX, hdr.SrowY, hdr.SrowZ}
		var affine geom.Mat3
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				affine[r][c] = float64(rows[r][c])
			}
			v.Origin[r] = float64(rows[r][3])
		}
		for c := 0; c < 3; c++ {
			column := affine.Column(c)
			norm := column.Norm()
			if norm == 0 {
				norm = 1
				column[c] = 1
			}
			v.Spacing[c] = norm
			for r := 0; r < 3; r++ {
				v.Direction[r][c] = column[r] / norm
			}
		}
	case hdr.QformCode > 0:
		b, c, d := float64(hdr.QuaternB), float64(hdr.QuaternC), float64(hdr.QuaternD)
		a := 1 - (b*b + c*c + d*d)
		if a < 1e-7 {
			a = 0
		} else {
			a = math.Sqrt(a)
		}
		v.Direction = geom.Mat3{
			{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c)},
			{2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b)},
			{2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - c*c - b*b},
		}
		if hdr.Pixdim[0] < 0 {
			for r := 0; r < 3; r++ {
				v.Direction[r][2] = -v.Direction[r][2]
			}
		}
		v.Spacing = pixdimSpacing(hdr)
		v.Origin = geom.Vec3{float64(hdr.QoffsetX), float64(hdr.QoffsetY), float64(hdr.QoffsetZ)}
	default:
		v.Direction = geom.Identity()
		v.Spacing = pixdimSpacing(hdr)
	}

	// NIfTI world space is RAS.
	for c := 0; c < 3; c++ {
		v.Direction[0][c] = -v.Direction[0][c]
		v.Direction[1][c] = -v.Direction[1][c]
	}
	v.Origin = geom.RASToLPS(v.Origin)
}

func pixdimSpacing(hdr *niftiHeader) geom.Vec3 {
	var spacing geom.Vec3
	for axis := 0; axis < 3; axis++ {
		spacing[axis] = math.Abs(float64(hdr.Pixdim[axis+1]))
		if spacing[axis] == 0 {
			spacing[axis] = 1
		}
	}
	return spacing
}

// EncodeNIfTI writes v as a little-endian single-file NIfTI-1 stream.
func EncodeNIfTI(w io.Writer, v *Volume) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("nifti: %w", err)
	}
	code, err := niftiCode(v.Type)
	if err != nil {
		return err
	}
	for axis := 0; axis < 3; axis++ {
		if v.Size[axis] > math.MaxInt16 {
			return fmt.Errorf("nifti: axis %d has %d voxels, the format allows at most %d (save as nrrd)", axis, v.Size[axis], math.MaxInt16)
		}
	}

	ras := v.Direction
	for c := 0; c < 3; c++ {
		ras[0][c] = -ras[0][c]
		ras[1][c] = -ras[1][c]
	}
	origin := geom.LPSToRAS(v.Origin)

	hdr := niftiHeader{
		SizeofHdr: niftiHeaderSize,
		Regular:   'r',
		Datatype:  code,
		Bitpix:    int16(v.Type.Size() * 8),
		VoxOffset: niftiVoxOffset,
		SclSlope:  1,
		XYZTUnits: niftiUnitsMM,
		QformCode: niftiXformScanner,
		SformCode: niftiXformAligned,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	hdr.Dim = [8]int16{3, int16(v.Size[0]), int16(v.Size[1]), int16(v.Size[2]), 1, 1, 1, 1}
	hdr.Pixdim = [8]float32{1, float32(v.Spacing[0]), float32(v.Spacing[1]), float32(v.Spacing[2]), 0, 0, 0, 0}
	copy(hdr.Descrip[:], v.Name)

	rows := [3]*[4]float32{&hdr.SrowX, &hdr.SrowY, &hdr.SrowZ}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			rows[r][c] = float32(ras[r][c] * v.Spacing[c])
		}
		rows[r][3] = float32(origin[r])
	}

	rot := ras
	if rot.Det() < 0 {
		hdr.Pixdim[0] = -1
		for r := 0; r < 3; r++ {
			rot[r][2] = -rot[r][2]
		}
	}
	qb, qc, qd := quaternionFromRotation(rot)
	hdr.QuaternB, hdr.QuaternC, hdr.QuaternD = float32(qb), float32(qc), float32(qd)
	hdr.QoffsetX, hdr.QoffsetY, hdr.QoffsetZ = float32(origin[0]), float32(origin[1]), float32(origin[2])

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("nifti: write header: %w", err)
	}
	if _, err := w.Write(make([]byte, niftiVoxOffset-niftiHeaderSize)); err != nil {
		return fmt.Errorf("nifti: write extension flag: %w", err)
	}
	return encodeRaw(w, v, binary.LittleEndian)
}

// quaternionFromRotation returns (b, c, d) of the unit quaternion with a >= 0.
func quaternionFromRotation(m geom.Mat3) (float64, float64, float64) {
	trace := m[0][0] + m[1][1] + m[2][2]
	var a, b, c, d float64
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		a = 0.25 / s
		b = (m[2][1] - m[1][2]) * s
		c = (m[0][2] - m[2][0]) * s
		d = (m[1][0] - m[0][1]) * s
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := 2 * math.Sqrt(1+m[0][0]-m[1][1]-m[2][2])
		a = (m[2][1] - m[1][2]) / s
		b = 0.25 * s
		c = (m[0][1] + m[1][0]) / s
		d = (m[0][2] + m[2][0]) / s
	case m[1][1] > m[2][2]:
		s := 2 * math.Sqrt(1+m[1][1]-m[0][0]-m[2][2])
		a = (m[0][2] - m[2][0]) / s
		b = (m[0][1] + m[1][0]) / s
		c = 0.25 * s
		d = (m[1][2] + m[2][1]) / s
	default:
		s := 2 * math.Sqrt(1+m[2][2]-m[0][0]-m[1][1])
		a = (m[1][0] - m[0][1]) / s
		b = (m[0][2] + m[2][0]) / s
		c = (m[1][2] + m[2][1]) / s
		d = 0.25 * s
	}
	if a < 0 {
		b, c, d = -b, -c, -d
	}
	return b, c, d
}
