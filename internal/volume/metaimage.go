package volume

import (
	"bufio"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaa/tbprep/internal/geom"
)

var metaTypes = map[string]DataType{
	"MET_CHAR":   Int8,
	"MET_UCHAR":  Uint8,
	"MET_SHORT":  Int16,
	"MET_USHORT": Uint16,
	"MET_INT":    Int32,
	"MET_UINT":   Uint32,
	"MET_FLOAT":  Float32,
	"MET_DOUBLE": Float64,
}

// DecodeMetaImage reads a MetaImage header (.mha with LOCAL data or .mhd with a
// separate raw file resolved against dir).
func DecodeMetaImage(r io.Reader, dir string) (*Volume, error) {
	br := bufio.NewReader(r)
	fields := map[string]string{}
	for {
		line, err := br.ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("metaimage: header ended before ElementDataFile: %w", err)
		}
		key, value, ok := strings.Cut(strings.TrimRight(line, "\r\n"), "=")
		if ok {
			key = strings.TrimSpace(key)
			fields[key] = strings.TrimSpace(value)
			if key == "ElementDataFile" {
				break
			}
		}
		if err != nil {
			return nil, fmt.Errorf("metaimage: header ended before ElementDataFile: %w", err)
		}
	}

	if nd := fields["NDims"]; nd != "3" {
		return nil, fmt.Errorf("metaimage: only 3D images are supported, NDims %q", nd)
	}
	if channels := fields["ElementNumberOfChannels"]; channels != "" && channels != "1" {
		return nil, fmt.Errorf("metaimage: only scalar images are supported, %s channels", channels)
	}
	dataType, ok := metaTypes[fields["ElementType"]]
	if !ok {
		return nil, fmt.Errorf("metaimage: unsupported ElementType %q", fields["ElementType"])
	}

	v := &Volume{Type: dataType, Direction: geom.Identity(), Spacing: geom.Vec3{1, 1, 1}}

	dims, err := parseFloats(fields["DimSize"], 3)
	if err != nil {
		return nil, fmt.Errorf("metaimage: DimSize: %w", err)
	}
	for axis := 0; axis < 3; axis++ {
		if dims[axis] != math.Trunc(dims[axis]) || dims[axis] < 1 || dims[axis] > MaxVoxels {
			return nil, fmt.Errorf("metaimage: DimSize must hold positive integers, got %q", fields["DimSize"])
		}
		v.Size[axis] = int(dims[axis])
	}
	if _, err := CheckSize(v.Size); err != nil {
		return nil, fmt.Errorf("metaimage: %w", err)
	}

	spacingKey := "ElementSpacing"
	if _, ok := fields[spacingKey]; !ok {
		spacingKey = "ElementSize"
	}
	if raw, ok := fields[spacingKey]; ok {
		values, err := parseFloats(raw, 3)
		if err != nil {
			return nil, fmt.Errorf("metaimage: %s: %w", spacingKey, err)
		}
		copy(v.Spacing[:], values)
	}

	for _, key := range []string{"Offset", "Origin", "Position"} {
		if raw, ok := fields[key]; ok {
			values, err := parseFloats(raw, 3)
			if err != nil {
				return nil, fmt.Errorf("metaimage: %s: %w", key, err)
			}
			copy(v.Origin[:], values)
			break
		}
	}

	for _, key := range []string{"TransformMatrix", "Rotation", "Orientation"} {
		if raw, ok := fields[key]; ok {
			values, err := parseFloats(raw, 9)
			if err != nil {
				return nil, fmt.Errorf("metaimage: %s: %w", key, err)
			}
			// Each consecutive triple is the direction of one image axis.
			for c := 0; c < 3; c++ {
				for r := 0; r < 3; r++ {
					v.Direction[r][c] = values[c*3+r]
				}
			}
			break
		}
	}

	var order binary.ByteOrder = binary.LittleEndian
	for _, key := range []string{"ElementByteOrderMSB", "BinaryDataByteOrderMSB"} {
		if strings.EqualFold(fields[key], "true") {
			order = binary.BigEndian
		}
	}

	var payload io.Reader = br
	if dataFile := fields["ElementDataFile"]; dataFile != "LOCAL" {
		if !filepath.IsAbs(dataFile) {
			dataFile = filepath.Join(dir, dataFile)
		}
		f, err := os.Open(dataFile)
		if err != nil {
			return nil, fmt.Errorf("metaimage: open data file: %w", err)
		}
		defer f.Close()
		payload = bufio.NewReader(f)
	}

	if strings.EqualFold(fields["CompressedData"], "true") {
		zr, err := zlib.NewReader(payload)
		if err != nil {
			return nil, fmt.Errorf("metaimage: open compressed payload: %w", err)
		}
		defer zr.Close()
		payload = zr
	}

	data, err := decodeRaw(payload, dataType, order, v.Len())
	if err != nil {
		return nil, fmt.Errorf("metaimage: %w", err)
	}
	v.Data = data
	return v, nil
}

func parseFloats(raw string, want int) ([]float64, error) {
	parts := strings.Fields(raw)
	if len(parts) != want {
		return nil, fmt.Errorf("expected %d values, got %q", want, raw)
	}
	out := make([]float64, want)
	for i, part := range parts {
		parsed, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", part, err)
		}
		out[i] = parsed
	}
	return out, nil
}
