package volume

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaa/tbprep/internal/geom"
)

var nrrdTypes = map[string]DataType{
	"signed char":        Int8,
	"int8":               Int8,
	"int8_t":             Int8,
	"uchar":              Uint8,
	"unsigned char":      Uint8,
	"uint8":              Uint8,
	"uint8_t":            Uint8,
	"short":              Int16,
	"short int":          Int16,
	"signed short":       Int16,
	"signed short int":   Int16,
	"int16":              Int16,
	"int16_t":            Int16,
	"ushort":             Uint16,
	"unsigned short":     Uint16,
	"unsigned short int": Uint16,
	"uint16":             Uint16,
	"uint16_t":           Uint16,
	"int":                Int32,
	"signed int":         Int32,
	"int32":              Int32,
	"int32_t":            Int32,
	"uint":               Uint32,
	"unsigned int":       Uint32,
	"uint32":             Uint32,
	"uint32_t":           Uint32,
	"float":              Float32,
	"double":             Float64,
}

var nrrdCanonicalTypes = map[DataType]string{
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "short",
	Uint16:  "ushort",
	Int32:   "int",
	Uint32:  "uint",
	Float32: "float",
	Float64: "double",
}

// DecodeNRRD reads an attached or detached NRRD header. dir resolves detached data files.
func DecodeNRRD(r io.Reader, dir string) (*Volume, error) {
	br := bufio.NewReader(r)
	magic, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("nrrd: read magic: %w", err)
	}
	if !strings.HasPrefix(magic, "NRRD000") {
		return nil, fmt.Errorf("nrrd: bad magic %q", strings.TrimSpace(magic))
	}

	fields := map[string]string{}
	for {
		line, err := br.ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("nrrd: header ended early: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, ":=") {
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, fmt.Errorf("nrrd: malformed header line %q", line)
		}
		fields[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
		if err != nil {
			break
		}
	}

	dataType, ok := nrrdTypes[strings.ToLower(fields["type"])]
	if !ok {
		return nil, fmt.Errorf("nrrd: unsupported type %q", fields["type"])
	}
	if dim := fields["dimension"]; dim != "3" {
		return nil, fmt.Errorf("nrrd: only 3D volumes are supported, dimension %q", dim)
	}

	v := &Volume{Type: dataType, Direction: geom.Identity(), Spacing: geom.Vec3{1, 1, 1}}
	sizes := strings.Fields(fields["sizes"])
	if len(sizes) != 3 {
		return nil, fmt.Errorf("nrrd: sizes must list 3 values, got %q", fields["sizes"])
	}
	for axis, raw := range sizes {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("nrrd: invalid size %q: %w", raw, err)
		}
		v.Size[axis] = n
	}
	if _, err := CheckSize(v.Size); err != nil {
		return nil, fmt.Errorf("nrrd: %w", err)
	}

	if raw, ok := fields["space directions"]; ok {
		vectors, err := parseNRRDVectors(raw)
		if err != nil {
			return nil, fmt.Errorf("nrrd: space directions: %w", err)
		}
		if len(vectors) != 3 {
			return nil, fmt.Errorf("nrrd: expected 3 space directions, got %d", len(vectors))
		}
		for c, vec := range vectors {
			norm := vec.Norm()
			if norm == 0 {
				return nil, fmt.Errorf("nrrd: zero-length space direction on axis %d", c)
			}
			v.Spacing[c] = norm
			for r := 0; r < 3; r++ {
				v.Direction[r][c] = vec[r] / norm
			}
		}
	} else if raw, ok := fields["spacings"]; ok {
		values := strings.Fields(raw)
		for axis := 0; axis < 3 && axis < len(values); axis++ {
			parsed, err := strconv.ParseFloat(values[axis], 64)
			if err != nil {
				return nil, fmt.Errorf("nrrd: invalid spacing %q: %w", values[axis], err)
			}
			v.Spacing[axis] = parsed
		}
	}

	if raw, ok := fields["space origin"]; ok {
		vectors, err := parseNRRDVectors(raw)
		if err != nil || len(vectors) != 1 {
			return nil, fmt.Errorf("nrrd: invalid space origin %q", raw)
		}
		v.Origin = vectors[0]
	}

	switch strings.ToLower(fields["space"]) {
	case "right-anterior-superior", "ras":
		v.Origin = geom.RASToLPS(v.Origin)
		for c := 0; c < 3; c++ {
			v.Direction[0][c] = -v.Direction[0][c]
			v.Direction[1][c] = -v.Direction[1][c]
		}
	case "", "left-posterior-superior", "lps":
	default:
		return nil, fmt.Errorf("nrrd: unsupported space %q", fields["space"])
	}

	var order binary.ByteOrder = binary.LittleEndian
	if strings.ToLower(fields["endian"]) == "big" {
		order = binary.BigEndian
	}

	var payload io.Reader = br
	dataFile := fields["data file"]
	if dataFile == "" {
		dataFile = fields["datafile"]
	}
	if dataFile != "" {
		if !filepath.IsAbs(dataFile) {
			dataFile = filepath.Join(dir, dataFile)
		}
		f, err := os.Open(dataFile)
		if err != nil {
			return nil, fmt.Errorf("nrrd: open data file: %w", err)
		}
		defer f.Close()
		payload = bufio.NewReader(f)
	}

	if raw := fields["line skip"]; raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("nrrd: invalid line skip %q", raw)
		}
		lines := bufio.NewReader(payload)
		for i := 0; i < skip; i++ {
			if _, err := lines.ReadString('\n'); err != nil {
				return nil, fmt.Errorf("nrrd: line skip: %w", err)
			}
		}
		payload = lines
	}

	switch strings.ToLower(fields["encoding"]) {
	case "raw":
	case "gzip", "gz":
		gz, err := gzip.NewReader(payload)
		if err != nil {
			return nil, fmt.Errorf("nrrd: open gzip payload: %w", err)
		}
		defer gz.Close()
		payload = gz
	default:
		return nil, fmt.Errorf("nrrd: unsupported encoding %q", fields["encoding"])
	}

	if raw := fields["byte skip"]; raw != "" && raw != "0" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			return nil, fmt.Errorf("nrrd: unsupported byte skip %q", raw)
		}
		if _, err := io.CopyN(io.Discard, payload, int64(skip)); err != nil {
			return nil, fmt.Errorf("nrrd: byte skip: %w", err)
		}
	}

	data, err := decodeRaw(payload, dataType, order, v.Len())
	if err != nil {
		return nil, fmt.Errorf("nrrd: %w", err)
	}
	v.Data = data
	return v, nil
}

func parseNRRDVectors(raw string) ([]geom.Vec3, error) {
	vectors := []geom.Vec3{}
	rest := strings.TrimSpace(raw)
	for rest != "" {
		if strings.HasPrefix(rest, "none") {
			return nil, fmt.Errorf("non-spatial axis in %q", raw)
		}
		if !strings.HasPrefix(rest, "(") {
			return nil, fmt.Errorf("expected '(' in %q", raw)
		}
		end := strings.Index(rest, ")")
		if end < 0 {
			return nil, fmt.Errorf("unterminated vector in %q", raw)
		}
		parts := strings.Split(rest[1:end], ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("vector must have 3 components in %q", raw)
		}
		var vec geom.Vec3
		for i, part := range parts {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid component %q: %w", part, err)
			}
			vec[i] = parsed
		}
		vectors = append(vectors, vec)
		rest = strings.TrimSpace(rest[end+1:])
	}
	return vectors, nil
}

// EncodeNRRD writes v as an attached, gzip-encoded, little-endian NRRD in LPS space.
func EncodeNRRD(w io.Writer, v *Volume) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("nrrd: %w", err)
	}
	typeName, ok := nrrdCanonicalTypes[v.Type]
	if !ok {
		return fmt.Errorf("nrrd: unsupported voxel type %q", v.Type)
	}

	directions := make([]string, 3)
	for c := 0; c < 3; c++ {
		column := v.Direction.Column(c).Scale(v.Spacing[c])
		directions[c] = formatNRRDVector(column)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "NRRD0004")
	fmt.Fprintln(bw, "# Complete NRRD file format specification at:")
	fmt.Fprintln(bw, "# http://teem.sourceforge.net/nrrd/format.html")
	fmt.Fprintf(bw, "type: %s\n", typeName)
	fmt.Fprintln(bw, "dimension: 3")
	fmt.Fprintln(bw, "space: left-posterior-superior")
	fmt.Fprintf(bw, "sizes: %d %d %d\n", v.Size[0], v.Size[1], v.Size[2])
	fmt.Fprintf(bw, "space directions: %s\n", strings.Join(directions, " "))
	fmt.Fprintln(bw, "kinds: domain domain domain")
	fmt.Fprintln(bw, "endian: little")
	fmt.Fprintln(bw, "encoding: gzip")
	fmt.Fprintf(bw, "space origin: %s\n", formatNRRDVector(v.Origin))
	if v.Name != "" {
		fmt.Fprintf(bw, "# name: %s\n", v.Name)
	}
	fmt.Fprintln(bw)

	gz := gzip.NewWriter(bw)
	if err := encodeRaw(gz, v, binary.LittleEndian); err != nil {
		return fmt.Errorf("nrrd: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("nrrd: close gzip payload: %w", err)
	}
	return bw.Flush()
}

func formatNRRDVector(v geom.Vec3) string {
	return fmt.Sprintf("(%s,%s,%s)",
		strconv.FormatFloat(v[0], 'g', 17, 64),
		strconv.FormatFloat(v[1], 'g', 17, 64),
		strconv.FormatFloat(v[2], 'g', 17, 64))
}
