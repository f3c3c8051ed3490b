// Package fiducial reads and writes Slicer markups fiducial lists (.fcsv) and keeps the
// per-label pairing between atlas landmarks and the landmarks placed on the input volume.
package fiducial

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jaa/tbprep/internal/geom"
)

// Point is a labelled landmark in RAS millimeters.
type Point struct {
	Label       string    `yaml:"label" json:"label"`
	Position    geom.Vec3 `yaml:"position" json:"position"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
}

const (
	fcsvVersion = "4.10"
	fcsvColumns = "id,x,y,z,ow,ox,oy,oz,vis,sel,lock,label,desc,associatedNodeID"
)

// ReadFile loads an .fcsv file.
func ReadFile(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fiducials: %w", err)
	}
	defer f.Close()

	points, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return points, nil
}

// Decode parses an .fcsv stream. Positions are returned in RAS whatever coordinate system
// the file declares.
func Decode(r io.Reader) ([]Point, error) {
	br := bufio.NewReader(r)
	lps := false
	columns := strings.Split(fcsvColumns, ",")

	var body strings.Builder
	for {
		line, err := br.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#"):
			key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(trimmed, "#")), "=")
			if ok {
				key = strings.ToLower(strings.TrimSpace(key))
				value = strings.TrimSpace(value)
				switch key {
				case "coordinatesystem":
					lps = value == "1" || strings.EqualFold(value, "LPS")
				case "columns":
					columns = strings.Split(value, ",")
				}
			}
		case trimmed != "":
			body.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				body.WriteString("\n")
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fcsv: %w", err)
		}
	}

	index := map[string]int{}
	for i, name := range columns {
		index[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"x", "y", "z", "label"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("fcsv: missing %q column", required)
		}
	}

	reader := csv.NewReader(strings.NewReader(body.String()))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("fcsv: %w", err)
	}

	points := make([]Point, 0, len(records))
	for n, record := range records {
		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		var p geom.Vec3
		for axis, name := range []string{"x", "y", "z"} {
			value, err := strconv.ParseFloat(field(name), 64)
			if err != nil {
				return nil, fmt.Errorf("fcsv: row %d: invalid %s %q", n+1, name, field(name))
			}
			p[axis] = value
		}
		if lps {
			p = geom.LPSToRAS(p)
		}
		points = append(points, Point{Label: field("label"), Position: p, Description: field("desc")})
	}
	return points, nil
}

// Encode writes points as an RAS .fcsv list readable by Slicer.
func Encode(w io.Writer, points []Point) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Markups fiducial file version = %s\n", fcsvVersion)
	fmt.Fprintln(bw, "# CoordinateSystem = 0")
	fmt.Fprintf(bw, "# columns = %s\n", fcsvColumns)

	cw := csv.NewWriter(bw)
	for i, p := range points {
		record := []string{
			fmt.Sprintf("vtkMRMLMarkupsFiducialNode_%d", i),
			formatCoordinate(p.Position[0]),
			formatCoordinate(p.Position[1]),
			formatCoordinate(p.Position[2]),
			"0", "0", "0", "1",
			"1", "1", "0",
			p.Label,
			p.Description,
			"",
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("fcsv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("fcsv: %w", err)
	}
	return bw.Flush()
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
