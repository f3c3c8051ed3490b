package elastix

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaa/tbprep/internal/geom"
)

//go:embed Parameters_Rigid.txt
var DefaultRigidParameters string

const DefaultParameterFileName = "Parameters_Rigid.txt"

// Parameters is an elastix parameter or transform-parameter file: one "(Key values...)"
// entry per line, string values quoted.
type Parameters struct {
	order  []string
	values map[string][]string
}

func ParseParameters(r io.Reader) (*Parameters, error) {
	p := &Parameters{values: map[string][]string{}}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "(") || !strings.HasSuffix(line, ")") {
			return nil, fmt.Errorf("parameter line %d: expected (Key value ...), got %q", lineNo, line)
		}
		tokens, err := tokenize(line[1 : len(line)-1])
		if err != nil {
			return nil, fmt.Errorf("parameter line %d: %w", lineNo, err)
		}
		if len(tokens) == 0 {
			return nil, fmt.Errorf("parameter line %d: empty entry", lineNo)
		}
		p.Set(tokens[0], tokens[1:]...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func ReadParameterFile(path string) (*Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parameter file: %w", err)
	}
	defer f.Close()
	p, err := ParseParameters(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func tokenize(s string) ([]string, error) {
	tokens := []string{}
	rest := strings.TrimSpace(s)
	for rest != "" {
		if rest[0] == '"' {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated string in %q", s)
			}
			tokens = append(tokens, rest[1:end+1])
			rest = strings.TrimSpace(rest[end+2:])
			continue
		}
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			tokens = append(tokens, rest)
			break
		}
		tokens = append(tokens, rest[:end])
		rest = strings.TrimSpace(rest[end:])
	}
	return tokens, nil
}

func (p *Parameters) Set(key string, values ...string) {
	if _, ok := p.values[key]; !ok {
		p.order = append(p.order, key)
	}
	p.values[key] = values
}

func (p *Parameters) Get(key string) ([]string, bool) {
	values, ok := p.values[key]
	return values, ok
}

func (p *Parameters) Value(key string) string {
	values := p.values[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (p *Parameters) Floats(key string) ([]float64, error) {
	values, ok := p.values[key]
	if !ok {
		return nil, fmt.Errorf("parameter %s is missing", key)
	}
	out := make([]float64, len(values))
	for i, raw := range values {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: invalid number %q", key, raw)
		}
		out[i] = parsed
	}
	return out, nil
}

// Resolutions reports NumberOfResolutions, defaulting to elastix's 3 when unset.
func (p *Parameters) Resolutions() int {
	n, err := strconv.Atoi(p.Value("NumberOfResolutions"))
	if err != nil || n <= 0 {
		return 3
	}
	return n
}

// WriteTo renders the entries in their original order. Numeric values stay bare and
// everything else is quoted.
func (p *Parameters) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	for _, key := range p.order {
		b.WriteString("(")
		b.WriteString(key)
		for _, value := range p.values[key] {
			b.WriteString(" ")
			if _, err := strconv.ParseFloat(value, 64); err == nil {
				b.WriteString(value)
			} else {
				b.WriteString(`"` + value + `"`)
			}
		}
		b.WriteString(")\n")
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Transform converts an EulerTransform parameter file, following any initial transform
// chain, into a rigid map in LPS. The map goes from fixed to moving space, as elastix
// defines it.
func (p *Parameters) Transform(dir string) (geom.Rigid, error) {
	kind := p.Value("Transform")
	if kind != "EulerTransform" {
		return geom.Rigid{}, fmt.Errorf("unsupported transform %q (expected EulerTransform)", kind)
	}
	params, err := p.Floats("TransformParameters")
	if err != nil {
		return geom.Rigid{}, err
	}
	if len(params) != 6 {
		return geom.Rigid{}, fmt.Errorf("EulerTransform needs 6 parameters, got %d", len(params))
	}
	center := geom.Vec3{}
	if raw, ok := p.Get("CenterOfRotationPoint"); ok && len(raw) > 0 {
		values, err := p.Floats("CenterOfRotationPoint")
		if err != nil {
			return geom.Rigid{}, err
		}
		if len(values) != 3 {
			return geom.Rigid{}, fmt.Errorf("CenterOfRotationPoint needs 3 values, got %d", len(values))
		}
		copy(center[:], values)
	}

	rotation := geom.EulerZXY(params[0], params[1], params[2])
	if strings.EqualFold(p.Value("ComputeZYX"), "true") {
		rotation = geom.EulerZYX(params[0], params[1], params[2])
	}
	current := geom.CenteredRigid(rotation, center, geom.Vec3{params[3], params[4], params[5]})

	initial := p.Value("InitialTransformParametersFileName")
	if initial == "" || initial == "NoInitialTransform" {
		return current, nil
	}
	if combine := p.Value("HowToCombineTransforms"); combine != "" && combine != "Compose" {
		return geom.Rigid{}, fmt.Errorf("unsupported HowToCombineTransforms %q", combine)
	}
	if !filepath.IsAbs(initial) {
		initial = filepath.Join(dir, initial)
	}
	chained, err := ReadParameterFile(initial)
	if err != nil {
		return geom.Rigid{}, fmt.Errorf("initial transform: %w", err)
	}
	first, err := chained.Transform(filepath.Dir(initial))
	if err != nil {
		return geom.Rigid{}, fmt.Errorf("initial transform: %w", err)
	}
	return first.Then(current), nil
}
