package volume

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaa/tbprep/internal/fileops"
)

type Format string

const (
	FormatNIfTI Format = "nii"
	FormatNRRD  Format = "nrrd"
)

type SaveType struct {
	Format    Format
	Title     string
	Extension string
}

// SaveTypes lists the formats offered when exporting a volume.
var SaveTypes = []SaveType{
	{Format: FormatNIfTI, Title: "NIfTI (*.nii)", Extension: ".nii"},
	{Format: FormatNRRD, Title: "NRRD (*.nrrd)", Extension: ".nrrd"},
}

func LookupSaveType(raw string) (SaveType, error) {
	needle := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), ".")
	for _, t := range SaveTypes {
		if string(t.Format) == needle {
			return t, nil
		}
	}
	names := make([]string, 0, len(SaveTypes))
	for _, t := range SaveTypes {
		names = append(names, string(t.Format))
	}
	return SaveType{}, fmt.Errorf("unsupported save format %q (expected: %s)", raw, strings.Join(names, ", "))
}

// WithExtension appends the format extension unless path already carries it.
func (t SaveType) WithExtension(path string) string {
	if strings.EqualFold(filepath.Ext(path), t.Extension) {
		return path
	}
	return path + t.Extension
}

// NameFromPath strips directory and image extensions, keeping the rest of the basename.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, ext := range []string{".nii.gz", ".nii", ".nrrd", ".nhdr", ".mha", ".mhd"} {
		if strings.HasSuffix(lower, ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Read decodes a volume, choosing the codec by file extension.
func Read(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open volume: %w", err)
	}
	defer f.Close()

	dir := filepath.Dir(path)
	lower := strings.ToLower(path)
	var v *Volume
	switch {
	case strings.HasSuffix(lower, ".nii.gz"):
		gz, gzErr := gzip.NewReader(bufio.NewReader(f))
		if gzErr != nil {
			return nil, fmt.Errorf("open %s: %w", path, gzErr)
		}
		defer gz.Close()
		v, err = DecodeNIfTI(gz)
	case strings.HasSuffix(lower, ".nii"):
		v, err = DecodeNIfTI(bufio.NewReader(f))
	case strings.HasSuffix(lower, ".nrrd"), strings.HasSuffix(lower, ".nhdr"):
		v, err = DecodeNRRD(f, dir)
	case strings.HasSuffix(lower, ".mha"), strings.HasSuffix(lower, ".mhd"):
		v, err = DecodeMetaImage(f, dir)
	default:
		return nil, fmt.Errorf("unrecognized volume extension: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if v.Name == "" {
		v.Name = NameFromPath(path)
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return v, nil
}

// Encode writes v in the format implied by path's extension.
func Encode(w io.Writer, path string, v *Volume) error {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".nii.gz"):
		gz := gzip.NewWriter(w)
		if err := EncodeNIfTI(gz, v); err != nil {
			return err
		}
		return gz.Close()
	case strings.HasSuffix(lower, ".nii"):
		bw := bufio.NewWriter(w)
		if err := EncodeNIfTI(bw, v); err != nil {
			return err
		}
		return bw.Flush()
	case strings.HasSuffix(lower, ".nrrd"):
		return EncodeNRRD(w, v)
	default:
		return fmt.Errorf("cannot write volume with extension %q", filepath.Ext(path))
	}
}

// Write encodes v to path atomically; an existing file is only replaced once the
// new payload has been written completely.
func Write(path string, v *Volume) error {
	return fileops.WriteFileAtomic(path, func(w io.Writer) error {
		return Encode(w, path, v)
	})
}
