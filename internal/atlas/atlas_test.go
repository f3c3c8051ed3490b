package atlas

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaa/tbprep/internal/fiducial"
	"github.com/jaa/tbprep/internal/geom"
	"github.com/jaa/tbprep/internal/volume"
)

func TestParseSide(t *testing.T) {
	for raw, want := range map[string]Side{"l": Left, "Left": Left, " R ": Right, "right": Right} {
		got, err := ParseSide(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", raw, want, got)
		}
	}
	if _, err := ParseSide("both"); err == nil {
		t.Fatalf("expected invalid side error")
	}
}

func TestDetectSide(t *testing.T) {
	cases := map[string]Side{
		"1043R_CT":       Right,
		"case_22L_scan":  Left,
		"TemporalBone":   "",
		"12x_unexpected": "",
	}
	for name, want := range cases {
		got, ok := DetectSide(name)
		if want == "" {
			if ok {
				t.Fatalf("%s: expected no side, got %s", name, got)
			}
			continue
		}
		if !ok || got != want {
			t.Fatalf("%s: expected %s, got %s (ok=%v)", name, want, got, ok)
		}
	}
}

func TestResolveUsesFixedNames(t *testing.T) {
	paths := Resolve("/atlases", Right)
	if paths.Volume != filepath.Join("/atlases", "Atlas_R.mha") {
		t.Fatalf("unexpected volume path %s", paths.Volume)
	}
	if paths.Fiducials != filepath.Join("/atlases", "Fiducial_R.fcsv") {
		t.Fatalf("unexpected fiducial path %s", paths.Fiducials)
	}
	if paths.Mask != filepath.Join("/atlases", "CochleaRegistrationMask_R.nrrd") {
		t.Fatalf("unexpected mask path %s", paths.Mask)
	}
}

func writeAtlas(t *testing.T, dir string, side Side) {
	t.Helper()
	paths := Resolve(dir, side)

	// MetaImage is read-only here, so the atlas volume is written by hand.
	header := "NDims = 3\nDimSize = 2 1 1\nElementSpacing = 0.154 0.154 0.154\nElementType = MET_UCHAR\nElementDataFile = LOCAL\n"
	if err := os.WriteFile(paths.Volume, append([]byte(header), 5, 6), 0o644); err != nil {
		t.Fatalf("write atlas volume: %v", err)
	}

	f, err := os.Create(paths.Fiducials)
	if err != nil {
		t.Fatalf("create fiducials: %v", err)
	}
	defer f.Close()
	if err := fiducial.Encode(f, []fiducial.Point{{Label: "Apex", Position: geom.Vec3{1, 2, 3}}}); err != nil {
		t.Fatalf("encode fiducials: %v", err)
	}

	mask := volume.New([3]int{2, 1, 1}, geom.Vec3{0.154, 0.154, 0.154}, volume.Uint8)
	mask.Data = []float32{1, 0}
	if err := volume.Write(paths.Mask, mask); err != nil {
		t.Fatalf("write mask: %v", err)
	}
}

func TestLoadReadsAllResources(t *testing.T) {
	dir := t.TempDir()
	writeAtlas(t, dir, Left)

	a, err := Load(dir, Left)
	if err != nil {
		t.Fatalf("load atlas: %v", err)
	}
	if a.Volume.Name != "Atlas_L" {
		t.Fatalf("unexpected atlas name %q", a.Volume.Name)
	}
	if len(a.Fiducials) != 1 || a.Fiducials[0].Label != "Apex" {
		t.Fatalf("unexpected fiducials %+v", a.Fiducials)
	}
	if a.Mask.Data[0] != 1 {
		t.Fatalf("unexpected mask data %v", a.Mask.Data)
	}
}

func TestLoadReportsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	writeAtlas(t, dir, Left)

	_, err := Load(dir, Right)
	if err == nil {
		t.Fatalf("expected missing atlas error")
	}
	if !strings.Contains(err.Error(), "Atlas_R.mha") || !strings.Contains(err.Error(), "CochleaRegistrationMask_R.nrrd") {
		t.Fatalf("expected missing files in error, got %v", err)
	}
}
