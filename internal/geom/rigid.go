package geom

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrDegenerateLandmarks = errors.New("landmarks are collinear or coincident")

// Rigid maps p to Rotation*p + Translation.
type Rigid struct {
	Rotation    Mat3 `yaml:"rotation" json:"rotation"`
	Translation Vec3 `yaml:"translation" json:"translation"`
}

func IdentityRigid() Rigid {
	return Rigid{Rotation: Identity()}
}

func (r Rigid) Apply(p Vec3) Vec3 {
	return r.Rotation.MulVec(p).Add(r.Translation)
}

// Then returns the transform that applies r first and next second.
func (r Rigid) Then(next Rigid) Rigid {
	return Rigid{
		Rotation:    next.Rotation.Mul(r.Rotation),
		Translation: next.Rotation.MulVec(r.Translation).Add(next.Translation),
	}
}

func (r Rigid) Inverse() Rigid {
	rt := r.Rotation.Transpose()
	return Rigid{Rotation: rt, Translation: rt.MulVec(r.Translation).Scale(-1)}
}

// FlipRASLPS expresses a transform defined between RAS spaces in LPS spaces (and back).
func (r Rigid) FlipRASLPS() Rigid {
	flip := Mat3{{-1, 0, 0}, {0, -1, 0}, {0, 0, 1}}
	return Rigid{
		Rotation:    flip.Mul(r.Rotation).Mul(flip),
		Translation: RASToLPS(r.Translation),
	}
}

// FitRigid finds the rotation and translation that best map moving onto fixed in the
// least-squares sense, and returns the root-mean-square residual.
func FitRigid(moving, fixed []Vec3) (Rigid, float64, error) {
	if len(moving) != len(fixed) {
		return Rigid{}, 0, fmt.Errorf("landmark count mismatch: %d moving vs %d fixed", len(moving), len(fixed))
	}
	if len(moving) < 3 {
		return Rigid{}, 0, fmt.Errorf("at least 3 landmark pairs required, got %d", len(moving))
	}

	cm := centroid(moving)
	cf := centroid(fixed)

	h := mat.NewDense(3, 3, nil)
	for i := range moving {
		a := moving[i].Sub(cm)
		b := fixed[i].Sub(cf)
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+a[r]*b[c])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return Rigid{}, 0, errors.New("landmark covariance factorization failed")
	}
	values := svd.Values(nil)
	if values[0] <= 0 || values[1]/values[0] < 1e-9 {
		return Rigid{}, 0, ErrDegenerateLandmarks
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := 1.0
	if mat.Det(&vut) < 0 {
		d = -1
	}
	correction := mat.NewDiagDense(3, []float64{1, 1, d})
	var vc, rot mat.Dense
	vc.Mul(&v, correction)
	rot.Mul(&vc, u.T())

	rigid := Rigid{Rotation: fromDense(&rot)}
	rigid.Translation = cf.Sub(rigid.Rotation.MulVec(cm))

	sum := 0.0
	for i := range moving {
		diff := rigid.Apply(moving[i]).Sub(fixed[i])
		sum += diff.Dot(diff)
	}
	return rigid, math.Sqrt(sum / float64(len(moving))), nil
}

func centroid(points []Vec3) Vec3 {
	var sum Vec3
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(points)))
}

// EulerZXY builds the rotation used by ITK's Euler3DTransform: Rz * Rx * Ry.
func EulerZXY(ax, ay, az float64) Mat3 {
	cx, sx := math.Cos(ax), math.Sin(ax)
	cy, sy := math.Cos(ay), math.Sin(ay)
	cz, sz := math.Cos(az), math.Sin(az)
	rx := Mat3{{1, 0, 0}, {0, cx, -sx}, {0, sx, cx}}
	ry := Mat3{{cy, 0, sy}, {0, 1, 0}, {-sy, 0, cy}}
	rz := Mat3{{cz, -sz, 0}, {sz, cz, 0}, {0, 0, 1}}
	return rz.Mul(rx).Mul(ry)
}

// CenteredRigid builds p -> R(p - center) + center + t.
func CenteredRigid(rotation Mat3, center, translation Vec3) Rigid {
	return Rigid{
		Rotation:    rotation,
		Translation: center.Add(translation).Sub(rotation.MulVec(center)),
	}
}

// EulerZYX is the rotation order ITK uses when ComputeZYX is set: Rz * Ry * Rx.
func EulerZYX(ax, ay, az float64) Mat3 {
	cx, sx := math.Cos(ax), math.Sin(ax)
	cy, sy := math.Cos(ay), math.Sin(ay)
	cz, sz := math.Cos(az), math.Sin(az)
	rx := Mat3{{1, 0, 0}, {0, cx, -sx}, {0, sx, cx}}
	ry := Mat3{{cy, 0, sy}, {0, 1, 0}, {-sy, 0, cy}}
	rz := Mat3{{cz, -sz, 0}, {sz, cz, 0}, {0, 0, 1}}
	return rz.Mul(ry).Mul(rx)
}
