package resample

import (
	"fmt"
	"math"

	"github.com/jaa/tbprep/internal/volume"
)

const (
	sincRadius    = 3
	gaussianSigma = 1.0
	maxTaps       = 8
)

// taps holds the voxel indices and weights one axis contributes to a sample.
type taps struct {
	n      int
	index  [maxTaps]int
	weight [maxTaps]float64
}

func (t *taps) add(index int, weight float64) {
	t.index[t.n] = index
	t.weight[t.n] = weight
	t.n++
}

func (t *taps) normalize() {
	sum := 0.0
	for i := 0; i < t.n; i++ {
		sum += t.weight[i]
	}
	if sum == 0 {
		return
	}
	for i := 0; i < t.n; i++ {
		t.weight[i] /= sum
	}
}

type tapFunc func(x float64, size int, out *taps)

// sampler evaluates a separable kernel on a continuous voxel index.
type sampler struct {
	size   [3]int
	values []float64
	fill   float64
	tap    tapFunc
}

func newSampler(src *volume.Volume, method Interpolation, fill float64) (*sampler, error) {
	s := &sampler{size: src.Size, fill: fill}
	switch method {
	case Nearest:
		s.tap = nearestTaps
	case Linear:
		s.tap = linearTaps
	case BSpline:
		s.tap = bsplineTaps
	case Gaussian:
		s.tap = gaussianTaps
	case HammingSinc:
		s.tap = sincTaps(hammingWindow)
	case BlackmanSinc:
		s.tap = sincTaps(blackmanWindow)
	case CosineSinc:
		s.tap = sincTaps(cosineWindow)
	case WelchSinc:
		s.tap = sincTaps(welchWindow)
	case LanczosSinc:
		s.tap = sincTaps(lanczosWindow)
	default:
		return nil, fmt.Errorf("unsupported interpolation %q", method)
	}

	s.values = make([]float64, len(src.Data))
	for i, value := range src.Data {
		s.values[i] = float64(value)
	}
	if method == BSpline {
		prefilterBSpline(s.values, src.Size)
	}
	return s, nil
}

// inside mirrors the image buffer test of ITK: half a voxel past the outer centres.
func (s *sampler) inside(index [3]float64) bool {
	for axis := 0; axis < 3; axis++ {
		if index[axis] < -0.5 || index[axis] >= float64(s.size[axis])-0.5 {
			return false
		}
	}
	return true
}

func (s *sampler) sample(index [3]float64) float64 {
	if !s.inside(index) {
		return s.fill
	}
	var tx, ty, tz taps
	s.tap(index[0], s.size[0], &tx)
	s.tap(index[1], s.size[1], &ty)
	s.tap(index[2], s.size[2], &tz)

	nx, nxy := s.size[0], s.size[0]*s.size[1]
	value := 0.0
	for c := 0; c < tz.n; c++ {
		zOffset := tz.index[c] * nxy
		for b := 0; b < ty.n; b++ {
			yOffset := zOffset + ty.index[b]*nx
			wyz := tz.weight[c] * ty.weight[b]
			for a := 0; a < tx.n; a++ {
				value += wyz * tx.weight[a] * s.values[yOffset+tx.index[a]]
			}
		}
	}
	return value
}

func clampIndex(i, size int) int {
	if i < 0 {
		return 0
	}
	if i >= size {
		return size - 1
	}
	return i
}

func mirrorIndex(i, size int) int {
	if size == 1 {
		return 0
	}
	period := 2 * (size - 1)
	i = ((i % period) + period) % period
	if i >= size {
		i = period - i
	}
	return i
}

func nearestTaps(x float64, size int, out *taps) {
	out.add(clampIndex(int(math.Floor(x+0.5)), size), 1)
}

func linearTaps(x float64, size int, out *taps) {
	base := math.Floor(x)
	t := x - base
	i := int(base)
	out.add(clampIndex(i, size), 1-t)
	out.add(clampIndex(i+1, size), t)
}

func bsplineTaps(x float64, size int, out *taps) {
	base := math.Floor(x)
	t := x - base
	i := int(base)
	t2, t3 := t*t, t*t*t
	u := 1 - t
	out.add(mirrorIndex(i-1, size), u*u*u/6)
	out.add(mirrorIndex(i, size), (4-6*t2+3*t3)/6)
	out.add(mirrorIndex(i+1, size), (1+3*t+3*t2-3*t3)/6)
	out.add(mirrorIndex(i+2, size), t3/6)
}

func gaussianTaps(x float64, size int, out *taps) {
	cutoff := 3 * gaussianSigma
	lo := int(math.Ceil(x - cutoff))
	hi := int(math.Floor(x + cutoff))
	for i := lo; i <= hi; i++ {
		if i < 0 || i >= size {
			continue
		}
		d := (float64(i) - x) / gaussianSigma
		out.add(i, math.Exp(-0.5*d*d))
	}
	out.normalize()
}

type window func(x float64) float64

func hammingWindow(x float64) float64 {
	return 0.54 + 0.46*math.Cos(math.Pi*x/sincRadius)
}

func blackmanWindow(x float64) float64 {
	return 0.42 + 0.5*math.Cos(math.Pi*x/sincRadius) + 0.08*math.Cos(2*math.Pi*x/sincRadius)
}

func cosineWindow(x float64) float64 {
	return math.Cos(math.Pi * x / (2 * sincRadius))
}

func welchWindow(x float64) float64 {
	return 1 - x*x/(sincRadius*sincRadius)
}

func lanczosWindow(x float64) float64 {
	return sinc(x / sincRadius)
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// sincTaps builds a windowed-sinc kernel of radius 3 with edge voxels repeated outside
// the image and weights normalised to one.
func sincTaps(w window) tapFunc {
	return func(x float64, size int, out *taps) {
		base := int(math.Floor(x))
		for i := base - sincRadius + 1; i <= base+sincRadius; i++ {
			d := x - float64(i)
			out.add(clampIndex(i, size), sinc(d)*w(d))
		}
		out.normalize()
	}
}

// prefilterBSpline converts samples to cubic B-spline coefficients in place, one axis
// at a time, with mirror boundaries.
func prefilterBSpline(values []float64, size [3]int) {
	strides := [3]int{1, size[0], size[0] * size[1]}
	for axis := 0; axis < 3; axis++ {
		n := size[axis]
		if n < 2 {
			continue
		}
		line := make([]float64, n)
		stride := strides[axis]
		for start := 0; start < len(values); start++ {
			// Only visit the first sample of every line along this axis.
			if (start/stride)%n != 0 {
				continue
			}
			for k := 0; k < n; k++ {
				line[k] = values[start+k*stride]
			}
			prefilterLine(line)
			for k := 0; k < n; k++ {
				values[start+k*stride] = line[k]
			}
		}
	}
}

func prefilterLine(c []float64) {
	n := len(c)
	z := math.Sqrt(3) - 2
	lambda := (1 - z) * (1 - 1/z)
	for k := range c {
		c[k] *= lambda
	}

	c[0] = causalInit(c, z)
	for k := 1; k < n; k++ {
		c[k] += z * c[k-1]
	}
	c[n-1] = (z / (z*z - 1)) * (z*c[n-2] + c[n-1])
	for k := n - 2; k >= 0; k-- {
		c[k] = z * (c[k+1] - c[k])
	}
}

func causalInit(c []float64, z float64) float64 {
	n := len(c)
	horizon := int(math.Ceil(math.Log(1e-10) / math.Log(math.Abs(z))))
	if horizon < n {
		zn := z
		sum := c[0]
		for k := 1; k < horizon; k++ {
			sum += zn * c[k]
			zn *= z
		}
		return sum
	}

	zn := z
	iz := 1 / z
	z2n := math.Pow(z, float64(n-1))
	sum := c[0] + z2n*c[n-1]
	z2n *= z2n * iz
	for k := 1; k < n-1; k++ {
		sum += (zn + z2n) * c[k]
		zn *= z
		z2n *= iz
	}
	return sum / (1 - zn*zn)
}
