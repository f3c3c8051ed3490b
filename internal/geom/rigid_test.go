package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitRigidRecoversKnownTransform(t *testing.T) {
	truth := CenteredRigid(EulerZXY(0.1, -0.2, 0.35), Vec3{5, 5, 5}, Vec3{3, -4, 12})
	moving := []Vec3{{0, 0, 0}, {10, 0, 0}, {0, 10, 0}, {0, 0, 10}, {4, 7, -3}}
	fixed := make([]Vec3, len(moving))
	for i, p := range moving {
		fixed[i] = truth.Apply(p)
	}

	fit, rms, err := FitRigid(moving, fixed)
	require.NoError(t, err)
	assert.InDelta(t, 0, rms, 1e-9)
	assert.True(t, fit.Rotation.ApproxEqual(truth.Rotation, 1e-9))
	for i := 0; i < 3; i++ {
		assert.InDelta(t, truth.Translation[i], fit.Translation[i], 1e-9)
	}
	assert.InDelta(t, 1, fit.Rotation.Det(), 1e-9)
}

func TestFitRigidRejectsReflection(t *testing.T) {
	moving := []Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	fixed := []Vec3{{0, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	fit, _, err := FitRigid(moving, fixed)
	require.NoError(t, err)
	assert.InDelta(t, 1, fit.Rotation.Det(), 1e-9)
}

func TestFitRigidNeedsThreePairs(t *testing.T) {
	_, _, err := FitRigid([]Vec3{{0, 0, 0}, {1, 0, 0}}, []Vec3{{0, 0, 0}, {1, 0, 0}})
	assert.Error(t, err)
}

func TestFitRigidCollinear(t *testing.T) {
	line := []Vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}
	_, _, err := FitRigid(line, line)
	assert.ErrorIs(t, err, ErrDegenerateLandmarks)
}

func TestRigidInverseAndThen(t *testing.T) {
	r := CenteredRigid(EulerZXY(0.3, 0.2, -0.1), Vec3{1, 2, 3}, Vec3{7, 8, 9})
	p := Vec3{4, -5, 6}

	back := r.Inverse().Apply(r.Apply(p))
	for i := 0; i < 3; i++ {
		assert.InDelta(t, p[i], back[i], 1e-9)
	}

	composed := r.Then(r.Inverse())
	assert.True(t, composed.Rotation.ApproxEqual(Identity(), 1e-9))
}

func TestFlipRASLPSMatchesPointwiseConversion(t *testing.T) {
	ras := CenteredRigid(EulerZXY(0, 0, math.Pi/6), Vec3{}, Vec3{10, 0, 0})
	p := Vec3{1, 2, 3}

	viaRAS := RASToLPS(ras.Apply(LPSToRAS(p)))
	viaLPS := ras.FlipRASLPS().Apply(p)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, viaRAS[i], viaLPS[i], 1e-9)
	}
}

func TestMat3Inverse(t *testing.T) {
	m := Mat3{{2, 0, 0}, {0, 4, 0}, {0, 0, 0.5}}
	inv, err := m.Inverse()
	require.NoError(t, err)
	assert.True(t, m.Mul(inv).ApproxEqual(Identity(), 1e-12))

	_, err = Mat3{}.Inverse()
	assert.Error(t, err)
}
