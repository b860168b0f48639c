package orientation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIsIdentity(t *testing.T) {
	f := New()
	q := f.Quaternion()
	require.InDelta(t, 1.0, q.Real, 1e-9)
	require.False(t, f.Ready())
}

func TestUpdateStaysUnitQuaternion(t *testing.T) {
	f := New()
	for i := 0; i < 500; i++ {
		f.Update(0.01, -0.02, 0.0, 0.0, 0.0, 9.81, 1.0/208.0)
	}
	q := f.Quaternion()
	norm := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	require.InDelta(t, 1.0, norm, 1e-6)
	require.True(t, f.Ready())
}

func TestRotateToEarthIdentity(t *testing.T) {
	f := New()
	out := f.RotateToEarth([3]float64{0, 0, 9.81})
	require.InDelta(t, 0.0, out[0], 1e-9)
	require.InDelta(t, 0.0, out[1], 1e-9)
	require.InDelta(t, 9.81, out[2], 1e-9)
}

func TestUpdateConvergesGravityDirection(t *testing.T) {
	f := New()
	// Stationary sensor: gravity should stay pointing down after settling.
	for i := 0; i < 2000; i++ {
		f.Update(0, 0, 0, 0, 0, 1.0, 1.0/208.0)
	}
	out := f.RotateToEarth([3]float64{0, 0, 1.0})
	require.InDelta(t, 1.0, out[2], 0.05)
}
