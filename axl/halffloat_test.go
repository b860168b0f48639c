package axl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHalfRoundTrip(t *testing.T) {
	values := []float32{0, 1, -1, 0.5, -0.5, 3.14159, -9.81, 100.0, -100.0, 0.001}
	for _, v := range values {
		h := FromFloat32(v)
		got := h.ToFloat32()
		require.InDelta(t, float64(v), float64(got), 0.01, "value=%v", v)
	}
}

func TestHalfZero(t *testing.T) {
	h := FromFloat32(0)
	require.Equal(t, float32(0), h.ToFloat32())
}

func TestHalfOverflowSaturates(t *testing.T) {
	h := FromFloat32(1e10)
	got := h.ToFloat32()
	require.True(t, got > 60000 || got != got || got > 1e9)
}
